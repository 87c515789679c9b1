// Package node provides tooling for assembling a RedCloud node process out
// of its constituent modules. A process may run the metadata-node role, the
// storage-node role, or both, matching the two participant types named in
// spec §2.
package node

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/uplo-tech/errors"

	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/chunkstore"
	"github.com/redcloud/files/modules/metastore"
	"github.com/redcloud/files/modules/mn"
	"github.com/redcloud/files/modules/sn"
	"github.com/redcloud/files/modules/vclock"
	"github.com/redcloud/files/node/api"
	"github.com/redcloud/files/persist"
)

// NodeParams controls which roles New assembles and how each is
// configured. A RedCloud process is free to run the metadata role, the
// storage role, or both in the same process (spec §2 places no constraint
// against colocating them, only against sharding chunk bytes across
// multiple storage roles).
type NodeParams struct {
	CreateMetadataNode bool
	CreateStorageNode  bool

	MetadataConfig modules.Config
	StorageConfig  modules.Config

	MetadataListenAddr string
	StorageListenAddr  string

	// MetadataAPIListenAddr is where the HTTP API (file upload/download,
	// tag queries, SN heartbeat sink) listens. Only meaningful when
	// CreateMetadataNode is set.
	MetadataAPIListenAddr string

	// Dir is the directory under which every module's persistence is
	// rooted, mirroring the teacher's single Dir-per-node layout.
	Dir string
}

// Node is a collection of RedCloud modules operating together as a single
// process.
type Node struct {
	MetadataNode *mn.Node
	StorageNode  *sn.Node

	metadataStore modules.MetadataStore
	apiServer     *http.Server
	apiListener   net.Listener

	Dir string
}

// APIAddr returns the address the HTTP API is bound to, or "" if this node
// does not run the metadata role.
func (n *Node) APIAddr() string {
	if n.apiListener == nil {
		return ""
	}
	return n.apiListener.Addr().String()
}

// Close stops every running module, combining and returning any errors.
func (n *Node) Close() (err error) {
	if n.apiServer != nil {
		err = errors.Compose(err, n.apiServer.Shutdown(context.Background()))
	}
	if n.StorageNode != nil {
		err = errors.Compose(err, n.StorageNode.Close())
	}
	if n.MetadataNode != nil {
		err = errors.Compose(err, n.MetadataNode.Close())
	}
	if n.metadataStore != nil {
		err = errors.Compose(err, n.metadataStore.Close())
	}
	return err
}

// New assembles a Node from params. Each module is constructed explicitly
// and wired to its dependencies by the caller, following the teacher's
// dependency-injection style rather than a global registry.
func New(params NodeParams) (*Node, error) {
	dir, err := filepath.Abs(params.Dir)
	if err != nil {
		return nil, errors.AddContext(err, "could not resolve node directory")
	}

	n := &Node{Dir: dir}

	// A role whose config leaves OwnNodeID empty gets a host#session-epoch
	// identifier, so a restarted process never reuses its old clock slot.
	epoch := time.Now()
	host, _ := os.Hostname()
	if params.MetadataConfig.OwnNodeID == "" {
		params.MetadataConfig.OwnNodeID = vclock.NodeID(host, epoch)
	}
	if params.StorageConfig.OwnNodeID == "" {
		params.StorageConfig.OwnNodeID = vclock.NodeID(host, epoch)
	}

	if params.CreateMetadataNode {
		mdDir := filepath.Join(dir, "metadata")
		if err := os.MkdirAll(mdDir, 0700); err != nil {
			return nil, errors.AddContext(err, "could not create metadata node directory")
		}
		log, err := persist.NewFileLogger(filepath.Join(mdDir, "metadata.log"))
		if err != nil {
			return nil, errors.AddContext(err, "could not create metadata node logger")
		}
		store, err := metastore.New(mdDir)
		if err != nil {
			return nil, errors.AddContext(err, "could not open metadata store")
		}
		n.metadataStore = store

		mdNode, err := mn.New(params.MetadataConfig, store, mdDir, log)
		if err != nil {
			return nil, errors.AddContext(err, "could not create metadata node")
		}
		if err := mdNode.Run(params.MetadataListenAddr); err != nil {
			return nil, errors.AddContext(err, "could not start metadata node")
		}
		if err := mdNode.Bootstrap(); err != nil {
			log.Println("WARN: bootstrap discovery failed:", err)
		}
		n.MetadataNode = mdNode

		apiAddr := params.MetadataAPIListenAddr
		if apiAddr == "" {
			apiAddr = ":0"
		}
		apiListener, err := net.Listen("tcp", apiAddr)
		if err != nil {
			return nil, errors.AddContext(err, "could not bind metadata node API listener")
		}
		n.apiListener = apiListener
		n.apiServer = &http.Server{Handler: api.New(mdNode)}
		go n.apiServer.Serve(apiListener)
	}

	if params.CreateStorageNode {
		snDir := filepath.Join(dir, "storage")
		if err := os.MkdirAll(snDir, 0700); err != nil {
			return nil, errors.AddContext(err, "could not create storage node directory")
		}
		log, err := persist.NewFileLogger(filepath.Join(snDir, "storage.log"))
		if err != nil {
			return nil, errors.AddContext(err, "could not create storage node logger")
		}
		store, err := chunkstore.New(filepath.Join(snDir, "chunks"))
		if err != nil {
			return nil, errors.AddContext(err, "could not open chunk store")
		}

		snNode := sn.New(params.StorageConfig, store, log)
		if err := snNode.Run(params.StorageListenAddr); err != nil {
			return nil, errors.AddContext(err, "could not start storage node")
		}
		n.StorageNode = snNode
	}

	return n, nil
}
