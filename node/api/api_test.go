package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/redcloud/files/build"
	"github.com/redcloud/files/modules"
	"github.com/redcloud/files/modules/chunkstore"
	"github.com/redcloud/files/modules/metastore"
	"github.com/redcloud/files/modules/mn"
	"github.com/redcloud/files/modules/sn"
	"github.com/redcloud/files/node/api/client"
	"github.com/redcloud/files/persist"
)

func newTestServer(t *testing.T) (*httptest.Server, *client.Client) {
	t.Helper()

	log, err := persist.NewLogger(io.Discard)
	require.NoError(t, err)

	mdDir := build.TempDir("api", t.Name()+"-md")
	require.NoError(t, os.MkdirAll(mdDir, 0700))
	store, err := metastore.New(mdDir)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := modules.Config{OwnNodeID: "md-test"}.FillDefaults()
	mdNode, err := mn.New(cfg, store, mdDir, log)
	require.NoError(t, err)
	require.NoError(t, mdNode.Run("127.0.0.1:0"))
	t.Cleanup(func() { mdNode.Close() })

	snDir := build.TempDir("api", t.Name()+"-sn")
	chunks, err := chunkstore.New(snDir)
	require.NoError(t, err)
	snNode := sn.New(modules.Config{OwnNodeID: "sn-test"}.FillDefaults(), chunks, log)
	require.NoError(t, snNode.Run("127.0.0.1:0"))
	t.Cleanup(func() { snNode.Close() })

	mdNode.ReceiveHeartbeat("sn-test", modules.NetAddress(snNode.ListenAddr()), 1<<30, 0)

	srv := httptest.NewServer(New(mdNode))
	t.Cleanup(srv.Close)

	c := client.New(srv.Listener.Addr().String())
	return srv, c
}

func TestFileUploadDownloadDeleteRoundtrip(t *testing.T) {
	_, c := newTestServer(t)

	fg, err := c.UploadFile("alice", "notes.txt", []byte("hello world"), []string{"personal"})
	require.NoError(t, err)
	require.Equal(t, "alice", fg.File.OwnerID)
	require.Equal(t, "notes.txt", fg.File.Name)

	dg, err := c.DownloadFile(fg.File.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), dg.Data)

	tq, err := c.FilesByTag("alice", "personal")
	require.NoError(t, err)
	require.Contains(t, tq.FileIDs, fg.File.ID)

	require.NoError(t, c.AddTag(fg.File.ID, "work"))
	tq, err = c.FilesByTag("alice", "work")
	require.NoError(t, err)
	require.Contains(t, tq.FileIDs, fg.File.ID)

	require.NoError(t, c.RemoveTag(fg.File.ID, "work"))
	tq, err = c.FilesByTag("alice", "work")
	require.NoError(t, err)
	require.NotContains(t, tq.FileIDs, fg.File.ID)

	require.NoError(t, c.DeleteFile(fg.File.ID))
	_, err = c.DownloadFile(fg.File.ID)
	require.Error(t, err)
}

func TestStatusAndDebugRegistries(t *testing.T) {
	_, c := newTestServer(t)

	sg, err := c.Status()
	require.NoError(t, err)
	require.Equal(t, "md-test", sg.NodeID)

	dg, err := c.DebugRegistries()
	require.NoError(t, err)
	require.Len(t, dg.StorageNodes, 1)
}

func TestHeartbeatEndpoint(t *testing.T) {
	srv, c := newTestServer(t)
	body := strings.NewReader(`{"nodeId":"sn-hb","address":"127.0.0.1:1234","capacity":100,"used":10}`)
	resp, err := http.Post(srv.URL+"/storage/heartbeat", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dg, err := c.DebugRegistries()
	require.NoError(t, err)
	var found bool
	for _, s := range dg.StorageNodes {
		if s.ID == "sn-hb" {
			found = true
			require.Equal(t, modules.StatusActive, s.Status)
			require.WithinDuration(t, time.Now(), s.LastHeartbeat, 5*time.Second)
		}
	}
	require.True(t, found)
}
