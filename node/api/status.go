package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/redcloud/files/modules"
)

// StatusGET is the response shape of GET /status.
type StatusGET struct {
	NodeID string `json:"nodeId"`
}

// statusHandlerGET reports basic liveness, useful for load-balancer health
// checks in front of a metadata-node cluster.
func (a *API) statusHandlerGET(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	WriteJSON(w, StatusGET{NodeID: a.mn.ID()})
}

// DebugRegistriesGET is the response shape of GET /debug/registries,
// exposing the in-memory peer and storage-node views an operator would
// otherwise have to infer from logs.
type DebugRegistriesGET struct {
	NodeID       string                  `json:"nodeId"`
	Peers        []modules.MetadataNode  `json:"peers"`
	StorageNodes []modules.StorageNode   `json:"storageNodes"`
}

// debugRegistriesHandlerGET is an operational aid for inspecting gossip
// convergence without tailing logs.
func (a *API) debugRegistriesHandlerGET(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	WriteJSON(w, DebugRegistriesGET{
		NodeID:       a.mn.ID(),
		Peers:        a.mn.Peers(),
		StorageNodes: a.mn.StorageNodes(),
	})
}
