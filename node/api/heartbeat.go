package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/redcloud/files/modules"
)

// heartbeatRequest is the JSON body a storage node posts to
// /storage/heartbeat (spec §4.8).
type heartbeatRequest struct {
	NodeID   string `json:"nodeId"`
	Address  string `json:"address"`
	Capacity uint64 `json:"capacity"`
	Used     uint64 `json:"used"`
}

// heartbeatHandlerPOST records a storage node's liveness and capacity
// report (spec §4.8).
func (a *API) heartbeatHandlerPOST(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req heartbeatRequest
	if err := decodeJSONBody(r, &req); err != nil {
		WriteError(w, Error{"could not decode heartbeat: " + err.Error()}, http.StatusBadRequest)
		return
	}
	if req.NodeID == "" {
		WriteError(w, Error{"nodeId is required"}, http.StatusBadRequest)
		return
	}
	a.mn.ReceiveHeartbeat(req.NodeID, modules.NetAddress(req.Address), req.Capacity, req.Used)
	WriteJSON(w, struct{}{})
}
