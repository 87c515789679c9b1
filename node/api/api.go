// Package api implements the HTTP surface client applications and storage
// nodes use to talk to a metadata node: file upload/download/tag/delete and
// the storage-node heartbeat sink (spec §6). Routing and JSON conventions
// follow the teacher's node/api package: New builds an httprouter.Router,
// XxxGET/XxxPOST response structs, and WriteJSON/
// WriteError helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/redcloud/files/modules/mn"
)

// Error is the standard JSON error response shape.
type Error struct {
	Message string `json:"message"`
}

// Error implements the error interface.
func (e Error) Error() string {
	return e.Message
}

// WriteJSON writes the JSON encoding of obj to w with a 200 status.
func WriteJSON(w http.ResponseWriter, obj interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(obj)
}

// WriteError writes err as a JSON Error response with the given status.
func WriteError(w http.ResponseWriter, err Error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(err)
}

// API serves the metadata node's HTTP surface.
type API struct {
	router *httprouter.Router
	mn     *mn.Node
}

// New builds an API bound to node. Callers only construct an API for
// processes running the metadata role.
func New(node *mn.Node) *API {
	a := &API{
		router: httprouter.New(),
		mn:     node,
	}
	a.router.GET("/status", a.statusHandlerGET)
	a.router.GET("/debug/registries", a.debugRegistriesHandlerGET)

	a.router.POST("/files", a.filesHandlerPOST)
	a.router.GET("/files/:id", a.fileHandlerGET)
	a.router.DELETE("/files/:id", a.fileHandlerDELETE)
	a.router.POST("/files/:id/tags", a.tagHandlerPOST)
	a.router.DELETE("/files/:id/tags/:tag", a.tagHandlerDELETE)
	a.router.GET("/tags/:owner/:tag", a.tagQueryHandlerGET)

	a.router.POST("/storage/heartbeat", a.heartbeatHandlerPOST)

	a.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, Error{"api resource not found"}, http.StatusNotFound)
	})
	return a
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}
