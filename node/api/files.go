package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/redcloud/files/modules"
)

// FileUploadRequest is the JSON body of POST /files.
type FileUploadRequest struct {
	OwnerID string   `json:"ownerId"`
	Name    string   `json:"name"`
	Data    []byte   `json:"data"` // base64 via encoding/json's []byte support
	Tags    []string `json:"tags"`
}

// FileGET is the response shape of POST /files.
type FileGET struct {
	File modules.File `json:"file"`
}

// FileDownloadGET is the response shape of GET /files/:id.
type FileDownloadGET struct {
	File modules.File `json:"file"`
	Data []byte       `json:"data"`
}

// filesHandlerPOST handles file upload (spec §6 upload-file).
func (a *API) filesHandlerPOST(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req FileUploadRequest
	if err := decodeJSONBody(r, &req); err != nil {
		WriteError(w, Error{"could not decode request body: " + err.Error()}, http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" || req.Name == "" {
		WriteError(w, Error{"ownerId and name are required"}, http.StatusBadRequest)
		return
	}

	f, err := a.mn.UploadFile(req.OwnerID, req.Name, req.Data, req.Tags)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, FileGET{File: f})
}

// fileHandlerGET handles file download (spec §6 download-file).
func (a *API) fileHandlerGET(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	data, err := a.mn.DownloadFile(ps.ByName("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, FileDownloadGET{Data: data})
}

// fileHandlerDELETE handles file deletion (spec §6 delete-file).
func (a *API) fileHandlerDELETE(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := a.mn.DeleteFile(ps.ByName("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, struct{}{})
}

// tagHandlerPOST handles adding a tag (spec §6 add-tag). The tag is taken
// from the request body, which the json encoder interprets as a raw
// string "tag" field to keep the call symmetric with the delete form.
func (a *API) tagHandlerPOST(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Tag string `json:"tag"`
	}
	if err := decodeJSONBody(r, &body); err != nil {
		WriteError(w, Error{"could not decode request body: " + err.Error()}, http.StatusBadRequest)
		return
	}
	if err := a.mn.AddTag(ps.ByName("id"), body.Tag); err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, struct{}{})
}

// tagHandlerDELETE handles removing a tag (spec §6 remove-tag).
func (a *API) tagHandlerDELETE(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := a.mn.RemoveTag(ps.ByName("id"), ps.ByName("tag")); err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, struct{}{})
}

// TagQueryGET is the response shape of GET /tags/:owner/:tag.
type TagQueryGET struct {
	FileIDs []string `json:"fileIds"`
}

// tagQueryHandlerGET handles tag-based file listing (spec §6 files-by-tag).
func (a *API) tagQueryHandlerGET(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ids, err := a.mn.FilesByTag(ps.ByName("owner"), ps.ByName("tag"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	WriteJSON(w, TagQueryGET{FileIDs: ids})
}

// writeStoreError maps a modules-layer sentinel error to an HTTP status,
// mirroring the teacher's pattern of translating module errors at the API
// boundary instead of leaking internal error types to clients.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, modules.ErrNotFound):
		WriteError(w, Error{err.Error()}, http.StatusNotFound)
	case errors.Is(err, modules.ErrNoCapacity), errors.Is(err, modules.ErrQueueFull), errors.Is(err, modules.ErrUnavailable):
		WriteError(w, Error{err.Error()}, http.StatusServiceUnavailable)
	case errors.Is(err, modules.ErrConflict):
		WriteError(w, Error{err.Error()}, http.StatusConflict)
	default:
		WriteError(w, Error{modules.ErrInternal.Error()}, http.StatusInternalServerError)
	}
}

// decodeJSONBody is a small helper kept separate from the handlers so every
// call site applies the same size guard.
func decodeJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 64<<20)).Decode(v)
}
