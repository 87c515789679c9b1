package client

import (
	"fmt"

	"github.com/redcloud/files/node/api"
)

// UploadFile uploads data under name for ownerID, tagged with tags.
func (c *Client) UploadFile(ownerID, name string, data []byte, tags []string) (fg api.FileGET, err error) {
	req := api.FileUploadRequest{OwnerID: ownerID, Name: name, Data: data, Tags: tags}
	err = c.post("/files", req, &fg)
	return
}

// DownloadFile retrieves a file's bytes by id.
func (c *Client) DownloadFile(fileID string) (dg api.FileDownloadGET, err error) {
	err = c.get(fmt.Sprintf("/files/%s", fileID), &dg)
	return
}

// DeleteFile soft-deletes a file by id.
func (c *Client) DeleteFile(fileID string) error {
	return c.delete(fmt.Sprintf("/files/%s", fileID))
}

// AddTag adds tag to fileID.
func (c *Client) AddTag(fileID, tag string) error {
	return c.post(fmt.Sprintf("/files/%s/tags", fileID), struct {
		Tag string `json:"tag"`
	}{Tag: tag}, nil)
}

// RemoveTag removes tag from fileID.
func (c *Client) RemoveTag(fileID, tag string) error {
	return c.delete(fmt.Sprintf("/files/%s/tags/%s", fileID, tag))
}

// FilesByTag lists the ids of every live file owned by ownerID carrying tag.
func (c *Client) FilesByTag(ownerID, tag string) (tg api.TagQueryGET, err error) {
	err = c.get(fmt.Sprintf("/tags/%s/%s", ownerID, tag), &tg)
	return
}

// Status reports the metadata node's own identity.
func (c *Client) Status() (sg api.StatusGET, err error) {
	err = c.get("/status", &sg)
	return
}

// DebugRegistries reports the metadata node's in-memory peer and
// storage-node registry views.
func (c *Client) DebugRegistries() (dg api.DebugRegistriesGET, err error) {
	err = c.get("/debug/registries", &dg)
	return
}
