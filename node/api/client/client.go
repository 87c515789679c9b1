// Package client provides a small Go wrapper around a RedCloud metadata
// node's HTTP API, following the teacher's Client-struct-plus-get/post
// convention.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/uplo-tech/errors"
)

// Client communicates with a single metadata node's HTTP API.
type Client struct {
	Address string

	httpClient *http.Client
}

// New returns a Client talking to the API listening on address
// ("host:port", no scheme).
func New(address string) *Client {
	return &Client{
		Address:    address,
		httpClient: &http.Client{},
	}
}

func (c *Client) url(resource string) string {
	return fmt.Sprintf("http://%s%s", c.Address, resource)
}

func (c *Client) get(resource string, obj interface{}) error {
	resp, err := c.httpClient.Get(c.url(resource))
	if err != nil {
		return errors.AddContext(err, "request failed")
	}
	defer resp.Body.Close()
	return decodeResponse(resp, obj)
}

func (c *Client) post(resource string, body interface{}, obj interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errors.AddContext(err, "could not marshal request body")
	}
	resp, err := c.httpClient.Post(c.url(resource), "application/json", bytes.NewReader(buf))
	if err != nil {
		return errors.AddContext(err, "request failed")
	}
	defer resp.Body.Close()
	return decodeResponse(resp, obj)
}

func (c *Client) delete(resource string) error {
	req, err := http.NewRequest(http.MethodDelete, c.url(resource), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.AddContext(err, "request failed")
	}
	defer resp.Body.Close()
	return decodeResponse(resp, nil)
}

func decodeResponse(resp *http.Response, obj interface{}) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		body, _ := io.ReadAll(resp.Body)
		if jsonErr := json.Unmarshal(body, &apiErr); jsonErr != nil || apiErr.Message == "" {
			return errors.New(string(body))
		}
		return errors.New(apiErr.Message)
	}
	if obj == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(obj)
}
