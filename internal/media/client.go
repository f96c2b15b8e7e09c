// Package media uploads video and image files to the external media host
// and returns the hosted URLs the API stores alongside each video.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Kind selects the media host's processing pipeline.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Upload is the subset of the host's response the API keeps.
type Upload struct {
	URL      string  `json:"secure_url"`
	PublicID string  `json:"public_id"`
	Duration float64 `json:"duration"`
}

// Client talks to the media host's upload endpoint.
type Client struct {
	uploadURL string
	apiKey    string
	httpc     *http.Client
}

// NewClient builds a client for the host's upload endpoint. Uploads can be
// large, so the default timeout is generous.
func NewClient(uploadURL, apiKey string) *Client {
	return &Client{
		uploadURL: uploadURL,
		apiKey:    apiKey,
		httpc:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// Upload sends the file as multipart form data and returns the hosted result.
func (c *Client) Upload(ctx context.Context, kind Kind, filename string, file io.Reader) (Upload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("resource_type", string(kind)); err != nil {
		return Upload{}, err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Upload{}, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Upload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return Upload{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Upload{}, fmt.Errorf("media host: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Upload{}, fmt.Errorf("media host: status %d: %s", resp.StatusCode, msg)
	}

	var up Upload
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		return Upload{}, fmt.Errorf("media host: decode response: %w", err)
	}
	if up.URL == "" {
		return Upload{}, fmt.Errorf("media host: response missing secure_url")
	}
	return up, nil
}
