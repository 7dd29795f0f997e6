// Package media is the thin client for the media service. The core
// only asks whether a file body exists for a mediafile id; uploads and
// downloads bypass this service entirely.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type checkRequest struct {
	MediafileID int `json:"mediafile_id"`
}

type checkResponse struct {
	OK bool `json:"ok"`
}

// HasFile reports whether the media service stores a body for the
// mediafile.
func (c *Client) HasFile(ctx context.Context, mediafileID int) (bool, error) {
	raw, err := json.Marshal(checkRequest{MediafileID: mediafileID})
	if err != nil {
		return false, fmt.Errorf("encoding media check: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/media/check", bytes.NewReader(raw))
	if err != nil {
		return false, fmt.Errorf("building media check: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("media service: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("reading media response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("media service returned %d: %s", resp.StatusCode, data)
	}
	var out checkResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return false, fmt.Errorf("decoding media response: %w", err)
	}
	return out.OK, nil
}
