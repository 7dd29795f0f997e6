// Package datastore is the typed client for the external datastore
// service: reads go to the reader endpoint, writes to the writer endpoint,
// everything as JSON over HTTP. A per-request Fetcher layers optimistic
// locking and the batch write-through overlay on top of the raw Client.
package datastore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/domain"
)

// Client is the raw connection to the datastore reader and writer
// services. It is safe for concurrent use and shared across requests.
type Client struct {
	readerURL string
	writerURL string
	http      *http.Client
	log       *zap.Logger
}

// New constructs a Client for the given reader and writer base URLs.
func New(readerURL, writerURL string, log *zap.Logger) *Client {
	return &Client{
		readerURL: readerURL,
		writerURL: writerURL,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

// post sends one JSON request and decodes the response into out. Non-2xx
// responses are translated into the typed errors of this package.
func (c *Client) post(ctx context.Context, base, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("datastore %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorBody(path, resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// wireError is the error envelope the datastore services respond with.
type wireError struct {
	Error struct {
		Type string   `json:"type"`
		Msg  string   `json:"msg"`
		FQID string   `json:"fqid"`
		Keys []string `json:"keys"`
	} `json:"error"`
}

func parseErrorBody(path string, status int, data []byte) error {
	var we wireError
	if err := json.Unmarshal(data, &we); err != nil || we.Error.Type == "" {
		return RequestError{Type: fmt.Sprintf("http_%d", status), Msg: string(data)}
	}
	switch we.Error.Type {
	case "MODEL_DOES_NOT_EXIST":
		fqid, err := domain.ParseFQID(we.Error.FQID)
		if err != nil {
			return RequestError{Type: we.Error.Type, Msg: we.Error.FQID}
		}
		return NotFoundError{FQID: fqid}
	case "MODEL_LOCKED":
		return LockedError{Keys: we.Error.Keys}
	case "INVALID_FORMAT":
		return InvalidFormatError{Msg: we.Error.Msg}
	default:
		return RequestError{Type: we.Error.Type, Msg: we.Error.Msg}
	}
}

type getRequest struct {
	FQID         string   `json:"fqid"`
	MappedFields []string `json:"mapped_fields,omitempty"`
}

// Get fetches one model. The returned map contains the requested fields
// plus meta_position. Missing models yield a NotFoundError.
func (c *Client) Get(ctx context.Context, fqid domain.FQID, fields []string) (map[string]any, error) {
	var out map[string]any
	if err := c.post(ctx, c.readerURL, "/get", getRequest{FQID: fqid.String(), MappedFields: withMeta(fields)}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetManyRequest is one part of a GetMany call.
type GetManyRequest struct {
	Collection domain.Collection `json:"collection"`
	IDs        []int             `json:"ids"`
	Fields     []string          `json:"mapped_fields,omitempty"`
}

// GetMany fetches several models across collections in one round trip.
// Missing models are absent from the result, not an error.
func (c *Client) GetMany(ctx context.Context, requests []GetManyRequest) (map[domain.Collection]map[int]map[string]any, error) {
	wire := make([]GetManyRequest, len(requests))
	for i, r := range requests {
		r.Fields = withMeta(r.Fields)
		wire[i] = r
	}
	var out map[domain.Collection]map[int]map[string]any
	if err := c.post(ctx, c.readerURL, "/get_many", map[string]any{"requests": wire}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAll fetches every model of a collection. Only privileged read paths
// use this; it scans the whole collection.
func (c *Client) GetAll(ctx context.Context, collection domain.Collection, fields []string) (map[int]map[string]any, error) {
	body := map[string]any{"collection": collection, "mapped_fields": withMeta(fields)}
	var out map[int]map[string]any
	if err := c.post(ctx, c.readerURL, "/get_all", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type filterResponse struct {
	Data     map[int]map[string]any `json:"data"`
	Position Position               `json:"position"`
}

// Filter fetches the models of a collection matching the filter tree.
func (c *Client) Filter(ctx context.Context, collection domain.Collection, filter domain.Filter, fields []string) (map[int]map[string]any, error) {
	body := map[string]any{"collection": collection, "filter": filter, "mapped_fields": withMeta(fields)}
	var out filterResponse
	if err := c.post(ctx, c.readerURL, "/filter", body, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Exists reports whether at least one model matches the filter.
func (c *Client) Exists(ctx context.Context, collection domain.Collection, filter domain.Filter) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	body := map[string]any{"collection": collection, "filter": filter}
	if err := c.post(ctx, c.readerURL, "/exists", body, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Count returns the number of models matching the filter.
func (c *Client) Count(ctx context.Context, collection domain.Collection, filter domain.Filter) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	body := map[string]any{"collection": collection, "filter": filter}
	if err := c.post(ctx, c.readerURL, "/count", body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// Min returns the smallest value of field among models matching the filter,
// or nil when nothing matches.
func (c *Client) Min(ctx context.Context, collection domain.Collection, filter domain.Filter, field string) (any, error) {
	var out struct {
		Min any `json:"min"`
	}
	body := map[string]any{"collection": collection, "filter": filter, "field": field}
	if err := c.post(ctx, c.readerURL, "/min", body, &out); err != nil {
		return nil, err
	}
	return out.Min, nil
}

// Max is the counterpart of Min.
func (c *Client) Max(ctx context.Context, collection domain.Collection, filter domain.Filter, field string) (any, error) {
	var out struct {
		Max any `json:"max"`
	}
	body := map[string]any{"collection": collection, "filter": filter, "field": field}
	if err := c.post(ctx, c.readerURL, "/max", body, &out); err != nil {
		return nil, err
	}
	return out.Max, nil
}

// ReserveIDs returns amount fresh ids for the collection. The caller owns
// the returned ids; the datastore never hands them out again.
func (c *Client) ReserveIDs(ctx context.Context, collection domain.Collection, amount int) ([]int, error) {
	var out struct {
		IDs []int `json:"ids"`
	}
	body := map[string]any{"collection": collection, "amount": amount}
	if err := c.post(ctx, c.writerURL, "/reserve_ids", body, &out); err != nil {
		return nil, err
	}
	if len(out.IDs) != amount {
		return nil, RequestError{Type: "RESERVE_IDS", Msg: fmt.Sprintf("requested %d ids, got %d", amount, len(out.IDs))}
	}
	return out.IDs, nil
}

// Write submits one atomic WriteRequest. A failed position check surfaces
// as LockedError.
func (c *Client) Write(ctx context.Context, wr WriteRequest) error {
	if wr.LockedFields == nil {
		wr.LockedFields = map[string]Position{}
	}
	return c.post(ctx, c.writerURL, "/write", wr, nil)
}

// withMeta adds meta_position to an explicit field selection so locked
// reads always know the position they saw. A nil selection fetches all
// fields, which includes the meta fields anyway.
func withMeta(fields []string) []string {
	if fields == nil {
		return nil
	}
	for _, f := range fields {
		if f == "meta_position" {
			return fields
		}
	}
	out := make([]string, 0, len(fields)+1)
	out = append(out, fields...)
	return append(out, "meta_position")
}
