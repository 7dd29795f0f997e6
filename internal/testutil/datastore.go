// Package testutil provides the in-process fake datastore and request
// helpers the handler tests run against.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/store/datastore"
)

// FakeDatastore is an in-memory stand-in for the datastore reader and
// writer services. It speaks the same wire protocol, tracks positions
// for optimistic locking and records every accepted write request.
type FakeDatastore struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	models   map[string]map[string]any
	deleted  map[string]map[string]any
	modelPos map[string]datastore.Position
	fieldPos map[string]datastore.Position
	position datastore.Position
	nextID   map[string]int
	writes   []writeRequest
}

// writeRequest mirrors the writer's wire format for decoding.
type writeRequest struct {
	UserID       int                           `json:"user_id"`
	Information  map[string][]string           `json:"information"`
	LockedFields map[string]datastore.Position `json:"locked_fields"`
	Events       []writeEvent                  `json:"events"`
}

type writeEvent struct {
	Type   string         `json:"type"`
	FQID   string         `json:"fqid"`
	Fields map[string]any `json:"fields"`
}

// NewFakeDatastore starts a fake datastore seeded with the given models,
// keyed by fqid. The server shuts down with the test.
func NewFakeDatastore(t *testing.T, initial map[string]map[string]any) *FakeDatastore {
	t.Helper()
	f := &FakeDatastore{
		t:        t,
		models:   map[string]map[string]any{},
		deleted:  map[string]map[string]any{},
		modelPos: map[string]datastore.Position{},
		fieldPos: map[string]datastore.Position{},
		position: 1,
		nextID:   map[string]int{},
	}
	for fqid, fields := range initial {
		copied := map[string]any{}
		for k, v := range fields {
			copied[k] = v
		}
		coll, id := splitFQID(fqid)
		copied["id"] = id
		f.models[fqid] = copied
		f.modelPos[fqid] = 1
		if id >= f.nextID[coll] {
			f.nextID[coll] = id + 1
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/get", f.handleGet)
	mux.HandleFunc("/get_many", f.handleGetMany)
	mux.HandleFunc("/get_all", f.handleGetAll)
	mux.HandleFunc("/filter", f.handleFilter)
	mux.HandleFunc("/exists", f.handleExists)
	mux.HandleFunc("/count", f.handleCount)
	mux.HandleFunc("/min", f.handleMinMax("min"))
	mux.HandleFunc("/max", f.handleMinMax("max"))
	mux.HandleFunc("/reserve_ids", f.handleReserveIDs)
	mux.HandleFunc("/write", f.handleWrite)
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// URL is the base URL of both the reader and writer endpoints.
func (f *FakeDatastore) URL() string { return f.srv.URL }

// Client returns a datastore client wired to this fake.
func (f *FakeDatastore) Client() *datastore.Client {
	return datastore.New(f.srv.URL, f.srv.URL, zap.NewNop())
}

// Model returns a copy of the stored fields of fqid, or nil when the
// model does not exist.
func (f *FakeDatastore) Model(fqid string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.models[fqid]
	if src == nil {
		return nil
	}
	out := map[string]any{}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// WriteCount returns the number of accepted write requests.
func (f *FakeDatastore) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// LastWriteUserID returns the user_id of the most recent write request.
func (f *FakeDatastore) LastWriteUserID() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return -1
	}
	return f.writes[len(f.writes)-1].UserID
}

// LastWriteInformation returns the information map of the most recent
// write request.
func (f *FakeDatastore) LastWriteInformation() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return nil
	}
	return f.writes[len(f.writes)-1].Information
}

func splitFQID(fqid string) (string, int) {
	idx := strings.LastIndexByte(fqid, '/')
	var id int
	fmt.Sscanf(fqid[idx+1:], "%d", &id)
	return fqid[:idx], id
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeWireError(w http.ResponseWriter, status int, typ, msg, fqid string, keys []string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{
		"type": typ, "msg": msg, "fqid": fqid, "keys": keys,
	}})
}

func (f *FakeDatastore) view(fqid string, fields []string) map[string]any {
	model := f.models[fqid]
	if model == nil {
		return nil
	}
	out := map[string]any{}
	if fields == nil {
		for k, v := range model {
			out[k] = v
		}
	} else {
		for _, name := range fields {
			if v, ok := model[name]; ok {
				out[name] = v
			}
		}
	}
	out["meta_position"] = int(f.modelPos[fqid])
	return out
}

func (f *FakeDatastore) handleGet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FQID         string   `json:"fqid"`
		MappedFields []string `json:"mapped_fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.view(req.FQID, req.MappedFields)
	if out == nil {
		writeWireError(w, http.StatusBadRequest, "MODEL_DOES_NOT_EXIST", "model does not exist", req.FQID, nil)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeDatastore) handleGetMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requests []struct {
			Collection string   `json:"collection"`
			IDs        []int    `json:"ids"`
			Fields     []string `json:"mapped_fields"`
		} `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]map[int]map[string]any{}
	for _, part := range req.Requests {
		if out[part.Collection] == nil {
			out[part.Collection] = map[int]map[string]any{}
		}
		for _, id := range part.IDs {
			fqid := fmt.Sprintf("%s/%d", part.Collection, id)
			if m := f.view(fqid, part.Fields); m != nil {
				out[part.Collection][id] = m
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeDatastore) collect(collection string) map[int]map[string]any {
	out := map[int]map[string]any{}
	prefix := collection + "/"
	for fqid := range f.models {
		if strings.HasPrefix(fqid, prefix) {
			_, id := splitFQID(fqid)
			out[id] = f.view(fqid, nil)
		}
	}
	return out
}

func (f *FakeDatastore) handleGetAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collection   string   `json:"collection"`
		MappedFields []string `json:"mapped_fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int]map[string]any{}
	for id := range f.collect(req.Collection) {
		fqid := fmt.Sprintf("%s/%d", req.Collection, id)
		out[id] = f.view(fqid, req.MappedFields)
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *FakeDatastore) filtered(collection string, filter any) map[int]map[string]any {
	out := map[int]map[string]any{}
	for id, m := range f.collect(collection) {
		if matchFilterJSON(m, filter) {
			out[id] = m
		}
	}
	return out
}

func (f *FakeDatastore) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collection   string   `json:"collection"`
		Filter       any      `json:"filter"`
		MappedFields []string `json:"mapped_fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data := map[int]map[string]any{}
	for id := range f.filtered(req.Collection, req.Filter) {
		fqid := fmt.Sprintf("%s/%d", req.Collection, id)
		data[id] = f.view(fqid, req.MappedFields)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data, "position": int(f.position)})
}

func (f *FakeDatastore) handleExists(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collection string `json:"collection"`
		Filter     any    `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"exists": len(f.filtered(req.Collection, req.Filter)) > 0})
}

func (f *FakeDatastore) handleCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collection string `json:"collection"`
		Filter     any    `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(f.filtered(req.Collection, req.Filter))})
}

func (f *FakeDatastore) handleMinMax(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Collection string `json:"collection"`
			Filter     any    `json:"filter"`
			Field      string `json:"field"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		var best *float64
		for _, m := range f.filtered(req.Collection, req.Filter) {
			v, ok := toFloatJSON(m[req.Field])
			if !ok {
				continue
			}
			if best == nil || (mode == "min" && v < *best) || (mode == "max" && v > *best) {
				val := v
				best = &val
			}
		}
		var out any
		if best != nil {
			out = *best
		}
		writeJSON(w, http.StatusOK, map[string]any{mode: out})
	}
}

func (f *FakeDatastore) handleReserveIDs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Collection string `json:"collection"`
		Amount     int    `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextID[req.Collection] == 0 {
		f.nextID[req.Collection] = 1
	}
	ids := make([]int, req.Amount)
	for i := range ids {
		ids[i] = f.nextID[req.Collection]
		f.nextID[req.Collection]++
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (f *FakeDatastore) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), "", nil)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var broken []string
	for key, seen := range req.LockedFields {
		parts := strings.Split(key, "/")
		var cur datastore.Position
		switch len(parts) {
		case 2:
			cur = f.modelPos[key]
		case 3:
			cur = f.fieldPos[key]
		default:
			writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", "bad lock key "+key, "", nil)
			return
		}
		if cur > seen {
			broken = append(broken, key)
		}
	}
	if len(broken) > 0 {
		sort.Strings(broken)
		writeWireError(w, http.StatusConflict, "MODEL_LOCKED", "locked fields changed", "", broken)
		return
	}

	// Validate before mutating so a rejected request leaves no trace.
	// Events apply in payload order, so an update may follow a create
	// of the same model within one request.
	created := map[string]bool{}
	removed := map[string]bool{}
	for _, e := range req.Events {
		exists := (f.models[e.FQID] != nil || created[e.FQID]) && !removed[e.FQID]
		gone := (f.deleted[e.FQID] != nil || removed[e.FQID]) && !created[e.FQID]
		switch e.Type {
		case "create":
			if exists || gone {
				writeWireError(w, http.StatusBadRequest, "MODEL_EXISTS", "model already exists", e.FQID, nil)
				return
			}
			created[e.FQID] = true
			delete(removed, e.FQID)
		case "update":
			if !exists {
				writeWireError(w, http.StatusBadRequest, "MODEL_DOES_NOT_EXIST", "model does not exist", e.FQID, nil)
				return
			}
		case "delete":
			if !exists {
				writeWireError(w, http.StatusBadRequest, "MODEL_DOES_NOT_EXIST", "model does not exist", e.FQID, nil)
				return
			}
			removed[e.FQID] = true
			delete(created, e.FQID)
		case "restore":
			if !gone {
				writeWireError(w, http.StatusBadRequest, "MODEL_NOT_DELETED", "model is not deleted", e.FQID, nil)
				return
			}
			created[e.FQID] = true
			delete(removed, e.FQID)
		default:
			writeWireError(w, http.StatusBadRequest, "INVALID_FORMAT", "unknown event type "+e.Type, e.FQID, nil)
			return
		}
	}

	f.position++
	for _, e := range req.Events {
		switch e.Type {
		case "create":
			fields := map[string]any{}
			for k, v := range e.Fields {
				if v != nil {
					fields[k] = v
				}
			}
			_, id := splitFQID(e.FQID)
			fields["id"] = id
			f.models[e.FQID] = fields
			f.touch(e.FQID, fields)
		case "update":
			model := f.models[e.FQID]
			for k, v := range e.Fields {
				if v == nil {
					delete(model, k)
				} else {
					model[k] = v
				}
			}
			f.touch(e.FQID, e.Fields)
		case "delete":
			f.deleted[e.FQID] = f.models[e.FQID]
			delete(f.models, e.FQID)
			f.touch(e.FQID, f.deleted[e.FQID])
		case "restore":
			f.models[e.FQID] = f.deleted[e.FQID]
			delete(f.deleted, e.FQID)
			f.touch(e.FQID, f.models[e.FQID])
		}
	}
	f.writes = append(f.writes, req)
	w.WriteHeader(http.StatusOK)
}

func (f *FakeDatastore) touch(fqid string, fields map[string]any) {
	f.modelPos[fqid] = f.position
	for name := range fields {
		f.fieldPos[fqid+"/"+name] = f.position
	}
}

// matchFilterJSON evaluates a decoded filter tree against one model.
func matchFilterJSON(model map[string]any, filter any) bool {
	if filter == nil {
		return true
	}
	node, ok := filter.(map[string]any)
	if !ok {
		return false
	}
	if children, ok := node["and_filter"].([]any); ok {
		for _, c := range children {
			if !matchFilterJSON(model, c) {
				return false
			}
		}
		return true
	}
	if children, ok := node["or_filter"].([]any); ok {
		for _, c := range children {
			if matchFilterJSON(model, c) {
				return true
			}
		}
		return false
	}
	if child, ok := node["not_filter"]; ok {
		return !matchFilterJSON(model, child)
	}

	field, _ := node["field"].(string)
	op, _ := node["operator"].(string)
	want := node["value"]
	have := model[field]
	switch op {
	case "=", "!=":
		eq := false
		if af, ok := toFloatJSON(have); ok {
			if bf, bok := toFloatJSON(want); bok {
				eq = af == bf
			}
		} else {
			eq = have == want
		}
		if op == "=" {
			return eq
		}
		return !eq
	case "<", ">", "<=", ">=":
		a, aok := toFloatJSON(have)
		b, bok := toFloatJSON(want)
		if !aok || !bok {
			return false
		}
		switch op {
		case "<":
			return a < b
		case ">":
			return a > b
		case "<=":
			return a <= b
		default:
			return a >= b
		}
	}
	return false
}

func toFloatJSON(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
