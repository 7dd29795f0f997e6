package datastore

import (
	"context"
	"errors"
	"sort"

	"github.com/plenumhq/plenum/internal/domain"
)

// Fetcher is the per-request read context. It accumulates optimistic-lock
// fingerprints for every read that will inform a write, and it layers the
// batch's pending events over datastore reads so later handlers in the
// same batch see earlier handlers' effects without a round trip.
//
// A Fetcher is not safe for concurrent use; each request gets its own.
type Fetcher struct {
	client *Client
	lock   bool

	locks   map[string]Position
	changed map[string]map[string]any
	created map[string]bool
	deleted map[string]bool
}

// NewFetcher returns a Fetcher that locks every read. Action handlers use
// this; the executor injects the accumulated locks into the WriteRequest.
func NewFetcher(client *Client) *Fetcher {
	f := NewReader(client)
	f.lock = true
	return f
}

// NewReader returns a Fetcher that does not lock. Presenters use this.
func NewReader(client *Client) *Fetcher {
	return &Fetcher{
		client:  client,
		locks:   map[string]Position{},
		changed: map[string]map[string]any{},
		created: map[string]bool{},
		deleted: map[string]bool{},
	}
}

// Locks returns the accumulated FQField -> position fingerprints.
func (f *Fetcher) Locks() map[string]Position {
	return f.locks
}

// ApplyEvents layers pending events over all subsequent reads.
func (f *Fetcher) ApplyEvents(events []Event) {
	for _, e := range events {
		key := e.FQID.String()
		switch e.Type {
		case EventCreate:
			fields := make(map[string]any, len(e.Fields))
			for k, v := range e.Fields {
				fields[k] = v
			}
			fields["id"] = e.FQID.ID
			f.changed[key] = fields
			f.created[key] = true
			delete(f.deleted, key)
		case EventUpdate:
			m := f.changed[key]
			if m == nil {
				m = map[string]any{}
				f.changed[key] = m
			}
			for k, v := range e.Fields {
				// nil survives in the overlay; merge treats it as removal.
				m[k] = v
			}
		case EventDelete:
			f.deleted[key] = true
		case EventRestore:
			delete(f.deleted, key)
		}
	}
}

// Get fetches the requested fields of one model. nil fields fetches all.
func (f *Fetcher) Get(ctx context.Context, fqid domain.FQID, fields ...string) (map[string]any, error) {
	key := fqid.String()
	if f.deleted[key] {
		return nil, NotFoundError{FQID: fqid}
	}

	var base map[string]any
	if f.created[key] {
		base = map[string]any{}
	} else {
		var err error
		base, err = f.client.Get(ctx, fqid, fields)
		if err != nil {
			var nf NotFoundError
			if errors.As(err, &nf) && f.changed[key] != nil {
				base = map[string]any{}
			} else {
				return nil, err
			}
		}
		f.recordLocks(fqid, fields, base)
	}

	merge(base, f.changed[key], fields)
	delete(base, "meta_position")
	return base, nil
}

// GetIfExists is Get, but a missing model yields (nil, false, nil).
func (f *Fetcher) GetIfExists(ctx context.Context, fqid domain.FQID, fields ...string) (map[string]any, bool, error) {
	m, err := f.Get(ctx, fqid, fields...)
	if err != nil {
		var nf NotFoundError
		if errors.As(err, &nf) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}

// GetMany fetches several models in one round trip, overlay applied.
func (f *Fetcher) GetMany(ctx context.Context, requests []GetManyRequest) (map[domain.Collection]map[int]map[string]any, error) {
	remote := make([]GetManyRequest, 0, len(requests))
	for _, r := range requests {
		ids := make([]int, 0, len(r.IDs))
		for _, id := range r.IDs {
			key := domain.FQID{Collection: r.Collection, ID: id}.String()
			if !f.created[key] && !f.deleted[key] {
				ids = append(ids, id)
			}
		}
		if len(ids) > 0 {
			remote = append(remote, GetManyRequest{Collection: r.Collection, IDs: ids, Fields: r.Fields})
		}
	}

	out := map[domain.Collection]map[int]map[string]any{}
	if len(remote) > 0 {
		fetched, err := f.client.GetMany(ctx, remote)
		if err != nil {
			return nil, err
		}
		for col, models := range fetched {
			out[col] = models
			for id, m := range models {
				f.recordLocks(domain.FQID{Collection: col, ID: id}, nil, m)
			}
		}
	}

	for _, r := range requests {
		for _, id := range r.IDs {
			fqid := domain.FQID{Collection: r.Collection, ID: id}
			key := fqid.String()
			if f.deleted[key] {
				delete(out[r.Collection], id)
				continue
			}
			overlay := f.changed[key]
			if overlay == nil {
				continue
			}
			if out[r.Collection] == nil {
				out[r.Collection] = map[int]map[string]any{}
			}
			m := out[r.Collection][id]
			if m == nil {
				if !f.created[key] {
					continue
				}
				m = map[string]any{}
				out[r.Collection][id] = m
			}
			merge(m, overlay, r.Fields)
			delete(m, "meta_position")
		}
	}
	return out, nil
}

// Filter fetches the models matching the filter tree, overlay applied.
// Models created earlier in the batch are matched locally against the
// filter so handlers see them too.
func (f *Fetcher) Filter(ctx context.Context, collection domain.Collection, filter domain.Filter, fields ...string) (map[int]map[string]any, error) {
	data, err := f.client.Filter(ctx, collection, filter, fields)
	if err != nil {
		return nil, err
	}
	for id, m := range data {
		f.recordLocks(domain.FQID{Collection: collection, ID: id}, fields, m)
	}
	f.overlayCollection(collection, data, filter, fields)
	return data, nil
}

// GetAll fetches every model of the collection, overlay applied.
func (f *Fetcher) GetAll(ctx context.Context, collection domain.Collection, fields ...string) (map[int]map[string]any, error) {
	data, err := f.client.GetAll(ctx, collection, fields)
	if err != nil {
		return nil, err
	}
	for id, m := range data {
		f.recordLocks(domain.FQID{Collection: collection, ID: id}, fields, m)
	}
	f.overlayCollection(collection, data, nil, fields)
	return data, nil
}

// Exists reports whether a model matches the filter, overlay applied.
func (f *Fetcher) Exists(ctx context.Context, collection domain.Collection, filter domain.Filter) (bool, error) {
	n, err := f.Count(ctx, collection, filter)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count counts the models matching the filter, overlay applied.
func (f *Fetcher) Count(ctx context.Context, collection domain.Collection, filter domain.Filter) (int, error) {
	if f.touchesCollection(collection) {
		data, err := f.Filter(ctx, collection, filter, "id")
		if err != nil {
			return 0, err
		}
		return len(data), nil
	}
	return f.client.Count(ctx, collection, filter)
}

// Min returns the smallest value of field among matching models.
func (f *Fetcher) Min(ctx context.Context, collection domain.Collection, filter domain.Filter, field string) (any, error) {
	return f.client.Min(ctx, collection, filter, field)
}

// Max returns the largest value of field among matching models.
func (f *Fetcher) Max(ctx context.Context, collection domain.Collection, filter domain.Filter, field string) (any, error) {
	return f.client.Max(ctx, collection, filter, field)
}

// ReserveIDs hands out fresh ids for the collection.
func (f *Fetcher) ReserveIDs(ctx context.Context, collection domain.Collection, amount int) ([]int, error) {
	return f.client.ReserveIDs(ctx, collection, amount)
}

func (f *Fetcher) touchesCollection(collection domain.Collection) bool {
	prefix := string(collection) + "/"
	for key := range f.changed {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return true
		}
	}
	for key := range f.deleted {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func (f *Fetcher) overlayCollection(collection domain.Collection, data map[int]map[string]any, filter domain.Filter, fields []string) {
	for id := range data {
		key := domain.FQID{Collection: collection, ID: id}.String()
		if f.deleted[key] {
			delete(data, id)
			continue
		}
		if overlay := f.changed[key]; overlay != nil {
			merge(data[id], overlay, fields)
		}
		delete(data[id], "meta_position")
	}
	// Locally match models created earlier in the batch.
	for key, isCreated := range f.created {
		if !isCreated || f.deleted[key] {
			continue
		}
		fqid, err := domain.ParseFQID(key)
		if err != nil || fqid.Collection != collection {
			continue
		}
		if _, ok := data[fqid.ID]; ok {
			continue
		}
		model := f.changed[key]
		if filter != nil && !matchFilter(model, filter) {
			continue
		}
		m := map[string]any{}
		merge(m, model, fields)
		data[fqid.ID] = m
	}
}

func (f *Fetcher) recordLocks(fqid domain.FQID, fields []string, model map[string]any) {
	if !f.lock || model == nil {
		return
	}
	pos := Position(Int(model["meta_position"]))
	if pos == 0 {
		return
	}
	if fields == nil {
		fields = make([]string, 0, len(model))
		for name := range model {
			fields = append(fields, name)
		}
		sort.Strings(fields)
	}
	for _, name := range fields {
		if name == "meta_position" || name == "meta_deleted" {
			continue
		}
		key := fqid.Field(name).String()
		if cur, ok := f.locks[key]; !ok || pos > cur {
			f.locks[key] = pos
		}
	}
}

// merge copies the overlay's values for the selected fields onto dst.
// A nil selection copies everything.
func merge(dst, overlay map[string]any, fields []string) {
	if overlay == nil {
		return
	}
	if fields == nil {
		for k, v := range overlay {
			setOrDelete(dst, k, v)
		}
		return
	}
	for _, k := range fields {
		if v, ok := overlay[k]; ok {
			setOrDelete(dst, k, v)
		}
	}
	if v, ok := overlay["id"]; ok {
		dst["id"] = v
	}
}

func setOrDelete(dst map[string]any, k string, v any) {
	if v == nil {
		delete(dst, k)
		return
	}
	dst[k] = v
}

// matchFilter evaluates a filter tree locally against a single model.
func matchFilter(model map[string]any, filter domain.Filter) bool {
	switch node := filter.(type) {
	case domain.And:
		for _, child := range node {
			if !matchFilter(model, child) {
				return false
			}
		}
		return true
	case domain.Or:
		for _, child := range node {
			if matchFilter(model, child) {
				return true
			}
		}
		return false
	case domain.Not:
		return !matchFilter(model, node.Filter)
	case domain.FilterOperator:
		return matchOperator(model[node.Field], node.Operator, node.Value)
	default:
		return false
	}
}

func matchOperator(have any, op string, want any) bool {
	switch op {
	case "=":
		return equalJSON(have, want)
	case "!=":
		return !equalJSON(have, want)
	}
	a, aok := toFloat(have)
	b, bok := toFloat(want)
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
	case ">=":
		return a >= b
	}
	return false
}

func equalJSON(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
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
