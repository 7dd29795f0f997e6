// Package presenters contains the read side: named, schema-checked
// queries that share the permission engine but never write.
package presenters

import (
	"bytes"
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/permcheck"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/app/system/payload"
)

// MediaService is the slice of the media service the presenters need.
type MediaService interface {
	HasFile(ctx context.Context, mediafileID int) (bool, error)
}

// Handler answers one presenter call.
type Handler func(ctx context.Context, r *Request, data map[string]any) (any, error)

// Presenter couples a name with its data schema and handler. Guest
// presenters accept anonymous callers.
type Presenter struct {
	Name         string
	Schema       map[string]any // nil means no data accepted
	GuestEnabled bool
	Handle       Handler
}

// Request is the per-call context. Reads go through a non-locking
// fetcher; presenters never contribute to a write.
type Request struct {
	Fetch   *datastore.Fetcher
	Checker *permcheck.Checker
	Models  *models.Registry
	Media   MediaService
	UserID  int
	Log     *zap.Logger
}

// Blob is one entry of the request body.
type Blob struct {
	Presenter string         `json:"presenter"`
	Data      map[string]any `json:"data"`
}

// Registry is the immutable presenter table.
type Registry struct {
	presenters map[string]*Presenter
	schemas    map[string]*jsonschema.Schema
}

func NewRegistry(list ...*Presenter) (*Registry, error) {
	r := &Registry{
		presenters: make(map[string]*Presenter, len(list)),
		schemas:    make(map[string]*jsonschema.Schema, len(list)),
	}
	for _, p := range list {
		if _, dup := r.presenters[p.Name]; dup {
			return nil, fmt.Errorf("presenter %q registered twice", p.Name)
		}
		r.presenters[p.Name] = p
		if p.Schema == nil {
			continue
		}
		sch, err := compileSchema(p.Name, p.Schema)
		if err != nil {
			return nil, fmt.Errorf("compiling schema of %q: %w", p.Name, err)
		}
		r.schemas[p.Name] = sch
	}
	return r, nil
}

func compileSchema(name string, instance map[string]any) (*jsonschema.Schema, error) {
	full := map[string]any{"$schema": "http://json-schema.org/draft-07/schema#"}
	for k, v := range instance {
		full[k] = v
	}
	raw, err := json.Marshal(full)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "presenters/" + name + ".json"
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Dispatcher runs presenter batches. It is shared across requests.
type Dispatcher struct {
	client   *datastore.Client
	models   *models.Registry
	registry *Registry
	media    MediaService
	log      *zap.Logger
}

func NewDispatcher(client *datastore.Client, modelsReg *models.Registry, registry *Registry, media MediaService, log *zap.Logger) *Dispatcher {
	return &Dispatcher{client: client, models: modelsReg, registry: registry, media: media, log: log}
}

// Execute answers the blobs in order. The result list is parallel to
// the request list.
func (d *Dispatcher) Execute(ctx context.Context, userID int, blobs []Blob) ([]any, error) {
	if len(blobs) == 0 {
		return nil, apperror.New(apperror.BadRequest, "The request must contain at least one presenter.")
	}
	results := make([]any, len(blobs))
	for i, blob := range blobs {
		p, ok := d.registry.presenters[blob.Presenter]
		if !ok {
			return nil, apperror.New(apperror.BadRequest, "Presenter %s does not exist.", blob.Presenter)
		}
		if userID == permcheck.AnonymousUserID && !p.GuestEnabled {
			return nil, apperror.New(apperror.PermissionDenied,
				"Anonymous is not allowed to call %s.", p.Name)
		}
		data := blob.Data
		if sch, ok := d.registry.schemas[p.Name]; ok {
			if data == nil {
				data = map[string]any{}
			}
			if err := sch.Validate(payload.Normalize(data)); err != nil {
				return nil, apperror.Wrap(apperror.BadRequest, err, "Schema validation of %s failed", p.Name)
			}
		}

		fetch := datastore.NewReader(d.client)
		req := &Request{
			Fetch:   fetch,
			Checker: permcheck.New(fetch, userID),
			Models:  d.models,
			Media:   d.media,
			UserID:  userID,
			Log:     d.log,
		}
		result, err := p.Handle(ctx, req, payload.NormalizeMap(data))
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}

