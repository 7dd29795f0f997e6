package actions

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/policy/permcheck"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/app/system/payload"
	"github.com/plenumhq/plenum/internal/app/system/relations"
)

// lockRetries is how often a batch is re-run after a ModelLocked reject
// before the error reaches the caller.
const lockRetries = 2

// Blob is one entry of the request body: an action name with its data
// array.
type Blob struct {
	Action string           `json:"action"`
	Data   []map[string]any `json:"data"`
}

// Executor runs batches of action blobs. It is shared across requests.
type Executor struct {
	client   *datastore.Client
	models   *models.Registry
	registry *Registry
	log      *zap.Logger
}

func NewExecutor(client *datastore.Client, modelsReg *models.Registry, registry *Registry, log *zap.Logger) *Executor {
	return &Executor{client: client, models: modelsReg, registry: registry, log: log}
}

// Execute validates and runs the blobs in order and submits one atomic
// write. On a lock conflict the whole batch is re-run from scratch.
func (e *Executor) Execute(ctx context.Context, userID int, internal bool, blobs []Blob) ([][]any, error) {
	if len(blobs) == 0 {
		return nil, apperror.New(apperror.BadRequest, "The request must contain at least one action.")
	}
	for _, blob := range blobs {
		act, sch, ok := e.registry.Get(blob.Action)
		if !ok {
			return nil, apperror.New(apperror.BadRequest, "Action %s does not exist.", blob.Action)
		}
		data := make([]any, len(blob.Data))
		for i, inst := range blob.Data {
			data[i] = payload.Normalize(inst)
		}
		if err := sch.Validate(data); err != nil {
			return nil, apperror.Wrap(apperror.BadRequest, err, "Schema validation of %s failed", act.Name)
		}
	}

	var results [][]any
	attempt := func() error {
		var err error
		results, err = e.run(ctx, userID, internal, blobs)
		if err != nil {
			var locked datastore.LockedError
			if errors.As(err, &locked) {
				e.log.Info("write rejected by lock check, retrying", zap.Strings("keys", locked.Keys))
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newBackoff(), lockRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		var locked datastore.LockedError
		if errors.As(err, &locked) {
			return nil, apperror.Wrap(apperror.BadRequest, err,
				"The request could not be committed after %d attempts, the data changed concurrently.", lockRetries+1)
		}
		return nil, err
	}
	return results, nil
}

func newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return b
}

// run is one attempt over a fresh fetcher.
func (e *Executor) run(ctx context.Context, userID int, internal bool, blobs []Blob) ([][]any, error) {
	fetch := datastore.NewFetcher(e.client)
	req := &Request{
		Fetch:    fetch,
		Checker:  permcheck.New(fetch, userID),
		Resolver: relations.New(e.models, fetch),
		Models:   e.models,
		UserID:   userID,
		Internal: internal,
		Log:      e.log,
	}

	var all []datastore.Event
	information := map[string][]string{}
	results := make([][]any, len(blobs))

	for i, blob := range blobs {
		act, _, _ := e.registry.Get(blob.Action)
		results[i] = make([]any, len(blob.Data))
		for j, instance := range blob.Data {
			result, events, err := act.Handle(ctx, req, payload.NormalizeMap(instance))
			if err != nil {
				return nil, wrapDatastoreError(err)
			}
			results[i][j] = result
			all = append(all, events...)
			fetch.ApplyEvents(events)
			for _, ev := range events {
				information[ev.FQID.String()] = appendUnique(information[ev.FQID.String()], act.Name)
			}
		}
	}

	if len(all) == 0 {
		return results, nil
	}
	wr := datastore.WriteRequest{
		UserID:       userID,
		Information:  information,
		LockedFields: fetch.Locks(),
		Events:       all,
	}
	if err := e.client.Write(ctx, wr); err != nil {
		return nil, err
	}
	return results, nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

