package actions

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/domain"
	"github.com/plenumhq/plenum/internal/testutil"
)

var renameSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"id":   map[string]any{"type": "integer", "minimum": 1},
		"name": map[string]any{"type": "string"},
	},
	"required":             []any{"id", "name"},
	"additionalProperties": false,
}

// renameTopic reads the topic so the write locks it, then renames it.
func renameTopic(ctx context.Context, r *Request, instance map[string]any) (any, []datastore.Event, error) {
	id := datastore.Int(instance["id"])
	fqid := domain.FQID{Collection: "topic", ID: id}
	if _, err := r.Fetch.Get(ctx, fqid, "title"); err != nil {
		return nil, nil, err
	}
	return nil, []datastore.Event{
		datastore.UpdateEvent(fqid, map[string]any{"title": instance["name"]}),
	}, nil
}

func testExecutor(t *testing.T, fake *testutil.FakeDatastore, acts ...*Action) *Executor {
	t.Helper()
	reg, err := NewRegistry(acts...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return NewExecutor(fake.Client(), models.New(), reg, zap.NewNop())
}

func TestExecuteEmptyBatch(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, nil)
	e := testExecutor(t, fake)

	_, err := e.Execute(context.Background(), 1, false, nil)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if got := apperror.Message(err); got != "The request must contain at least one action." {
		t.Errorf("message = %q", got)
	}
}

func TestExecuteUnknownAction(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, nil)
	e := testExecutor(t, fake)

	_, err := e.Execute(context.Background(), 1, false, []Blob{
		{Action: "nope.create", Data: []map[string]any{{}}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if got := apperror.Message(err); got != "Action nope.create does not exist." {
		t.Errorf("message = %q", got)
	}
}

func TestExecuteValidatesBeforeRunning(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, map[string]map[string]any{
		"topic/1": {"title": "old"},
	})
	e := testExecutor(t, fake, &Action{Name: "topic.rename", Schema: renameSchema, Handle: renameTopic})

	// Second instance is invalid, so the first must not run either.
	_, err := e.Execute(context.Background(), 1, false, []Blob{
		{Action: "topic.rename", Data: []map[string]any{
			{"id": 1, "name": "new"},
			{"id": 1},
		}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if fake.WriteCount() != 0 {
		t.Errorf("writes = %d, want 0", fake.WriteCount())
	}
	if got := fake.Model("topic/1")["title"]; got != "old" {
		t.Errorf("title = %v, want old", got)
	}
}

func TestExecuteSingleWritePerBatch(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, map[string]map[string]any{
		"topic/1": {"title": "a"},
		"topic/2": {"title": "b"},
	})
	e := testExecutor(t, fake, &Action{Name: "topic.rename", Schema: renameSchema, Handle: renameTopic})

	results, err := e.Execute(context.Background(), 7, false, []Blob{
		{Action: "topic.rename", Data: []map[string]any{
			{"id": 1, "name": "x"},
			{"id": 2, "name": "y"},
		}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(results) != 1 || len(results[0]) != 2 {
		t.Fatalf("results = %v", results)
	}
	if fake.WriteCount() != 1 {
		t.Errorf("writes = %d, want 1", fake.WriteCount())
	}
	if fake.LastWriteUserID() != 7 {
		t.Errorf("write user = %d, want 7", fake.LastWriteUserID())
	}
	if got := fake.Model("topic/1")["title"]; got != "x" {
		t.Errorf("topic/1 title = %v", got)
	}
	if got := fake.Model("topic/2")["title"]; got != "y" {
		t.Errorf("topic/2 title = %v", got)
	}
	info := fake.LastWriteInformation()
	if len(info["topic/1"]) != 1 || info["topic/1"][0] != "topic.rename" {
		t.Errorf("information for topic/1 = %v", info["topic/1"])
	}
}

func TestExecuteRetriesOnLockConflict(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, map[string]map[string]any{
		"topic/1": {"title": "old"},
	})

	// The first attempt invalidates its own lock by writing to the
	// model out of band after reading it. The retry runs against the
	// new position and goes through.
	conflicted := false
	sabotage := func(ctx context.Context, r *Request, instance map[string]any) (any, []datastore.Event, error) {
		result, events, err := renameTopic(ctx, r, instance)
		if err != nil {
			return nil, nil, err
		}
		if !conflicted {
			conflicted = true
			wr := datastore.WriteRequest{
				UserID: 99,
				Events: []datastore.Event{
					datastore.UpdateEvent(domain.FQID{Collection: "topic", ID: 1}, map[string]any{"title": "raced"}),
				},
			}
			if err := fake.Client().Write(ctx, wr); err != nil {
				t.Fatalf("out of band write: %v", err)
			}
		}
		return result, events, nil
	}
	e := testExecutor(t, fake, &Action{Name: "topic.rename", Schema: renameSchema, Handle: sabotage})

	_, err := e.Execute(context.Background(), 1, false, []Blob{
		{Action: "topic.rename", Data: []map[string]any{{"id": 1, "name": "new"}}},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := fake.Model("topic/1")["title"]; got != "new" {
		t.Errorf("title = %v, want new", got)
	}
	// Out-of-band write plus the successful retry.
	if fake.WriteCount() != 2 {
		t.Errorf("writes = %d, want 2", fake.WriteCount())
	}
}

func TestExecutePermanentErrorDoesNotRetry(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, nil)
	calls := 0
	failing := func(ctx context.Context, r *Request, instance map[string]any) (any, []datastore.Event, error) {
		calls++
		return nil, nil, apperror.New(apperror.BadRequest, "No.")
	}
	e := testExecutor(t, fake, &Action{Name: "topic.rename", Schema: renameSchema, Handle: failing})

	_, err := e.Execute(context.Background(), 1, false, []Blob{
		{Action: "topic.rename", Data: []map[string]any{{"id": 1, "name": "x"}}},
	})
	if err == nil {
		t.Fatal("expected rejection")
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
}
