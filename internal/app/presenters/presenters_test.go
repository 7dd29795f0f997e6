package presenters_test

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/presenters"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/testutil"
)

func run(t *testing.T, fake *testutil.FakeDatastore, userID int, blobs []presenters.Blob) ([]any, error) {
	t.Helper()
	reg, err := presenters.NewRegistry(presenters.Builtin()...)
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	d := presenters.NewDispatcher(fake.Client(), models.New(), reg, nil, zap.NewNop())
	return d.Execute(context.Background(), userID, blobs)
}

func TestExecuteEmptyBatch(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	_, err := run(t, fake, 1, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := apperror.Message(err); got != "The request must contain at least one presenter." {
		t.Errorf("message = %q", got)
	}
	if kind := apperror.KindOf(err); kind != apperror.BadRequest {
		t.Errorf("kind = %v, want BadRequest", kind)
	}
}

func TestExecuteUnknownPresenter(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	_, err := run(t, fake, 1, []presenters.Blob{{Presenter: "quorum"}})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := apperror.Message(err); got != "Presenter quorum does not exist." {
		t.Errorf("message = %q", got)
	}
}

func TestExecuteAnonymousGate(t *testing.T) {
	world := testutil.MeetingWorld()
	fake := testutil.NewFakeDatastore(t, world)

	_, err := run(t, fake, 0, []presenters.Blob{
		{Presenter: "number_of_users", Data: map[string]any{"number_of_users_to_add_or_activate": 1}},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := apperror.Message(err); got != "Anonymous is not allowed to call number_of_users." {
		t.Errorf("message = %q", got)
	}

	// Guest presenters stay open.
	results, err := run(t, fake, 0, []presenters.Blob{{Presenter: "server_time"}})
	if err != nil {
		t.Fatalf("server_time: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
}

func TestExecuteValidatesSchema(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_users"
	fake := testutil.NewFakeDatastore(t, world)

	_, err := run(t, fake, 1, []presenters.Blob{
		{Presenter: "number_of_users", Data: map[string]any{}},
	})
	if err == nil {
		t.Fatal("expected a schema error")
	}
	if got := apperror.Message(err); !strings.HasPrefix(got, "Schema validation of number_of_users failed") {
		t.Errorf("message = %q", got)
	}
}

func TestServerTime(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	results, err := run(t, fake, 1, []presenters.Blob{{Presenter: "server_time"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	out, ok := results[0].(map[string]any)
	if !ok {
		t.Fatalf("result = %v", results[0])
	}
	if ts, ok := out["server_time"].(int64); !ok || ts <= 0 {
		t.Errorf("server_time = %v", out["server_time"])
	}
}

func TestWhoami(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())

	results, err := run(t, fake, 1, []presenters.Blob{{Presenter: "whoami"}})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := results[0].(map[string]any)
	if out["user_id"] != 1 || out["guest"] != false {
		t.Errorf("identity = %v", out)
	}
	if out["username"] != "admin" {
		t.Errorf("username = %v", out["username"])
	}

	results, err = run(t, fake, 0, []presenters.Blob{{Presenter: "whoami"}})
	if err != nil {
		t.Fatalf("anonymous whoami: %v", err)
	}
	out = results[0].(map[string]any)
	if out["user_id"] != 0 || out["guest"] != true {
		t.Errorf("anonymous identity = %v", out)
	}
	if _, present := out["username"]; present {
		t.Errorf("anonymous answer carries a username: %v", out)
	}
}
