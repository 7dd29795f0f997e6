package action_test

import (
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/actions/catalog"
	"github.com/plenumhq/plenum/internal/app/features/action"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/testutil"
)

func newRouter(t *testing.T, fake *testutil.FakeDatastore) *action.Handler {
	t.Helper()
	executor := actions.NewExecutor(fake.Client(), models.New(), catalog.MustNew(), zap.NewNop())
	return action.NewHandler(executor, zap.NewNop())
}

func TestServeExecutesBatch(t *testing.T) {
	world := testutil.MeetingWorld()
	world["user/1"]["organization_management_level"] = "can_manage_organization"
	fake := testutil.NewFakeDatastore(t, world)
	h := newRouter(t, fake)

	req := testutil.PostJSON(t, "/", []map[string]any{
		{"action": "committee.create", "data": []map[string]any{
			{"organization_id": 1, "name": "Elections"},
		}},
	})
	rec := httptest.NewRecorder()
	action.Routes(h).ServeHTTP(rec, testutil.AsUser(req, 1))

	if rec.Code != 200 {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body := testutil.DecodeBody(t, rec)
	if body["success"] != true || body["message"] != "Actions handled successfully" {
		t.Errorf("envelope = %v", body)
	}
	if _, ok := body["results"].([]any); !ok {
		t.Errorf("results missing: %v", body)
	}
	if fake.Model("committee/2") == nil {
		t.Error("committee was not created")
	}
}

func TestServeRejectsAnonymous(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())
	h := newRouter(t, fake)

	req := testutil.PostJSON(t, "/", []map[string]any{
		{"action": "committee.create", "data": []map[string]any{{"organization_id": 1, "name": "X"}}},
	})
	rec := httptest.NewRecorder()
	action.Routes(h).ServeHTTP(rec, req)

	if rec.Code != 403 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := testutil.DecodeBody(t, rec)
	if body["success"] != false || body["message"] != "Anonymous is not allowed to execute actions." {
		t.Errorf("envelope = %v", body)
	}
	if fake.WriteCount() != 0 {
		t.Errorf("writes = %d", fake.WriteCount())
	}
}

func TestServeInternalPassesAnonymousGate(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())
	h := newRouter(t, fake)

	req := testutil.PostJSON(t, "/", []map[string]any{})
	rec := httptest.NewRecorder()
	action.Routes(h).ServeHTTP(rec, testutil.AsInternal(req))

	// The empty batch is rejected by the executor, not the identity gate.
	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := testutil.DecodeBody(t, rec)
	if body["message"] != "The request must contain at least one action." {
		t.Errorf("envelope = %v", body)
	}
}

func TestServeRejectsMalformedBody(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())
	h := newRouter(t, fake)

	req := testutil.PostJSON(t, "/", map[string]any{"action": "committee.create"})
	rec := httptest.NewRecorder()
	action.Routes(h).ServeHTTP(rec, testutil.AsUser(req, 1))

	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := testutil.DecodeBody(t, rec)
	if body["message"] != "The request body must be a list of actions." {
		t.Errorf("envelope = %v", body)
	}
}

func TestServeMapsPermissionDenied(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())
	h := newRouter(t, fake)

	req := testutil.PostJSON(t, "/", []map[string]any{
		{"action": "committee.create", "data": []map[string]any{
			{"organization_id": 1, "name": "Elections"},
		}},
	})
	rec := httptest.NewRecorder()
	action.Routes(h).ServeHTTP(rec, testutil.AsUser(req, 10))

	if rec.Code != 403 {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	body := testutil.DecodeBody(t, rec)
	if body["message"] != "Missing organization management level: can_manage_organization" {
		t.Errorf("envelope = %v", body)
	}
}
