package presenter_test

import (
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/features/presenter"
	"github.com/plenumhq/plenum/internal/app/presenters"
	"github.com/plenumhq/plenum/internal/app/system/models"
	"github.com/plenumhq/plenum/internal/testutil"
)

func newHandler(t *testing.T, fake *testutil.FakeDatastore) *presenter.Handler {
	t.Helper()
	reg, err := presenters.NewRegistry(presenters.Builtin()...)
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	dispatcher := presenters.NewDispatcher(fake.Client(), models.New(), reg, nil, zap.NewNop())
	return presenter.NewHandler(dispatcher, zap.NewNop())
}

func TestServeAnswersBatch(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())
	h := newHandler(t, fake)

	req := testutil.PostJSON(t, "/", []map[string]any{
		{"presenter": "whoami"},
		{"presenter": "server_time"},
	})
	rec := httptest.NewRecorder()
	presenter.Routes(h).ServeHTTP(rec, testutil.AsUser(req, 1))

	if rec.Code != 200 {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var results []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %v", results)
	}
	if results[0]["username"] != "admin" {
		t.Errorf("whoami = %v", results[0])
	}
	if _, ok := results[1]["server_time"]; !ok {
		t.Errorf("server_time = %v", results[1])
	}
}

func TestServeAllowsGuestPresenters(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())
	h := newHandler(t, fake)

	req := testutil.PostJSON(t, "/", []map[string]any{{"presenter": "whoami"}})
	rec := httptest.NewRecorder()
	presenter.Routes(h).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var results []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	if results[0]["guest"] != true {
		t.Errorf("whoami = %v", results[0])
	}
}

func TestServeRejectsUnknownPresenter(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())
	h := newHandler(t, fake)

	req := testutil.PostJSON(t, "/", []map[string]any{{"presenter": "quorum"}})
	rec := httptest.NewRecorder()
	presenter.Routes(h).ServeHTTP(rec, testutil.AsUser(req, 1))

	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := testutil.DecodeBody(t, rec)
	if body["success"] != false || body["message"] != "Presenter quorum does not exist." {
		t.Errorf("envelope = %v", body)
	}
}

func TestServeRejectsMalformedBody(t *testing.T) {
	fake := testutil.NewFakeDatastore(t, testutil.MeetingWorld())
	h := newHandler(t, fake)

	req := testutil.PostJSON(t, "/", map[string]any{"presenter": "whoami"})
	rec := httptest.NewRecorder()
	presenter.Routes(h).ServeHTTP(rec, testutil.AsUser(req, 1))

	if rec.Code != 400 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := testutil.DecodeBody(t, rec)
	if body["message"] != "The request body must be a list of presenters." {
		t.Errorf("envelope = %v", body)
	}
}
