package testutil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/plenumhq/plenum/internal/app/system/auth"
)

// PostJSON builds a POST request with the JSON-encoded body.
func PostJSON(t *testing.T, target string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encoding request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AsUser stamps the request with an authenticated identity, the way the
// auth middleware would.
func AsUser(r *http.Request, userID int) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: userID}))
}

// AsInternal stamps the request as an internal service-to-service call.
func AsInternal(r *http.Request) *http.Request {
	return r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{Internal: true}))
}

// DecodeBody decodes the recorded JSON response body into a map.
func DecodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return out
}
