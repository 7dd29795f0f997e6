// Package auth talks to the external auth service and carries the
// resulting identity through the request context. The service receives
// the caller's cookies and Authentication header and answers with a
// user id; 0 means anonymous.
package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/apperror"
)

// AuthHeader is forwarded verbatim to the auth service.
const AuthHeader = "Authentication"

// InternalHeader authenticates service-to-service calls against the
// configured internal password.
const InternalHeader = "Internal-Authorization"

// Identity is what the middleware injects into the request context.
type Identity struct {
	UserID   int
	Internal bool
}

type ctxKey struct{}

// FromContext returns the identity of the request, anonymous when the
// middleware did not run.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(ctxKey{}).(Identity)
	return id
}

// WithIdentity is used by tests to fake an authenticated request.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// Client calls the auth service.
type Client struct {
	baseURL          string
	internalPassword string
	http             *http.Client
	log              *zap.Logger
}

func New(baseURL, internalPassword string, log *zap.Logger) *Client {
	return &Client{
		baseURL:          baseURL,
		internalPassword: internalPassword,
		http:             &http.Client{Timeout: 10 * time.Second},
		log:              log,
	}
}

type authResponse struct {
	UserID int `json:"user_id"`
}

// Authenticate forwards the caller's credentials and returns the user
// id the auth service resolved them to.
func (c *Client) Authenticate(ctx context.Context, from *http.Request) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/system/auth/authenticate", bytes.NewReader([]byte("{}")))
	if err != nil {
		return 0, fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v := from.Header.Get(AuthHeader); v != "" {
		req.Header.Set(AuthHeader, v)
	}
	for _, cookie := range from.Cookies() {
		req.AddCookie(cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, apperror.Wrap(apperror.AuthFailure, err, "The auth service is unreachable.")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("reading auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, apperror.New(apperror.AuthFailure, "Authentication failed.")
	}
	var out authResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("decoding auth response: %w", err)
	}
	return out.UserID, nil
}

// isInternal checks the internal password header in constant time.
func (c *Client) isInternal(r *http.Request) bool {
	if c.internalPassword == "" {
		return false
	}
	given := r.Header.Get(InternalHeader)
	return subtle.ConstantTimeCompare([]byte(given), []byte(c.internalPassword)) == 1
}

// Middleware resolves the caller identity before the views run. Auth
// service failures end the request here with the mapped status.
func Middleware(c *Client, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identity{}
			if c.isInternal(r) {
				id.Internal = true
			} else {
				userID, err := c.Authenticate(r.Context(), r)
				if err != nil {
					kind := apperror.KindOf(err)
					log.Warn("authentication failed", zap.Error(err))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(kind.HTTPStatus())
					_ = json.NewEncoder(w).Encode(map[string]any{
						"success": false,
						"message": apperror.Message(err),
					})
					return
				}
				id.UserID = userID
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
