// Package health serves the GET /health endpoint.
package health

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/system/timeouts"
	"github.com/plenumhq/plenum/internal/domain"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *datastore.Client
	Log    *zap.Logger
}

// NewHandler constructs a health Handler with the datastore client and logger.
func NewHandler(client *datastore.Client, logger *zap.Logger) *Handler {
	return &Handler{Client: client, Log: logger}
}

type healthInfo struct {
	Status    string `json:"status"`
	Datastore string `json:"datastore"`
	Error     string `json:"error,omitempty"`
}

type healthResponse struct {
	HealthInfo healthInfo `json:"healthinfo"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "healthinfo": { "status":"ok", "datastore":"connected" } }
//
// On datastore failure: 503 with status "error".
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{HealthInfo: healthInfo{Status: "ok", Datastore: "connected"}}
	if _, err := h.Client.Get(ctx, domain.FQID{Collection: "organization", ID: 1}, []string{"id"}); err != nil {
		h.Log.Error("health-check: datastore read failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.HealthInfo.Status = "error"
		resp.HealthInfo.Datastore = "disconnected"
		resp.HealthInfo.Error = err.Error()
	}
	_ = json.NewEncoder(w).Encode(resp)
}
