// Package presenter serves the POST /presenter endpoint: read-only
// queries answered as a list parallel to the request.
package presenter

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/presenters"
	"github.com/plenumhq/plenum/internal/app/system/auth"
	"github.com/plenumhq/plenum/internal/app/system/timeouts"
)

// Handler holds the dependencies of the presenter endpoint.
type Handler struct {
	Dispatcher *presenters.Dispatcher
	Log        *zap.Logger
}

func NewHandler(dispatcher *presenters.Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{Dispatcher: dispatcher, Log: logger}
}

// Serve handles POST /presenter.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	id := auth.FromContext(ctx)

	var blobs []presenters.Blob
	if err := json.NewDecoder(r.Body).Decode(&blobs); err != nil {
		h.fail(w, apperror.Wrap(apperror.BadRequest, err, "The request body must be a list of presenters."))
		return
	}

	results, err := h.Dispatcher.Execute(ctx, id.UserID, blobs)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(results)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.Internal {
		h.Log.Error("presenter request failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": apperror.Message(err),
	})
}
