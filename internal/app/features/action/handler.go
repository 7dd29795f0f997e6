// Package action serves the POST /action endpoint: ordered batches of
// named actions committed as one atomic write.
package action

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/apperror"
	"github.com/plenumhq/plenum/internal/app/system/auth"
	"github.com/plenumhq/plenum/internal/app/system/timeouts"
)

// Handler holds the dependencies of the action endpoint.
type Handler struct {
	Executor *actions.Executor
	Log      *zap.Logger
}

func NewHandler(executor *actions.Executor, logger *zap.Logger) *Handler {
	return &Handler{Executor: executor, Log: logger}
}

type response struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Results [][]any `json:"results,omitempty"`
}

// Serve handles POST /action.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	id := auth.FromContext(ctx)
	if id.UserID == 0 && !id.Internal {
		h.fail(w, apperror.New(apperror.PermissionDenied, "Anonymous is not allowed to execute actions."))
		return
	}

	var blobs []actions.Blob
	if err := json.NewDecoder(r.Body).Decode(&blobs); err != nil {
		h.fail(w, apperror.Wrap(apperror.BadRequest, err, "The request body must be a list of actions."))
		return
	}

	results, err := h.Executor.Execute(ctx, id.UserID, id.Internal, blobs)
	if err != nil {
		h.fail(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response{
		Success: true,
		Message: "Actions handled successfully",
		Results: results,
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)
	if kind == apperror.Internal {
		h.Log.Error("action request failed", zap.Error(err))
	} else {
		h.Log.Info("action request rejected", zap.String("reason", apperror.Message(err)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(response{Success: false, Message: apperror.Message(err)})
}
