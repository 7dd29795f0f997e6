// internal/app/features/action/routes.go
package action

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter that serves the action endpoint.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Serve) // this will be mounted under /action
	return r
}
