// internal/app/features/presenter/routes.go
package presenter

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter that serves the presenter endpoint.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Serve) // this will be mounted under /presenter
	return r
}
