// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/actions"
	"github.com/plenumhq/plenum/internal/app/actions/catalog"
	actionfeature "github.com/plenumhq/plenum/internal/app/features/action"
	healthfeature "github.com/plenumhq/plenum/internal/app/features/health"
	presenterfeature "github.com/plenumhq/plenum/internal/app/features/presenter"
	"github.com/plenumhq/plenum/internal/app/presenters"
	"github.com/plenumhq/plenum/internal/app/system/auth"
	"github.com/plenumhq/plenum/internal/app/system/models"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, backend clients, and any
// Startup hooks have completed. It assembles the model registry, the
// action catalog, and the presenter registry, then mounts the three
// feature routers behind the auth middleware.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	modelsReg := models.New()

	actionReg, err := catalog.New()
	if err != nil {
		logger.Error("action catalog init failed", zap.Error(err))
		return nil, err
	}
	executor := actions.NewExecutor(deps.Datastore, modelsReg, actionReg, logger)

	presenterReg, err := presenters.NewRegistry(presenters.Builtin()...)
	if err != nil {
		logger.Error("presenter registry init failed", zap.Error(err))
		return nil, err
	}
	var mediaSvc presenters.MediaService
	if deps.Media != nil {
		mediaSvc = deps.Media
	}
	dispatcher := presenters.NewDispatcher(deps.Datastore, modelsReg, presenterReg, mediaSvc, logger)

	r := chi.NewRouter()

	// Global auth middleware: resolves the caller into an Identity in
	// the request context, either via the auth service or the internal
	// authorization header.
	r.Use(auth.Middleware(deps.Auth, logger))

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.Datastore, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	actionHandler := actionfeature.NewHandler(executor, logger)
	r.Mount("/action", actionfeature.Routes(actionHandler))

	presenterHandler := presenterfeature.NewHandler(dispatcher, logger)
	r.Mount("/presenter", presenterfeature.Routes(presenterHandler))

	return r, nil
}
