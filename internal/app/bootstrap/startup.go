// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/actions/catalog"
)

// Startup runs one-time application initialization after backend clients
// are built, but before the HTTP handler is assembled. Compiling the
// action catalog here means a broken schema aborts startup instead of
// failing the first request.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	registry, err := catalog.New()
	if err != nil {
		logger.Error("action catalog failed to compile", zap.Error(err))
		return err
	}
	logger.Info("action catalog compiled", zap.Int("actions", len(registry.Names())))
	return nil
}
