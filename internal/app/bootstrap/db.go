// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/store/media"
	"github.com/plenumhq/plenum/internal/app/system/auth"
)

// ConnectDB builds the backend service clients. These are plain HTTP
// clients, so nothing is dialed here; unreachable services surface on
// the first request and through the health endpoint.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	deps := DBDeps{
		Datastore: datastore.New(appCfg.DatastoreReaderURL, appCfg.DatastoreWriterURL, logger),
		Auth:      auth.New(appCfg.AuthURL, appCfg.InternalAuthPassword, logger),
	}
	if appCfg.MediaURL != "" {
		deps.Media = media.New(appCfg.MediaURL, logger)
	}
	logger.Info("backend clients ready",
		zap.String("datastore_reader", appCfg.DatastoreReaderURL),
		zap.String("datastore_writer", appCfg.DatastoreWriterURL),
		zap.String("auth", appCfg.AuthURL))
	return deps, nil
}

// EnsureSchema is a no-op. The datastore services own the data layout;
// this service never migrates or indexes anything.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	return nil
}
