// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"net/url"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for Plenum.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: datastore_reader_url, auth_url, etc.
//   - Environment variables: PLENUM_DATASTORE_READER_URL, PLENUM_AUTH_URL, etc.
//   - Command-line flags: --datastore_reader_url, --auth_url, etc.
var appConfigKeys = []config.AppKey{
	{Name: "datastore_reader_url", Default: "http://localhost:9010", Desc: "Base URL of the datastore reader service"},
	{Name: "datastore_writer_url", Default: "http://localhost:9011", Desc: "Base URL of the datastore writer service"},
	{Name: "auth_url", Default: "http://localhost:9004", Desc: "Base URL of the auth service"},
	{Name: "internal_auth_password", Default: "", Desc: "Shared secret for internal service-to-service calls"},
	{Name: "media_url", Default: "", Desc: "Base URL of the media service (blank disables stored-file checks)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, PLENUM_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "PLENUM", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		DatastoreReaderURL:   appValues.String("datastore_reader_url"),
		DatastoreWriterURL:   appValues.String("datastore_writer_url"),
		AuthURL:              appValues.String("auth_url"),
		InternalAuthPassword: appValues.String("internal_auth_password"),
		MediaURL:             appValues.String("media_url"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The backend URLs are parsed up front to catch configuration mistakes
// before the first request needs them.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	required := map[string]string{
		"datastore_reader_url": appCfg.DatastoreReaderURL,
		"datastore_writer_url": appCfg.DatastoreWriterURL,
		"auth_url":             appCfg.AuthURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s must be set", name)
		}
		if _, err := url.ParseRequestURI(value); err != nil {
			logger.Error("invalid service URL", zap.String("key", name), zap.Error(err))
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if appCfg.MediaURL != "" {
		if _, err := url.ParseRequestURI(appCfg.MediaURL); err != nil {
			return fmt.Errorf("invalid media_url: %w", err)
		}
	}
	if appCfg.InternalAuthPassword == "" {
		logger.Warn("internal_auth_password is empty, internal requests will be rejected")
	}
	return nil
}
