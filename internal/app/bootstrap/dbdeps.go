// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/plenumhq/plenum/internal/app/store/datastore"
	"github.com/plenumhq/plenum/internal/app/store/media"
	"github.com/plenumhq/plenum/internal/app/system/auth"
)

// DBDeps holds backend dependencies for the app. The service keeps no
// state of its own; everything it touches lives behind these HTTP
// clients.
type DBDeps struct {
	Datastore *datastore.Client
	Auth      *auth.Client
	Media     *media.Client
}
