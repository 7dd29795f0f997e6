// internal/app/bootstrap/appconfig.go
package bootstrap

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like HTTP/HTTPS
// ports, TLS, logging level, CORS, and request body size limits.
// AppConfig is where everything specific to this service lives: the
// URLs of the backend services it talks to and the shared secret it
// uses to recognize internal calls.
type AppConfig struct {
	// Datastore service endpoints. The reader answers get_many/filter
	// style queries, the writer accepts write requests with locking
	// positions.
	DatastoreReaderURL string
	DatastoreWriterURL string

	// Auth service endpoint used to resolve the calling user from the
	// request's authentication header and cookies.
	AuthURL string

	// Shared secret carried in the Internal-Authorization header by
	// other backend services. Requests presenting it bypass the auth
	// service and run with full internal privileges.
	InternalAuthPassword string

	// Media service endpoint, used to verify that uploaded files are
	// actually stored. Optional; when empty the check is skipped.
	MediaURL string
}
