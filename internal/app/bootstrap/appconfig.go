// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers
// the framework-level settings: ports, TLS, logging, CORS and body limits.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session cookie carrying the caller's identity
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: taskhub-session)
	SessionDomain string // Cookie domain (blank means current host)

	// Deadline sweeper
	SweepInterval time.Duration // How often task deadlines are re-evaluated
	DueSoonWindow time.Duration // How close a deadline must be to count as due soon

	// Realtime fan-out
	NATSURL          string   // Empty keeps fan-out in process
	NATSSubject      string   // Subject every process publishes pushes on
	WSSendBuffer     int      // Frames queued per socket before pushes are dropped
	WSAllowedOrigins []string // Accepted Origin headers; empty means same host

	// Chat history paging
	ChatPageSize    int
	ChatMaxPageSize int

	// Request throttling, per minute; zero disables
	ChatPostLimit  int // Chat messages per user
	WSConnectLimit int // Socket upgrades per client IP
}
