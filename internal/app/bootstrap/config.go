// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for TaskHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, sweep_interval, etc.
//   - Environment variables: TASKHUB_MONGO_URI, TASKHUB_SWEEP_INTERVAL, etc.
//   - Command-line flags: --mongo_uri, --sweep_interval, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "taskhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "taskhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	// Deadline sweeper
	{Name: "sweep_interval", Default: "30s", Desc: "How often task deadlines are re-evaluated (e.g., 30s, 1m)"},
	{Name: "due_soon_window", Default: "72h", Desc: "A task is due soon when its deadline is closer than this"},

	// Realtime fan-out
	{Name: "nats_url", Default: "", Desc: "NATS server URL for cross-process fan-out (blank keeps fan-out in process)"},
	{Name: "nats_subject", Default: "taskhub.fanout", Desc: "NATS subject realtime pushes are published on"},
	{Name: "ws_send_buffer", Default: 32, Desc: "Frames queued per WebSocket before pushes are dropped"},
	{Name: "ws_allowed_origins", Default: "", Desc: "Comma-separated Origin values accepted on /ws (blank means same host, * means any)"},

	// Chat history paging
	{Name: "chat_page_size", Default: 50, Desc: "Default number of chat messages per page"},
	{Name: "chat_max_page_size", Default: 200, Desc: "Largest chat page a client may request"},

	// Request throttling
	{Name: "chat_post_limit", Default: 30, Desc: "Chat messages a user may post per minute (0 disables)"},
	{Name: "ws_connect_limit", Default: 20, Desc: "WebSocket upgrades per client IP per minute (0 disables)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// WAFFLE_* and TASKHUB_* environment variables and command-line flags,
// merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "TASKHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),

		SweepInterval: appValues.Duration("sweep_interval", 30*time.Second),
		DueSoonWindow: appValues.Duration("due_soon_window", 72*time.Hour),

		NATSURL:          appValues.String("nats_url"),
		NATSSubject:      appValues.String("nats_subject"),
		WSSendBuffer:     appValues.Int("ws_send_buffer"),
		WSAllowedOrigins: splitList(appValues.String("ws_allowed_origins")),

		ChatPageSize:    appValues.Int("chat_page_size"),
		ChatMaxPageSize: appValues.Int("chat_max_page_size"),

		ChatPostLimit:  appValues.Int("chat_post_limit"),
		WSConnectLimit: appValues.Int("ws_connect_limit"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// TaskHub checks the MongoDB URI format before attempting to connect and
// rejects sweeper, socket and paging settings that could never work.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if strings.TrimSpace(appCfg.MongoDatabase) == "" {
		return fmt.Errorf("mongo_database must not be empty")
	}
	if appCfg.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %s", appCfg.SweepInterval)
	}
	if appCfg.DueSoonWindow <= 0 {
		return fmt.Errorf("due_soon_window must be positive, got %s", appCfg.DueSoonWindow)
	}
	if appCfg.WSSendBuffer <= 0 {
		return fmt.Errorf("ws_send_buffer must be positive, got %d", appCfg.WSSendBuffer)
	}
	if appCfg.ChatPageSize <= 0 || appCfg.ChatMaxPageSize <= 0 {
		return fmt.Errorf("chat_page_size and chat_max_page_size must be positive")
	}
	if appCfg.ChatPageSize > appCfg.ChatMaxPageSize {
		return fmt.Errorf("chat_page_size (%d) exceeds chat_max_page_size (%d)", appCfg.ChatPageSize, appCfg.ChatMaxPageSize)
	}
	if appCfg.ChatPostLimit < 0 || appCfg.WSConnectLimit < 0 {
		return fmt.Errorf("chat_post_limit and ws_connect_limit must not be negative")
	}
	if appCfg.NATSURL != "" && strings.TrimSpace(appCfg.NATSSubject) == "" {
		return fmt.Errorf("nats_subject is required when nats_url is set")
	}
	return nil
}

// splitList parses a comma-separated config value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
