// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	chatfeature "github.com/dalemusser/taskhub/internal/app/features/chat"
	healthfeature "github.com/dalemusser/taskhub/internal/app/features/health"
	notificationsfeature "github.com/dalemusser/taskhub/internal/app/features/notifications"
	tasksfeature "github.com/dalemusser/taskhub/internal/app/features/tasks"
	wsfeature "github.com/dalemusser/taskhub/internal/app/features/ws"
	userstore "github.com/dalemusser/taskhub/internal/app/store/users"
	"github.com/dalemusser/taskhub/internal/app/system/auth"
	"github.com/dalemusser/taskhub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed. TaskHub applies session middleware and mounts the
// JSON APIs for tasks, chat and notifications, the realtime socket, and the
// health and metrics endpoints.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Runtime
	if rt == nil || rt.Tasks == nil {
		return nil, errors.New("build handler: runtime not started")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// Re-read the user's display name on each request so renames show up immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(deps.TaskHubMongoDatabase))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Health and metrics stay outside the session middleware.
	healthHandler := healthfeature.NewHandler(deps.TaskHubMongoClient, rt.Registry, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/metrics", rt.Metrics.Handler())

	r.Group(func(r chi.Router) {
		// Loads the SessionUser into context when the cookie is valid.
		r.Use(sessionMgr.LoadSessionUser)

		tasksHandler := tasksfeature.NewHandler(rt.Tasks, logger)
		r.Mount("/tasks", tasksfeature.Routes(tasksHandler))

		chatHandler := chatfeature.NewHandler(rt.Chat, logger)
		var postLimits []func(http.Handler) http.Handler
		if rt.ChatPostLimiter != nil {
			postLimits = append(postLimits, ratelimit.Middleware(rt.ChatPostLimiter, ratelimit.UserOrIP, logger))
		}
		r.Mount("/chat", chatfeature.Routes(chatHandler, postLimits...))

		notesHandler := notificationsfeature.NewHandler(rt.Notifications, logger)
		r.Mount("/notifications", notificationsfeature.Routes(notesHandler))

		wsHandler := wsfeature.NewHandler(rt.Registry, rt.Chat, wsfeature.Options{
			AllowedOrigins: appCfg.WSAllowedOrigins,
			SendBuffer:     appCfg.WSSendBuffer,
		}, rt.Metrics, logger)
		wsRoutes := http.Handler(wsfeature.Routes(wsHandler))
		if rt.WSConnectLimiter != nil {
			byIP := func(r *http.Request) string { return "ip:" + ratelimit.ClientIP(r) }
			wsRoutes = ratelimit.Middleware(rt.WSConnectLimiter, byIP, logger)(wsRoutes)
		}
		r.Mount("/ws", wsRoutes)
	})

	return r, nil
}
