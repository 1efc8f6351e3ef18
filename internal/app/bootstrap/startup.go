// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	chatfeature "github.com/dalemusser/taskhub/internal/app/features/chat"
	tasksfeature "github.com/dalemusser/taskhub/internal/app/features/tasks"
	"github.com/dalemusser/taskhub/internal/app/policy/projectpolicy"
	chatmessagestore "github.com/dalemusser/taskhub/internal/app/store/chatmessages"
	chatroomstore "github.com/dalemusser/taskhub/internal/app/store/chatrooms"
	notificationstore "github.com/dalemusser/taskhub/internal/app/store/notifications"
	projectstore "github.com/dalemusser/taskhub/internal/app/store/projects"
	taskstore "github.com/dalemusser/taskhub/internal/app/store/tasks"
	"github.com/dalemusser/taskhub/internal/app/system/metrics"
	"github.com/dalemusser/taskhub/internal/app/system/ratelimit"
	"github.com/dalemusser/taskhub/internal/app/system/realtime"
	"github.com/dalemusser/taskhub/internal/app/system/timeouts"
	"github.com/dalemusser/taskhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Runtime is the process-wide state built once at startup: the presence
// registry, the dispatcher and the services the handlers call into.
type Runtime struct {
	Metrics       *metrics.Metrics
	Registry      *realtime.Registry
	Dispatcher    *realtime.Dispatcher
	Bus           *realtime.NATSBus
	Tasks         *tasksfeature.Service
	Chat          *chatfeature.Service
	Notifications *notificationstore.Store
	Sweeper       *workers.DeadlineSweeper

	// Nil when the matching limit is disabled.
	ChatPostLimiter  *ratelimit.Limiter
	WSConnectLimiter *ratelimit.Limiter
}

// Startup builds the runtime after DB connections and schema setup are
// complete, and starts the deadline sweeper.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts overridden from environment", zap.Int("count", n))
	}
	if deps.Runtime == nil {
		return fmt.Errorf("startup: runtime not allocated")
	}
	return buildRuntime(deps.Runtime, appCfg, deps, logger)
}

func buildRuntime(rt *Runtime, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.TaskHubMongoDatabase

	rt.Metrics = metrics.New()
	rt.Registry = realtime.NewRegistry()
	rt.Notifications = notificationstore.New(db)
	rt.Dispatcher = realtime.NewDispatcher(rt.Registry, rt.Notifications, rt.Metrics, logger)

	if appCfg.NATSURL != "" {
		bus, err := realtime.ConnectNATS(appCfg.NATSURL, appCfg.NATSSubject, logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		if err := rt.Dispatcher.UseBus(bus); err != nil {
			_ = bus.Close()
			return fmt.Errorf("subscribe nats: %w", err)
		}
		rt.Bus = bus
		logger.Info("realtime fan-out over NATS", zap.String("subject", appCfg.NATSSubject))
	}

	projects := projectstore.New(db)
	tasks := taskstore.New(db)
	members := projectpolicy.NewResolver(projects)

	rt.Tasks = tasksfeature.NewService(tasks, members, rt.Dispatcher, rt.Metrics, logger)
	rt.Chat = chatfeature.NewService(
		chatroomstore.New(db),
		chatmessagestore.New(db),
		members,
		rt.Dispatcher,
		chatfeature.Paging{PageSize: appCfg.ChatPageSize, MaxPageSize: appCfg.ChatMaxPageSize},
		logger,
	)
	rt.Chat.SetPresence(rt.Registry)

	if appCfg.ChatPostLimit > 0 {
		rt.ChatPostLimiter = ratelimit.New(appCfg.ChatPostLimit, time.Minute)
	}
	if appCfg.WSConnectLimit > 0 {
		rt.WSConnectLimiter = ratelimit.New(appCfg.WSConnectLimit, time.Minute)
	}

	rt.Sweeper = workers.NewDeadlineSweeper(tasks, projects, rt.Dispatcher, logger, appCfg.SweepInterval, appCfg.DueSoonWindow)
	rt.Sweeper.SetMetrics(rt.Metrics)
	rt.Sweeper.Start()
	return nil
}
