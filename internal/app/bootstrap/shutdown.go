// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/taskhub/internal/app/system/ratelimit"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the sweeper, drains the fan-out bus and disconnects MongoDB.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Runtime; rt != nil {
		if rt.Sweeper != nil {
			rt.Sweeper.Stop()
		}
		for _, l := range []*ratelimit.Limiter{rt.ChatPostLimiter, rt.WSConnectLimiter} {
			if l != nil {
				l.Stop()
			}
		}
		if rt.Bus != nil {
			if err := rt.Bus.Close(); err != nil {
				logger.Warn("NATS drain failed", zap.Error(err))
			}
		}
	}
	if deps.TaskHubMongoClient != nil {
		logger.Info("disconnecting TaskHub MongoDB client")
		if err := deps.TaskHubMongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
