package main

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/billingcycle"
	billingcycledomain "github.com/smallbiznis/schoolbilling/internal/billingcycle/domain"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/lock"
	"github.com/smallbiznis/schoolbilling/internal/notification"
	"github.com/smallbiznis/schoolbilling/internal/observability"
	"github.com/smallbiznis/schoolbilling/internal/school"
	"github.com/smallbiznis/schoolbilling/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const sweepTimeout = 10 * time.Minute

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the sweep
		lock.Module,
		school.Module,
		notification.Module,
		billingcycle.Module,

		// No server module!
		fx.Invoke(RunSweep),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

// RunSweep performs one sweep after startup and stops the app. A failed sweep
// exits non-zero so the cron runner records it.
func RunSweep(lc fx.Lifecycle, shutdowner fx.Shutdowner, svc billingcycledomain.Service, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
				defer cancel()

				code := 0
				result, err := svc.Sweep(ctx)
				if err != nil {
					log.Error("billing sweep failed", zap.Error(err))
					code = 1
				} else {
					log.Info("billing sweep finished",
						zap.Int("due_soon", result.DueSoonCount),
						zap.Int("overdue", result.OverdueCount),
						zap.Int("already_notified", result.AlreadyNotified),
						zap.Int("expired_trials", result.ExpiredTrials),
						zap.Int("notifications", result.Notifications),
						zap.Bool("locked", result.Locked),
					)
				}
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					log.Error("shutdown failed", zap.Error(err))
				}
			}()
			return nil
		},
	})
}
