package app

import (
	"context"
	"time"

	"github.com/membergate/core/internal/modules/broadcast"
	pkgcron "github.com/membergate/core/internal/pkg/cron"
	"github.com/membergate/core/internal/pkg/kit"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, db *gorm.DB, kitClient *kit.Client, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	broadcastSvc := broadcast.NewService(db, kitClient, cronLogger)
	sched.Register(broadcastSvc.SyncJob(1 * time.Hour))

	sched.Register(pkgcron.Job{
		Name:        "ping_upstream",
		Description: "Probe the upstream platform API so outages surface in logs before visitors hit them",
		Interval:    15 * time.Minute,
		Fn: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if _, err := kitClient.Broadcasts(ctx); err != nil {
				cronLogger.Warn("upstream probe failed", zap.Error(err))
				return err
			}
			return nil
		},
	})
}
