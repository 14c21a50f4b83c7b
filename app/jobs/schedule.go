package jobs

import (
	"context"

	"github.com/darcho/darcho/app/services"
	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/schedule"
)

// ExpirePendingTask is the scheduler name of the stale-order sweep.
const ExpirePendingTask = "orders:expire-pending"

// Schedule registers the recurring maintenance tasks.
func Schedule(orders *services.OrderService) {
	schedule.Every(15).Minutes().Name(ExpirePendingTask).WithoutOverlapping().Run(func(ctx context.Context) error {
		n, err := orders.ExpirePending(ctx, config.PendingOrderTTL())
		if n > 0 {
			logger.Info("jobs: expired pending orders", "count", n)
		}
		return err
	})
}
