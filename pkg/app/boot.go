package app

import (
	"context"
	"fmt"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/cache"
	"github.com/darcho/darcho/pkg/database"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/queue"
	"github.com/darcho/darcho/pkg/storage"
)

// BootDB loads config and connects the database. Migrations and listings
// need nothing else.
func BootDB() error {
	if err := config.Load(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := logger.AttachMongo(); err != nil {
		logger.Warn("logger: mongo sink disabled", "error", err)
	}
	if err := database.Connect(); err != nil {
		return err
	}
	queue.UseDB(database.DB)
	return nil
}

// boot connects everything a serving process needs, then runs the OnBoot
// hooks. Redis is optional: cache, sessions and the queue fall back to
// in-process stores.
func (a *Application) boot(ctx context.Context) error {
	if err := BootDB(); err != nil {
		return err
	}
	if err := cache.Connect(); err != nil {
		logger.Warn("cache: redis unavailable", "error", err)
	}
	storage.Connect(ctx)
	useQueueDriver(ctx)

	for _, fn := range a.onBoot {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("app: boot: %w", err)
		}
	}
	logger.Info("app: booted",
		"env", config.AppEnv(),
		"db", config.DatabaseDriver(),
		"cache", cache.Driver(),
		"storage", storage.Default().Name(),
	)
	return nil
}

func useQueueDriver(ctx context.Context) {
	if config.QueueDriver() != "redis" {
		return
	}
	if cache.RDB == nil {
		logger.Warn("queue: QUEUE_DRIVER=redis but redis is unavailable, using memory")
		return
	}
	d := queue.NewRedisDriver(cache.RDB)
	queue.SetDriver(d)
	go d.Promote(ctx)
}

// Release closes connections opened by boot or BootDB.
func Release() {
	if err := database.Close(); err != nil {
		logger.Warn("database: close", "error", err)
	}
	logger.Shutdown()
}
