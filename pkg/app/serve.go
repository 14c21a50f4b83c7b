package app

import (
	"context"
	"time"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/internal/server"
	"github.com/darcho/darcho/pkg/grpc"
	"github.com/darcho/darcho/pkg/logger"
	"github.com/darcho/darcho/pkg/queue"
	"github.com/darcho/darcho/pkg/schedule"
)

const drainTimeout = 15 * time.Second

// serve runs HTTP, gRPC health, queue workers and the scheduler until ctx
// is cancelled, then drains them in that order.
func (a *Application) serve(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if err := a.boot(ctx); err != nil {
		return err
	}
	defer Release()

	r, err := a.Router()
	if err != nil {
		return err
	}

	grpcSrv, err := grpc.Start(config.GRPCPort())
	if err != nil {
		return err
	}
	queue.Start(ctx, config.QueueWorkers())
	schedule.Start(ctx)

	err = server.Start(ctx, r.Handler(), server.Options{
		Addr:            ":" + config.AppPort(),
		ShutdownTimeout: drainTimeout,
		OnShutdown:      a.onShutdown,
	})

	// Listener errors return before ctx is done; stop the rest either way.
	cancel()
	stopCtx, stop := context.WithTimeout(context.Background(), drainTimeout)
	defer stop()
	grpcSrv.Stop(stopCtx)
	queue.Wait()
	schedule.Wait()
	logger.Info("app: stopped")
	return err
}

// work runs queue workers only, for a dedicated worker process.
func (a *Application) work(ctx context.Context, workers int) error {
	if err := a.boot(ctx); err != nil {
		return err
	}
	defer Release()

	queue.Start(ctx, workers)
	<-ctx.Done()
	queue.Wait()
	return nil
}
