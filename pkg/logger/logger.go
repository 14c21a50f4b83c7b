// Package logger provides the structured, levelled logger used across Darcho,
// built on log/slog.
//
// WithCtx returns the per-request logger the HTTP middleware stored in the
// context, so every line a handler writes carries its request_id:
//
//	log := logger.WithCtx(r.Context())
//	log.Info("order placed", "reference", order.Reference)
//	// → time=... level=INFO msg="order placed" request_id=a1b2c3d4 reference=DRC-...
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/darcho/darcho/config"
)

var L *slog.Logger

var (
	sinkMu sync.Mutex
	sink   *MongoHandler
)

func init() {
	L = slog.New(consoleHandler())
	slog.SetDefault(L)
}

func consoleHandler() slog.Handler {
	if config.IsProduction() {
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
}

// AttachMongo adds the MongoDB sink when LOG_MONGO_URI is configured.
// It is a no-op otherwise. Call Shutdown before exit to flush it.
func AttachMongo() error {
	uri := config.LogMongoURI()
	if uri == "" {
		return nil
	}

	h, err := NewMongoHandler(uri, config.LogMongoDB(), "logs")
	if err != nil {
		return err
	}

	sinkMu.Lock()
	sink = h
	sinkMu.Unlock()

	L = slog.New(NewMultiHandler(consoleHandler(), h))
	slog.SetDefault(L)
	return nil
}

// Shutdown flushes and closes the MongoDB sink, if one is attached.
func Shutdown() {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sink != nil {
		sink.Close()
		sink = nil
	}
}

type ctxKey struct{}

// WithCtx returns the request-scoped logger stored in ctx, or the base logger.
func WithCtx(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return L
	}
	if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
		return log
	}
	return L
}

// InjectLogger stores log in ctx. Called by the request logger middleware.
func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

func Debug(msg string, args ...any) { L.Debug(msg, args...) }
func Info(msg string, args ...any)  { L.Info(msg, args...) }
func Warn(msg string, args ...any)  { L.Warn(msg, args...) }
func Error(msg string, args ...any) { L.Error(msg, args...) }
