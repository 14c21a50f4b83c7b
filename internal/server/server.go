// Package server runs the HTTP listener and drains it on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/darcho/darcho/pkg/logger"
)

// Options tune the listener. Zero values take the defaults below.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	// OnShutdown runs when shutdown begins, e.g. to close long-lived streams
	// that Shutdown would otherwise wait on.
	OnShutdown []func()
}

func (o Options) withDefaults() Options {
	if o.Addr == "" {
		o.Addr = ":8080"
	}
	if o.ReadHeaderTimeout == 0 {
		o.ReadHeaderTimeout = 5 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 2 * time.Minute
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 15 * time.Second
	}
	return o
}

// Start serves handler until ctx is cancelled, then stops accepting and
// waits up to ShutdownTimeout for in-flight requests.
//
// WriteTimeout stays unset: /ws/chat and /api/events hold responses open
// for as long as the client is connected.
func Start(ctx context.Context, handler http.Handler, opts Options) error {
	opts = opts.withDefaults()

	lis, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", opts.Addr, err)
	}
	return Serve(ctx, lis, handler, opts)
}

// Serve is Start on an existing listener.
func Serve(ctx context.Context, lis net.Listener, handler http.Handler, opts Options) error {
	opts = opts.withDefaults()
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		ReadTimeout:       opts.ReadTimeout,
		IdleTimeout:       opts.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	for _, fn := range opts.OnShutdown {
		srv.RegisterOnShutdown(fn)
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http: server listening", "addr", lis.Addr().String())
		errc <- srv.Serve(lis)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("http: shutting down", "timeout", opts.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Hijacked websockets are not tracked by Shutdown; the hub closes them.
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
