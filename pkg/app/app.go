// Package app is the Darcho process runner. It owns infrastructure boot,
// the serve lifecycle and the operator CLI, while the project supplies its
// routes and hooks:
//
//	app.New("darcho").
//	    Routes(func(r *router.Router) error { return routes.RegisterAPI(r, hub) }).
//	    OnBoot(func(ctx context.Context) error { jobs.Register(hub); return nil }).
//	    OnShutdown(hub.Close).
//	    Seeder(seeders.RunAll).
//	    Run()
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/darcho/darcho/pkg/router"
)

// Application collects the project-specific pieces the runner needs.
type Application struct {
	name       string
	routes     []func(*router.Router) error
	onBoot     []func(ctx context.Context) error
	onShutdown []func()
	seed       func(ctx context.Context, out io.Writer) error
	commands   []*cobra.Command
}

func New(name string) *Application {
	return &Application{name: name}
}

// Routes adds a route-registration callback. Callbacks run in order on one
// router.
func (a *Application) Routes(fn func(*router.Router) error) *Application {
	a.routes = append(a.routes, fn)
	return a
}

// OnBoot runs after infrastructure is connected, before anything serves.
// Event listeners, queue jobs and scheduled tasks are registered here.
func (a *Application) OnBoot(fn func(ctx context.Context) error) *Application {
	a.onBoot = append(a.onBoot, fn)
	return a
}

// OnShutdown runs when the HTTP server starts draining.
func (a *Application) OnShutdown(fn func()) *Application {
	a.onShutdown = append(a.onShutdown, fn)
	return a
}

// Seeder sets what `seed` runs.
func (a *Application) Seeder(fn func(ctx context.Context, out io.Writer) error) *Application {
	a.seed = fn
	return a
}

// Command adds project-specific subcommands.
func (a *Application) Command(cmds ...*cobra.Command) *Application {
	a.commands = append(a.commands, cmds...)
	return a
}

// Router builds the router from every Routes callback.
func (a *Application) Router() (*router.Router, error) {
	r := router.New()
	for _, fn := range a.routes {
		if err := fn(r); err != nil {
			return nil, fmt.Errorf("app: routes: %w", err)
		}
	}
	return r, nil
}

// Run executes the command line and exits non-zero on error.
func (a *Application) Run() {
	if err := a.RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
