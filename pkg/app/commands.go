package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/darcho/darcho/config"
	"github.com/darcho/darcho/pkg/database"
	"github.com/darcho/darcho/pkg/migration"
	"github.com/darcho/darcho/pkg/queue"
	"github.com/darcho/darcho/pkg/router"
	"github.com/darcho/darcho/pkg/schedule"
)

// RootCommand builds the CLI: serve, migrations, seeding, route listing,
// queue and scheduler commands, plus anything added with Command.
func (a *Application) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           a.name,
		Short:         a.name + " marketplace server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		a.serveCmd(),
		migrateCmd(),
		migrateRollbackCmd(),
		migrateStatusCmd(),
		a.seedCmd(),
		a.routeListCmd(),
		a.queueWorkCmd(),
		queueFailedCmd(),
		a.scheduleRunCmd(),
		a.scheduleListCmd(),
	)
	root.AddCommand(a.commands...)
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func (a *Application) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start", "run"},
		Short:   "Start the HTTP and gRPC servers, queue workers and scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return a.serve(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run all pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := BootDB(); err != nil {
				return err
			}
			defer Release()
			ran, err := migration.New(database.DB).Run()
			for _, name := range ran {
				fmt.Fprintln(cmd.OutOrStdout(), "  migrated:", name)
			}
			if err == nil && len(ran) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to migrate.")
			}
			return err
		},
	}
}

func migrateRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "migrate:rollback",
		Aliases: []string{"migrate:down"},
		Short:   "Roll back the last batch of migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := BootDB(); err != nil {
				return err
			}
			defer Release()
			undone, err := migration.New(database.DB).Rollback()
			for _, name := range undone {
				fmt.Fprintln(cmd.OutOrStdout(), "  rolled back:", name)
			}
			if err == nil && len(undone) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to roll back.")
			}
			return err
		},
	}
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:status",
		Short: "Show which migrations have run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := BootDB(); err != nil {
				return err
			}
			defer Release()
			statuses, err := migration.New(database.DB).Status()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "RAN\tBATCH\tMIGRATION")
			for _, s := range statuses {
				ran, batch := "no", "-"
				if s.Ran {
					ran, batch = "yes", fmt.Sprint(s.Batch)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", ran, batch, s.Name)
			}
			return w.Flush()
		},
	}
}

func (a *Application) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with demo data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.seed == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No seeders registered.")
				return nil
			}
			if err := BootDB(); err != nil {
				return err
			}
			defer Release()
			fmt.Fprintln(cmd.OutOrStdout(), "Running seeders…")
			return a.seed(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (a *Application) routeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "route:list",
		Aliases: []string{"routes"},
		Short:   "List registered routes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.Router()
			if err != nil {
				return err
			}
			return printRoutes(cmd.OutOrStdout(), r.Routes())
		},
	}
}

func (a *Application) queueWorkCmd() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "queue:work",
		Short: "Process queued jobs until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if workers < 1 {
				workers = config.QueueWorkers()
			}
			return a.work(ctx, workers)
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of concurrent workers (default QUEUE_WORKERS)")
	return cmd
}

func queueFailedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "queue:failed",
		Short: "List jobs that exhausted their retries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := BootDB(); err != nil {
				return err
			}
			defer Release()
			recs, err := queue.FailedJobs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No failed jobs.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tATTEMPTS\tFAILED AT\tERROR")
			for _, r := range recs {
				fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", r.ID, r.JobType, r.Attempts, r.FailedAt.Format("2006-01-02 15:04:05"), r.Error)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "how many to show")
	return cmd
}

func (a *Application) scheduleRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule:run [task]",
		Short: "Run one scheduled task, or all of them, right now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := a.boot(ctx); err != nil {
				return err
			}
			defer Release()
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return schedule.RunNow(ctx, name)
		},
	}
}

func (a *Application) scheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule:list",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.boot(cmd.Context()); err != nil {
				return err
			}
			defer Release()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TASK\tFREQUENCY")
			for _, t := range schedule.List() {
				fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Frequency)
			}
			return w.Flush()
		},
	}
}

func printRoutes(out io.Writer, routes []router.RouteInfo) error {
	if len(routes) == 0 {
		fmt.Fprintln(out, "No routes registered.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METHOD\tPATH\tNAME\tMIDDLEWARE")
	for _, ri := range routes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", ri.Method, ri.Path, ri.Name, ri.Middlewares)
	}
	return w.Flush()
}
