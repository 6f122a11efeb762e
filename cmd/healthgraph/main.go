package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"

	"github.com/yungbote/healthgraph-etl/internal/app"
	"github.com/yungbote/healthgraph-etl/internal/jobs/scheduler"
)

type rootOptions struct {
	configPath string
	dryRun     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts rootOptions
	rootCmd := &cobra.Command{
		Use:           "healthgraph",
		Short:         "Incremental clinical record ETL into Neo4j",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default: $ETL_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "Write to an in-memory graph instead of Neo4j")

	rootCmd.AddCommand(runCmd(&opts))
	rootCmd.AddCommand(scheduleCmd(&opts))
	rootCmd.AddCommand(ingestCmd(&opts))
	rootCmd.AddCommand(watermarkCmd(&opts))
	rootCmd.AddCommand(schemaCmd(&opts))
	rootCmd.AddCommand(planCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, opts *rootOptions) (*app.App, error) {
	return app.New(ctx, app.Options{ConfigPath: opts.configPath, DryRun: opts.dryRun})
}

var errHeld = errors.New("run held the watermark: some subjects failed")

func runCmd(opts *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one incremental ETL pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := a.Scheduler(ctx)
			if err != nil {
				return err
			}
			sum, runErr := sched.Run(ctx)
			a.PushMetrics(context.WithoutCancel(ctx))

			if err := printJSON(sum); err != nil {
				return err
			}
			if mem := a.Memory(); mem != nil {
				st, _ := mem.Stats(ctx)
				if err := printJSON(st); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}
			if strict && sum.State == scheduler.StateHeld {
				return errHeld
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the watermark is held")
	return cmd
}

func scheduleCmd(opts *rootOptions) *cobra.Command {
	var every, spec string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run on a schedule and serve the ops endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			sched, err := a.Scheduler(ctx)
			if err != nil {
				return err
			}
			srv, err := a.OpsServer(ctx, sched)
			if err != nil {
				return err
			}
			srv.Start()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()

			spec = strings.TrimSpace(spec)
			if spec == "" && every != "" {
				spec = "@every " + every
			}
			if spec == "" {
				spec = a.Cfg.Ops.Schedule
			}
			c := cron.New()
			if err := c.AddFunc(spec, func() {
				if _, err := sched.Run(ctx); err != nil {
					if errors.Is(err, scheduler.ErrRunInProgress) {
						a.Log.Info("scheduled run skipped: previous run still active")
						return
					}
					a.Log.Error("scheduled run failed", "error", err)
				}
			}); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", spec, err)
			}
			c.Start()
			defer c.Stop()
			a.Log.Info("scheduler started", "schedule", spec, "listen", a.Cfg.Ops.Listen)

			<-ctx.Done()
			a.Log.Info("shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&every, "every", "", "Run interval, e.g. 1h (shorthand for --cron '@every 1h')")
	cmd.Flags().StringVar(&spec, "cron", "", "Cron spec with seconds field (overrides --every)")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
