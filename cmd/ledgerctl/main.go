// Command ledgerctl runs operator tasks against the ledger: migrations,
// trial balance checks, balance recalculation and queue inspection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
	"github.com/odyssey-erp/odyssey-ledger/migrations"
)

// exitCode carries a non-zero status out of a command without printing usage.
type exitCode int

func (c exitCode) Error() string { return fmt.Sprintf("exit status %d", int(c)) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	var code exitCode
	if errors.As(err, &code) {
		os.Exit(int(code))
	}
	fmt.Fprintf(os.Stderr, "ledgerctl: %v\n", err)
	os.Exit(1)
}

type env struct {
	cfg    *app.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tasks for the odyssey ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg = cfg
			e.logger = app.NewLogger(cfg)
			return nil
		},
	}
	root.AddCommand(
		migrateCmd(e),
		tbCheckCmd(e),
		recalcCmd(e),
		integrityCmd(e),
		queueStatsCmd(e),
	)
	return root
}

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := db.Migrate(e.cfg.PGDSN, migrations.FS, e.logger); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "migrate: %v\n", err)
				return exitCode(1)
			}
			return nil
		},
	}
}

func tbCheckCmd(e *env) *cobra.Command {
	var opts cli.TBCheckOptions
	cmd := &cobra.Command{
		Use:   "tb-check",
		Short: "Verify that the trial balance balances",
		Long:  "Assembles the trial balance as of a date and exits with status 10 when debits and credits differ.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, cleanup, err := ledgerOps(cmd.Context(), e, nil)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "tb-check: %v\n", err)
				return exitCode(1)
			}
			defer cleanup()
			opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return status(ops.TrialBalanceCommand(cmd.Context(), opts))
		},
	}
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "report date (YYYY-MM-DD), defaults to today")
	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "print a JSON summary")
	return cmd
}

func recalcCmd(e *env) *cobra.Command {
	var opts cli.RecalcOptions
	cmd := &cobra.Command{
		Use:   "recalc",
		Short: "Rebuild stored account balances for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var queue cli.RecalcEnqueuer
			if opts.Async {
				jobsCLI, err := cli.NewJobsCLI(e.cfg.RedisAddr)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "recalc: %v\n", err)
					return exitCode(1)
				}
				defer jobsCLI.Close()
				queue = jobsCLI
			}
			ops, cleanup, err := ledgerOps(cmd.Context(), e, queue)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "recalc: %v\n", err)
				return exitCode(1)
			}
			defer cleanup()
			opts.Stdout, opts.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return status(ops.RecalcCommand(cmd.Context(), opts))
		},
	}
	cmd.Flags().Int64Var(&opts.PeriodID, "period", 0, "period id")
	cmd.Flags().StringVar(&opts.Accounts, "accounts", "", "comma separated account ids, defaults to every postable account")
	cmd.Flags().BoolVar(&opts.Async, "async", false, "enqueue on the worker instead of running in process")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func integrityCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "integrity",
		Short: "Enqueue a GL integrity check on the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobsCLI, err := cli.NewJobsCLI(e.cfg.RedisAddr)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "integrity: %v\n", err)
				return exitCode(1)
			}
			defer jobsCLI.Close()
			info, err := jobsCLI.Trigger(cmd.Context(), jobs.TaskGLIntegrity)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "integrity: %v\n", err)
				return exitCode(1)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", info.ID)
			return nil
		},
	}
}

func queueStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "queue-stats",
		Short: "Print the state of the worker queues as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobsCLI, err := cli.NewJobsCLI(e.cfg.RedisAddr)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "queue-stats: %v\n", err)
				return exitCode(1)
			}
			defer jobsCLI.Close()
			stats, err := jobsCLI.InspectQueue(cmd.Context())
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "queue-stats: %v\n", err)
				return exitCode(1)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		},
	}
}

func status(code int) error {
	if code == 0 {
		return nil
	}
	return exitCode(code)
}

func ledgerOps(ctx context.Context, e *env, queue cli.RecalcEnqueuer) (*cli.LedgerOpsCLI, func(), error) {
	pool, err := db.New(ctx, e.cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	svc, err := app.BuildLedger(*e.cfg, pool, nil, nil, e.logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return cli.NewLedgerOpsCLI(svc.Reports, svc.Aggregator, queue), pool.Close, nil
}
