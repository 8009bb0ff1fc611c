package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// ExitUnbalanced is returned by tb-check when debits and credits differ.
const ExitUnbalanced = 10

// TrialBalancer assembles an uncached trial balance.
type TrialBalancer interface {
	Compute(ctx context.Context, opts reports.Options) (reports.TrialBalance, error)
}

// BalanceRecalculator rebuilds stored balances in process.
type BalanceRecalculator interface {
	BatchRecalculateBalances(ctx context.Context, periodID int64, accountIDs []int64) (ledger.BatchResult, error)
}

// RecalcEnqueuer hands recalculation to the worker.
type RecalcEnqueuer interface {
	Enqueue(ctx context.Context, payload jobs.RecalcPayload) (string, error)
}

// LedgerOpsCLI offers operational helpers for the ledger.
type LedgerOpsCLI struct {
	reports TrialBalancer
	recalc  BalanceRecalculator
	queue   RecalcEnqueuer
	now     func() time.Time
}

// NewLedgerOpsCLI constructs the helper. Any dependency may be nil when the
// corresponding command is not used.
func NewLedgerOpsCLI(tb TrialBalancer, recalc BalanceRecalculator, queue RecalcEnqueuer) *LedgerOpsCLI {
	return &LedgerOpsCLI{reports: tb, recalc: recalc, queue: queue, now: time.Now}
}

// TBCheckOptions defines available flags for the tb-check command.
type TBCheckOptions struct {
	AsOf       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// TBCheckSummary describes the JSON response for tb-check.
type TBCheckSummary struct {
	AsOf       string `json:"as_of"`
	Balanced   bool   `json:"balanced"`
	Debit      string `json:"debit"`
	Credit     string `json:"credit"`
	Difference string `json:"difference"`
	Accounts   int    `json:"accounts"`
}

// TrialBalanceCommand verifies that the ledger balances as of a date.
func (c *LedgerOpsCLI) TrialBalanceCommand(ctx context.Context, opts TBCheckOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	if c.reports == nil {
		_, _ = fmt.Fprintln(stderr, "tb-check: reports not configured")
		return 1
	}
	asOf := shared.DateOf(c.now())
	if raw := strings.TrimSpace(opts.AsOf); raw != "" {
		d, err := shared.ParseDate(raw)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "tb-check: invalid date %q (expected YYYY-MM-DD)\n", opts.AsOf)
			return 1
		}
		asOf = d
	}
	tb, err := c.reports.Compute(ctx, reports.Options{AsOfDate: asOf, IncludeZeroBalances: true})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "tb-check: %v\n", err)
		return 1
	}
	summary := TBCheckSummary{
		AsOf:       asOf.Format(shared.DateLayout),
		Balanced:   tb.IsBalanced,
		Debit:      tb.Totals.Debit.StringFixed(2),
		Credit:     tb.Totals.Credit.StringFixed(2),
		Difference: tb.OutOfBalanceAmount.StringFixed(2),
		Accounts:   tb.AccountCount,
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(stderr, "tb-check: encode json: %v\n", err)
			return 1
		}
	} else {
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "As of\t%s\n", summary.AsOf)
		_, _ = fmt.Fprintf(w, "Accounts\t%d\n", summary.Accounts)
		_, _ = fmt.Fprintf(w, "Debit\t%s\n", summary.Debit)
		_, _ = fmt.Fprintf(w, "Credit\t%s\n", summary.Credit)
		_, _ = fmt.Fprintf(w, "Difference\t%s\n", summary.Difference)
		_ = w.Flush()
	}
	if !tb.IsBalanced {
		return ExitUnbalanced
	}
	return 0
}

// RecalcOptions defines available flags for the recalc command.
type RecalcOptions struct {
	PeriodID int64
	Accounts string
	Async    bool
	Stdout   io.Writer
	Stderr   io.Writer
}

// RecalcCommand rebuilds stored balances for a period, either in process or
// through the worker queue.
func (c *LedgerOpsCLI) RecalcCommand(ctx context.Context, opts RecalcOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	if opts.PeriodID <= 0 {
		_, _ = fmt.Fprintln(stderr, "recalc: --period is required and must be positive")
		return 1
	}
	ids, err := parseIDs(opts.Accounts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "recalc: %v\n", err)
		return 1
	}
	if opts.Async {
		if c.queue == nil {
			_, _ = fmt.Fprintln(stderr, "recalc: queue not configured")
			return 1
		}
		id, err := c.queue.Enqueue(ctx, jobs.RecalcPayload{PeriodID: opts.PeriodID, AccountIDs: ids})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "recalc: enqueue: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s for period %d\n", id, opts.PeriodID)
		return 0
	}
	if c.recalc == nil {
		_, _ = fmt.Fprintln(stderr, "recalc: ledger not configured")
		return 1
	}
	res, err := c.recalc.BatchRecalculateBalances(ctx, opts.PeriodID, ids)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "recalc: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "period %d: %d accounts recalculated\n", opts.PeriodID, res.AccountsProcessed)
	for _, failure := range res.Errors {
		_, _ = fmt.Fprintf(stderr, "recalc: account %d: %s\n", failure.AccountID, failure.Error)
	}
	if !res.Success {
		return 1
	}
	return 0
}

func parseIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid account id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func streams(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}
