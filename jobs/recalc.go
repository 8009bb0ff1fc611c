package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const recalcLockTTL = 10 * time.Minute

// ErrRecalcInProgress is returned while another worker holds the period lock;
// asynq retries the task later.
var ErrRecalcInProgress = errors.New("recalculation already running for period")

// BalanceRecalculator rebuilds stored balances.
type BalanceRecalculator interface {
	BatchRecalculateBalances(ctx context.Context, periodID int64, accountIDs []int64) (ledger.BatchResult, error)
}

// Locker serializes recalculation of a period across workers.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error)
}

// RecalcJob handles ledger:recalc tasks.
type RecalcJob struct {
	Ledger  BalanceRecalculator
	Locks   Locker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRecalcJob wires dependencies for the recalculation handler.
func NewRecalcJob(recalc BalanceRecalculator, locks Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecalcJob {
	return &RecalcJob{Ledger: recalc, Locks: locks, Logger: logger, Metrics: metrics}
}

// Handle processes a ledger:recalc task.
func (j *RecalcJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger recalc: handler not configured")
	}
	var payload RecalcPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.PeriodID <= 0 {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskLedgerRecalc)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("period_id", payload.PeriodID))
	if j.Locks != nil {
		release, ok, err := j.Locks.TryLock(ctx, internalShared.RecalcLockKey(payload.PeriodID), recalcLockTTL)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("recalculation skipped, period locked")
			return ErrRecalcInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release recalc lock", slog.Any("error", err))
			}
		}()
	}

	start := time.Now()
	res, err := j.Ledger.BatchRecalculateBalances(ctx, payload.PeriodID, payload.AccountIDs)
	if err != nil {
		logger.Error("recalculate balances", slog.Any("error", err))
		return err
	}
	j.Metrics.AddProcessed(TaskLedgerRecalc, res.AccountsProcessed)
	if !res.Success {
		logger.Warn("recalculation finished with errors",
			slog.Int("accounts", res.AccountsProcessed),
			slog.Int("errors", len(res.Errors)))
		return nil
	}
	logger.Info("recalculation finished", slog.Int("accounts", res.AccountsProcessed), slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *RecalcJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
