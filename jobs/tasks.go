package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLedger carries balance recalculations and is polled ahead of
	// the default queue.
	QueueLedger = "ledger"
	// TaskLedgerRecalc rebuilds stored account balances for one period.
	TaskLedgerRecalc = "ledger:recalc"
	// TaskGLIntegrity checks that the trial balance as of today balances.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskIdempotencyCleanup prunes expired journal idempotency keys.
	TaskIdempotencyCleanup = "ledger:idempotency_cleanup"
)

// RecalcPayload scopes a recalculation run. Empty AccountIDs means every
// postable account.
type RecalcPayload struct {
	PeriodID   int64   `json:"period_id"`
	AccountIDs []int64 `json:"account_ids,omitempty"`
}

// GLIntegrityPayload optionally pins the check to a date (YYYY-MM-DD).
type GLIntegrityPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewRecalcTask constructs a ledger:recalc task.
func NewRecalcTask(payload RecalcPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerRecalc, data, asynq.Queue(QueueLedger), asynq.MaxRetry(3)), nil
}

// NewGLIntegrityTask constructs a ledger:gl_integrity task.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data, asynq.Queue(QueueDefault)), nil
}

// NewIdempotencyCleanupTask constructs a ledger:idempotency_cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}
