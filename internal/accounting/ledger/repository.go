package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the PostgreSQL ledger store.
func NewRepository(pool *pgxpool.Pool) Store {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

func (r *repository) SumMovements(ctx context.Context, accountID int64, window Window) (Movement, error) {
	return sumMovements(ctx, r.db, accountID, window)
}

func (r *repository) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, error) {
	where, args := windowClause([]string{"account_id=$1"}, []any{filter.AccountID}, filter.Window)
	if filter.PeriodID != 0 {
		args = append(args, filter.PeriodID)
		where = append(where, "period_id=$"+itoa(len(args)))
	}
	rows, err := r.db.Query(ctx, `SELECT id, account_id, period_id, entry_id, line_id, entry_number, entry_date, description, debit, credit, posted_at
FROM gl_records WHERE `+strings.Join(where, " AND ")+` ORDER BY entry_date ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.PeriodID, &rec.EntryID, &rec.LineID, &rec.EntryNumber, &rec.EntryDate, &rec.Description, &rec.Debit, &rec.Credit, &rec.PostedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) ListBalances(ctx context.Context, periodID int64, accountIDs []int64) ([]AccountBalance, error) {
	rows, err := r.db.Query(ctx, `SELECT account_id, period_id, opening_balance, debit_movements, credit_movements, closing_balance, last_updated
FROM account_balances WHERE period_id=$1 AND account_id = ANY($2) ORDER BY account_id`, periodID, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AccountTotals sums posted ledger movements per account. Draft and pending
// journal lines are added from the journal tables when requested.
func (r *repository) AccountTotals(ctx context.Context, opts TotalsOptions) ([]Movement, error) {
	glWhere, args := windowClause([]string{"TRUE"}, nil, opts.Window)
	query := `SELECT account_id, debit, credit FROM gl_records WHERE ` + strings.Join(glWhere, " AND ")
	if opts.IncludeDrafts {
		// Same window, so the placeholders line up with the gl_records branch.
		draftWhere, _ := windowClauseColumn([]string{"e.status IN ('DRAFT','PENDING_APPROVAL')"}, nil, opts.Window, "e.entry_date")
		query += ` UNION ALL SELECT l.account_id, l.base_debit, l.base_credit FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id WHERE ` + strings.Join(draftWhere, " AND ")
	}
	rows, err := r.db.Query(ctx, `SELECT account_id, COALESCE(SUM(debit),0), COALESCE(SUM(credit),0)
FROM (`+query+`) m GROUP BY account_id ORDER BY account_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.AccountID, &m.Debit, &m.Credit); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open transaction. Journal repositories use it to post
// inside their own transaction.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

func (t *txStore) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	p, err := periods.ScanPeriod(t.tx.QueryRow(ctx, periods.SelectPeriodForUpdate, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.Wrap(shared.ErrPeriodNotFound, "period %d", periodID)
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (t *txStore) InsertRecords(ctx context.Context, records []Record) (int, error) {
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{rec.AccountID, rec.PeriodID, rec.EntryID, rec.LineID, rec.EntryNumber, rec.EntryDate, rec.Description, rec.Debit, rec.Credit, rec.PostedAt})
	}
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{"gl_records"},
		[]string{"account_id", "period_id", "entry_id", "line_id", "entry_number", "entry_date", "description", "debit", "credit", "posted_at"},
		pgx.CopyFromRows(rows))
	return int(n), err
}

// The opening balance is derived from earlier ledger rows only when the row is
// first created; later postings add to the movements in place.
const upsertBalanceSQL = `WITH prior AS (
	SELECT COALESCE(SUM(debit),0) AS d, COALESCE(SUM(credit),0) AS c
	FROM gl_records WHERE account_id=$1::bigint AND entry_date < $3::date
), opening AS (
	SELECT CASE WHEN $4::text = 'CREDIT' THEN c - d ELSE d - c END AS v FROM prior
)
INSERT INTO account_balances (account_id, period_id, opening_balance, debit_movements, credit_movements, closing_balance, last_updated)
SELECT $1::bigint, $2::bigint, v, $5::numeric, $6::numeric, v + $7::numeric, NOW() FROM opening
ON CONFLICT (account_id, period_id) DO UPDATE SET
	debit_movements = account_balances.debit_movements + EXCLUDED.debit_movements,
	credit_movements = account_balances.credit_movements + EXCLUDED.credit_movements,
	closing_balance = account_balances.closing_balance + $7::numeric,
	last_updated = NOW()
RETURNING account_id, period_id, opening_balance, debit_movements, credit_movements, closing_balance, last_updated`

func (t *txStore) ApplyBalanceDelta(ctx context.Context, d BalanceDelta) (AccountBalance, error) {
	return scanBalance(t.tx.QueryRow(ctx, upsertBalanceSQL,
		d.AccountID, d.PeriodID, d.PeriodStart, string(d.NormalBalance), d.Debit, d.Credit, d.Signed()))
}

func (t *txStore) SumMovements(ctx context.Context, accountID int64, window Window) (Movement, error) {
	return sumMovements(ctx, t.tx, accountID, window)
}

func (t *txStore) ReplaceBalance(ctx context.Context, b AccountBalance) (AccountBalance, error) {
	return scanBalance(t.tx.QueryRow(ctx, `INSERT INTO account_balances (account_id, period_id, opening_balance, debit_movements, credit_movements, closing_balance, last_updated)
VALUES ($1,$2,$3,$4,$5,$6,NOW())
ON CONFLICT (account_id, period_id) DO UPDATE SET
	opening_balance = EXCLUDED.opening_balance,
	debit_movements = EXCLUDED.debit_movements,
	credit_movements = EXCLUDED.credit_movements,
	closing_balance = EXCLUDED.closing_balance,
	last_updated = NOW()
RETURNING account_id, period_id, opening_balance, debit_movements, credit_movements, closing_balance, last_updated`,
		b.AccountID, b.PeriodID, b.OpeningBalance, b.DebitMovements, b.CreditMovements, b.ClosingBalance))
}

func sumMovements(ctx context.Context, q querier, accountID int64, window Window) (Movement, error) {
	where, args := windowClause([]string{"account_id=$1"}, []any{accountID}, window)
	m := Movement{AccountID: accountID}
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(debit),0), COALESCE(SUM(credit),0) FROM gl_records WHERE `+strings.Join(where, " AND "), args...).
		Scan(&m.Debit, &m.Credit)
	if err != nil {
		return Movement{}, err
	}
	return m, nil
}

func scanBalance(row pgx.Row) (AccountBalance, error) {
	var b AccountBalance
	var updated time.Time
	if err := row.Scan(&b.AccountID, &b.PeriodID, &b.OpeningBalance, &b.DebitMovements, &b.CreditMovements, &b.ClosingBalance, &updated); err != nil {
		return AccountBalance{}, err
	}
	b.LastUpdated = updated
	return b, nil
}

func windowClause(where []string, args []any, w Window) ([]string, []any) {
	return windowClauseColumn(where, args, w, "entry_date")
}

func windowClauseColumn(where []string, args []any, w Window, column string) ([]string, []any) {
	if !w.From.IsZero() {
		args = append(args, w.From)
		where = append(where, column+" >= $"+itoa(len(args)))
	}
	if !w.Before.IsZero() {
		args = append(args, w.Before)
		where = append(where, column+" < $"+itoa(len(args)))
	}
	return where, args
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
