package wtb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists working trial balances.
type Repository interface {
	Get(ctx context.Context, id int64) (WorkingTrialBalance, error)
	List(ctx context.Context, f ListFilter) ([]WorkingTrialBalance, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	NextSequence(ctx context.Context, orgID int64, year int) (int64, error)
	Insert(ctx context.Context, w WorkingTrialBalance) (WorkingTrialBalance, error)
	GetForUpdate(ctx context.Context, id int64) (WorkingTrialBalance, error)
	InsertColumn(ctx context.Context, c Column) (Column, error)
	UpdateLine(ctx context.Context, l Line) error
	UpdateStatus(ctx context.Context, w WorkingTrialBalance) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const headerColumns = `id, code, name, description, fiscal_year_id, period_id, as_of_date, status, locked_at, locked_by, created_by, created_at, updated_at`

func scanHeader(row pgx.Row) (WorkingTrialBalance, error) {
	var w WorkingTrialBalance
	err := row.Scan(&w.ID, &w.Code, &w.Name, &w.Description, &w.FiscalYearID, &w.PeriodID, &w.AsOfDate, &w.Status,
		&w.LockedAt, &w.LockedBy, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func load(ctx context.Context, q querier, id int64, lock bool) (WorkingTrialBalance, error) {
	sql := `SELECT ` + headerColumns + ` FROM working_trial_balances WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	w, err := scanHeader(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkingTrialBalance{}, shared.Wrap(shared.ErrWTBNotFound, "wtb %d", id)
		}
		return WorkingTrialBalance{}, err
	}
	if w.Columns, err = listColumns(ctx, q, id); err != nil {
		return WorkingTrialBalance{}, err
	}
	if w.Lines, err = listLines(ctx, q, id); err != nil {
		return WorkingTrialBalance{}, err
	}
	return w, nil
}

func listColumns(ctx context.Context, q querier, wtbID int64) ([]Column, error) {
	rows, err := q.Query(ctx, `SELECT id, wtb_id, name, column_type, journal_entry_id, position, created_at
FROM wtb_columns WHERE wtb_id=$1 ORDER BY position ASC`, wtbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Column{}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.ID, &c.WTBID, &c.Name, &c.Type, &c.JournalEntryID, &c.Position, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func listLines(ctx context.Context, q querier, wtbID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, wtb_id, account_id, account_code, account_name, account_type, normal_balance,
unadjusted_debit, unadjusted_credit, adjustments, adjusted_debit, adjusted_credit
FROM wtb_lines WHERE wtb_id=$1 ORDER BY account_code ASC`, wtbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Line{}
	for rows.Next() {
		var l Line
		var raw []byte
		if err := rows.Scan(&l.ID, &l.WTBID, &l.AccountID, &l.AccountCode, &l.AccountName, &l.AccountType, &l.NormalBalance,
			&l.UnadjustedDebit, &l.UnadjustedCredit, &raw, &l.AdjustedDebit, &l.AdjustedCredit); err != nil {
			return nil, err
		}
		l.Adjustments = []Adjustment{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &l.Adjustments); err != nil {
				return nil, fmt.Errorf("decode adjustments for line %d: %w", l.ID, err)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (WorkingTrialBalance, error) {
	return load(ctx, r.db, id, false)
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]WorkingTrialBalance, int, error) {
	where := "TRUE"
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if f.PeriodID != 0 {
		args = append(args, f.PeriodID)
		where += fmt.Sprintf(" AND period_id=$%d", len(args))
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM working_trial_balances WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	pg := internalShared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, pg.PerPage, pg.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM working_trial_balances WHERE %s ORDER BY as_of_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		headerColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []WorkingTrialBalance
	for rows.Next() {
		w, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextSequence(ctx context.Context, orgID int64, year int) (int64, error) {
	var value int64
	err := r.tx.QueryRow(ctx, `INSERT INTO wtb_sequences (org_id, year, value) VALUES ($1,$2,1)
ON CONFLICT (org_id, year) DO UPDATE SET value = wtb_sequences.value + 1
RETURNING value`, orgID, year).Scan(&value)
	return value, err
}

func (r *txRepository) Insert(ctx context.Context, w WorkingTrialBalance) (WorkingTrialBalance, error) {
	if err := r.tx.QueryRow(ctx, `INSERT INTO working_trial_balances (code, name, description, fiscal_year_id, period_id, as_of_date, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		w.Code, w.Name, w.Description, w.FiscalYearID, w.PeriodID, w.AsOfDate, w.Status, w.CreatedBy).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return WorkingTrialBalance{}, err
	}
	lines := make([]Line, 0, len(w.Lines))
	for _, l := range w.Lines {
		l.WTBID = w.ID
		raw, err := json.Marshal(l.Adjustments)
		if err != nil {
			return WorkingTrialBalance{}, err
		}
		if err := r.tx.QueryRow(ctx, `INSERT INTO wtb_lines (wtb_id, account_id, account_code, account_name, account_type, normal_balance,
unadjusted_debit, unadjusted_credit, adjustments, adjusted_debit, adjusted_credit)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
			l.WTBID, l.AccountID, l.AccountCode, l.AccountName, l.AccountType, l.NormalBalance,
			l.UnadjustedDebit, l.UnadjustedCredit, raw, l.AdjustedDebit, l.AdjustedCredit).Scan(&l.ID); err != nil {
			return WorkingTrialBalance{}, err
		}
		lines = append(lines, l)
	}
	w.Lines = lines
	return w, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (WorkingTrialBalance, error) {
	return load(ctx, r.tx, id, true)
}

func (r *txRepository) InsertColumn(ctx context.Context, c Column) (Column, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO wtb_columns (wtb_id, name, column_type, journal_entry_id, position)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, c.WTBID, c.Name, c.Type, c.JournalEntryID, c.Position).Scan(&c.ID, &c.CreatedAt)
	return c, err
}

func (r *txRepository) UpdateLine(ctx context.Context, l Line) error {
	raw, err := json.Marshal(l.Adjustments)
	if err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE wtb_lines SET adjustments=$2, adjusted_debit=$3, adjusted_credit=$4 WHERE id=$1`,
		l.ID, raw, l.AdjustedDebit, l.AdjustedCredit)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Wrap(shared.ErrLineNotFound, "line %d", l.ID)
	}
	_, err = r.tx.Exec(ctx, `UPDATE working_trial_balances SET updated_at=NOW() WHERE id=$1`, l.WTBID)
	return err
}

func (r *txRepository) UpdateStatus(ctx context.Context, w WorkingTrialBalance) error {
	_, err := r.tx.Exec(ctx, `UPDATE working_trial_balances SET status=$2, locked_at=$3, locked_by=$4, updated_at=NOW() WHERE id=$1`,
		w.ID, w.Status, w.LockedAt, w.LockedBy)
	return err
}

// Delete removes a draft WTB with its lines and columns.
func (r *txRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM wtb_lines WHERE wtb_id=$1`, id); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM wtb_columns WHERE wtb_id=$1`, id); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM working_trial_balances WHERE id=$1 AND status='DRAFT'`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Wrap(shared.ErrWTBLocked, "wtb %d", id)
	}
	return nil
}
