package balancesheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository stores balance sheet snapshots.
type Repository interface {
	Insert(ctx context.Context, s Snapshot) (Snapshot, error)
	Get(ctx context.Context, id int64) (Snapshot, error)
	List(ctx context.Context, f ListFilter) ([]Snapshot, int, error)
	// DeleteDraft removes a snapshot that is not final.
	DeleteDraft(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, s Snapshot) (Snapshot, error) {
	payload, err := json.Marshal(s.Report)
	if err != nil {
		return Snapshot{}, err
	}
	err = r.db.QueryRow(ctx, `INSERT INTO balance_sheet_reports
(name, report_date, comparative_date, include_drafts, is_final, is_balanced, total_assets, total_equity, total_liabilities, balance_difference, payload, created_by, finalized_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id, created_at`,
		s.Name, s.ReportDate, s.Report.ComparativeDate, s.Report.IncludeDrafts, s.IsFinal, s.IsBalanced,
		s.Report.TotalAssets, s.Report.TotalEquity, s.Report.TotalLiabilities, s.Report.BalanceDifference,
		payload, s.CreatedBy, s.FinalizedAt).Scan(&s.ID, &s.CreatedAt)
	return s, err
}

func (r *repository) Get(ctx context.Context, id int64) (Snapshot, error) {
	var s Snapshot
	var payload []byte
	err := r.db.QueryRow(ctx, `SELECT id, name, report_date, is_final, is_balanced, payload, created_by, created_at, finalized_at
FROM balance_sheet_reports WHERE id=$1`, id).Scan(&s.ID, &s.Name, &s.ReportDate, &s.IsFinal, &s.IsBalanced, &payload,
		&s.CreatedBy, &s.CreatedAt, &s.FinalizedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Snapshot{}, shared.Wrap(shared.ErrReportNotFound, "balance sheet %d", id)
		}
		return Snapshot{}, err
	}
	if err := json.Unmarshal(payload, &s.Report); err != nil {
		return Snapshot{}, fmt.Errorf("decode balance sheet %d: %w", id, err)
	}
	return s, nil
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]Snapshot, int, error) {
	where := []string{"TRUE"}
	var args []any
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("report_date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("report_date <= $%d", len(args)))
	}
	if f.Final != nil {
		args = append(args, *f.Final)
		where = append(where, fmt.Sprintf("is_final = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM balance_sheet_reports WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	pg := internalShared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, pg.PerPage, pg.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT id, name, report_date, is_final, is_balanced, created_by, created_at, finalized_at
FROM balance_sheet_reports WHERE %s ORDER BY report_date DESC, id DESC LIMIT $%d OFFSET $%d`, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.ID, &s.Name, &s.ReportDate, &s.IsFinal, &s.IsBalanced, &s.CreatedBy, &s.CreatedAt, &s.FinalizedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repository) DeleteDraft(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM balance_sheet_reports WHERE id=$1 AND is_final = FALSE`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return shared.Wrap(shared.ErrReportFinal, "balance sheet %d", id)
	}
	return nil
}
