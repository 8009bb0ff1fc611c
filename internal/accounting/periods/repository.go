package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

type Repository interface {
	FindByDate(ctx context.Context, date time.Time) (Period, error)
	Get(ctx context.Context, id int64) (Period, error)
	NextOpenAfter(ctx context.Context, date time.Time) (Period, error)
	ListByFiscalYear(ctx context.Context, fiscalYearID int64) ([]Period, error)
	GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error)
	CreateFiscalYear(ctx context.Context, fy FiscalYear, periods []Period) (FiscalYear, error)
	Close(ctx context.Context, id, actorID int64, at time.Time) (Period, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, fiscal_year_id, code, start_date, end_date, status, closed_at, closed_by, created_at, updated_at`

// ScanPeriod reads a period row selected with the canonical column order.
func ScanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// SelectPeriodForUpdate is shared by transactional repositories that lock a period row.
const SelectPeriodForUpdate = `SELECT ` + periodColumns + ` FROM periods WHERE id=$1 FOR UPDATE`

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Wrap(shared.ErrPeriodNotFound, format, args...)
	}
	return err
}

// FindByDate returns the period covering date regardless of status.
func (r *repository) FindByDate(ctx context.Context, date time.Time) (Period, error) {
	p, err := ScanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+`
FROM periods WHERE $1 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, date))
	if err != nil {
		return Period{}, notFound(err, "no period covers %s", date.Format(shared.DateLayout))
	}
	return p, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Period, error) {
	p, err := ScanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id))
	if err != nil {
		return Period{}, notFound(err, "period %d", id)
	}
	return p, nil
}

func (r *repository) NextOpenAfter(ctx context.Context, date time.Time) (Period, error) {
	p, err := ScanPeriod(r.db.QueryRow(ctx, `SELECT `+periodColumns+`
FROM periods WHERE status='OPEN' AND start_date >= $1 ORDER BY start_date ASC LIMIT 1`, date))
	if err != nil {
		return Period{}, notFound(err, "no open period after %s", date.Format(shared.DateLayout))
	}
	return p, nil
}

func (r *repository) ListByFiscalYear(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods WHERE fiscal_year_id=$1 ORDER BY start_date`, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := ScanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) GetFiscalYear(ctx context.Context, id int64) (FiscalYear, error) {
	var fy FiscalYear
	err := r.db.QueryRow(ctx, `SELECT id, code, start_date, end_date, status, created_at FROM fiscal_years WHERE id=$1`, id).
		Scan(&fy.ID, &fy.Code, &fy.StartDate, &fy.EndDate, &fy.Status, &fy.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, shared.Wrap(shared.ErrFiscalYearNotFound, "fiscal year %d", id)
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

func (r *repository) CreateFiscalYear(ctx context.Context, fy FiscalYear, list []Period) (FiscalYear, error) {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO fiscal_years (code, start_date, end_date, status) VALUES ($1,$2,$3,$4) RETURNING id, created_at`,
			fy.Code, fy.StartDate, fy.EndDate, fy.Status).Scan(&fy.ID, &fy.CreatedAt); err != nil {
			return err
		}
		fy.Periods = fy.Periods[:0]
		for _, p := range list {
			p.FiscalYearID = fy.ID
			if err := tx.QueryRow(ctx, `INSERT INTO periods (fiscal_year_id, code, start_date, end_date, status) VALUES ($1,$2,$3,$4,$5)
RETURNING id, created_at, updated_at`, p.FiscalYearID, p.Code, p.StartDate, p.EndDate, p.Status).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			fy.Periods = append(fy.Periods, p)
		}
		return nil
	})
	if err != nil {
		return FiscalYear{}, err
	}
	return fy, nil
}

// Close flips an open period to CLOSED. Closed periods never reopen.
func (r *repository) Close(ctx context.Context, id, actorID int64, at time.Time) (Period, error) {
	p, err := ScanPeriod(r.db.QueryRow(ctx, `UPDATE periods SET status='CLOSED', closed_at=$2, closed_by=$3, updated_at=NOW()
WHERE id=$1 AND status='OPEN' RETURNING `+periodColumns, id, at, actorID))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Period{}, err
	}
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return Period{}, getErr
	}
	return Period{}, shared.Wrap(shared.ErrInvalidStatus, "period %d already closed", id)
}
