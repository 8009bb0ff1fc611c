package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	Get(ctx context.Context, id int64) (JournalEntry, error)
	Query(ctx context.Context, q Query) ([]JournalEntry, int, error)
	Statistics(ctx context.Context, f StatsFilter) (Statistics, error)
	// PeekSequence returns the value NextSequence would allocate, without allocating it.
	PeekSequence(ctx context.Context, orgID int64, entryType EntryType, year, month int) (int64, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. Ledger writes
// share the same transaction so posting commits atomically.
type TxRepository interface {
	ledger.TxStore
	NextSequence(ctx context.Context, orgID int64, entryType EntryType, year, month int) (int64, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	ReplaceLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error)
	UpdateEntry(ctx context.Context, entry JournalEntry) error
	DeleteEntry(ctx context.Context, entryID int64) error
	GetForUpdate(ctx context.Context, entryID int64) (JournalEntry, error)
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, ref_id, entry_number, entry_date, entry_type, status, period_id, description, reference,
total_debit, total_credit, requires_approval, approved_at, approved_by, posted_at, posted_by, reversed_at, reversed_by,
reversal_of_id, source_module, source_id, created_by, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var sourceModule *string
	err := row.Scan(&e.ID, &e.RefID, &e.EntryNumber, &e.EntryDate, &e.EntryType, &e.Status, &e.PeriodID, &e.Description, &e.Reference,
		&e.TotalDebit, &e.TotalCredit, &e.RequiresApproval, &e.ApprovedAt, &e.ApprovedBy, &e.PostedAt, &e.PostedBy, &e.ReversedAt, &e.ReversedBy,
		&e.ReversalOfID, &sourceModule, &e.SourceID, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if sourceModule != nil {
		e.SourceModule = *sourceModule
	}
	return e, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getEntry(ctx context.Context, q querier, id int64, lock bool) (JournalEntry, error) {
	sql := `SELECT ` + entryColumns + ` FROM journal_entries WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	entry, err := scanEntry(q.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.Wrap(shared.ErrEntryNotFound, "entry %d", id)
		}
		return JournalEntry{}, err
	}
	lines, err := listLines(ctx, q, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func listLines(ctx context.Context, q querier, entryID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, line_number, account_id, description, debit, credit, currency, exchange_rate,
base_debit, base_credit, cost_center, project, tax_code FROM journal_lines WHERE entry_id=$1 ORDER BY line_number ASC`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNumber, &l.AccountID, &l.Description, &l.DebitAmount, &l.CreditAmount, &l.Currency, &l.ExchangeRate,
			&l.BaseDebitAmount, &l.BaseCreditAmount, &l.CostCenter, &l.Project, &l.TaxCode); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (JournalEntry, error) {
	return getEntry(ctx, r.db, id, false)
}

func (r *repository) Query(ctx context.Context, q Query) ([]JournalEntry, int, error) {
	where := []string{"TRUE"}
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.Status != "" {
		add("status=$%d", q.Status)
	}
	if q.EntryType != "" {
		add("entry_type=$%d", q.EntryType)
	}
	if q.PeriodID != 0 {
		add("period_id=$%d", q.PeriodID)
	}
	if q.AccountID != 0 {
		add("EXISTS (SELECT 1 FROM journal_lines l WHERE l.entry_id = journal_entries.id AND l.account_id=$%d)", q.AccountID)
	}
	if q.From != nil {
		add("entry_date >= $%d", shared.DateOf(*q.From))
	}
	if q.To != nil {
		add("entry_date <= $%d", shared.DateOf(*q.To))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		add("(entry_number ILIKE $%[1]d OR description ILIKE $%[1]d OR reference ILIKE $%[1]d)", "%"+s+"%")
	}
	cond := strings.Join(where, " AND ")
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	pg := internalShared.NewPagination(q.Page, q.PerPage, total)
	args = append(args, pg.PerPage, pg.Offset())
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE `+cond+
		fmt.Sprintf(` ORDER BY entry_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *repository) Statistics(ctx context.Context, f StatsFilter) (Statistics, error) {
	where := []string{"TRUE"}
	var args []any
	if f.From != nil {
		args = append(args, shared.DateOf(*f.From))
		where = append(where, fmt.Sprintf("entry_date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, shared.DateOf(*f.To))
		where = append(where, fmt.Sprintf("entry_date <= $%d", len(args)))
	}
	rows, err := r.db.Query(ctx, `SELECT status, entry_type, COUNT(*), COALESCE(SUM(total_debit),0), COALESCE(SUM(total_credit),0)
FROM journal_entries WHERE `+strings.Join(where, " AND ")+` GROUP BY status, entry_type`, args...)
	if err != nil {
		return Statistics{}, err
	}
	defer rows.Close()
	var items []statRow
	for rows.Next() {
		var row statRow
		if err := rows.Scan(&row.status, &row.entryType, &row.count, &row.debit, &row.credit); err != nil {
			return Statistics{}, err
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, err
	}
	return foldStatistics(items), nil
}

type statRow struct {
	status    EntryStatus
	entryType EntryType
	count     int
	debit     decimal.Decimal
	credit    decimal.Decimal
}

func foldStatistics(items []statRow) Statistics {
	st := Statistics{
		ByStatus:          make(map[EntryStatus]int),
		ByType:            make(map[EntryType]int),
		PostedDebitTotal:  decimal.Zero,
		PostedCreditTotal: decimal.Zero,
	}
	for _, it := range items {
		st.Total += it.count
		st.ByStatus[it.status] += it.count
		st.ByType[it.entryType] += it.count
		if it.status == StatusPosted || it.status == StatusReversed {
			st.PostedDebitTotal = st.PostedDebitTotal.Add(it.debit)
			st.PostedCreditTotal = st.PostedCreditTotal.Add(it.credit)
		}
	}
	st.PendingApproval = st.ByStatus[StatusPendingApproval]
	return st
}

func (r *repository) PeekSequence(ctx context.Context, orgID int64, entryType EntryType, year, month int) (int64, error) {
	var value int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(value),0) + 1 FROM entry_sequences
WHERE org_id=$1 AND entry_type=$2 AND year=$3 AND month=$4`, orgID, entryType, year, month).Scan(&value)
	return value, err
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{TxStore: ledger.NewTxStore(tx), tx: tx})
	})
}

type txRepository struct {
	ledger.TxStore
	tx pgx.Tx
}

func (r *txRepository) NextSequence(ctx context.Context, orgID int64, entryType EntryType, year, month int) (int64, error) {
	var value int64
	err := r.tx.QueryRow(ctx, `INSERT INTO entry_sequences (org_id, entry_type, year, month, value) VALUES ($1,$2,$3,$4,1)
ON CONFLICT (org_id, entry_type, year, month) DO UPDATE SET value = entry_sequences.value + 1
RETURNING value`, orgID, entryType, year, month).Scan(&value)
	return value, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (ref_id, entry_number, entry_date, entry_type, status, period_id, description, reference,
total_debit, total_credit, requires_approval, reversal_of_id, source_module, source_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15) RETURNING id, created_at, updated_at`,
		e.RefID, e.EntryNumber, e.EntryDate, e.EntryType, e.Status, e.PeriodID, e.Description, e.Reference,
		e.TotalDebit, e.TotalCredit, e.RequiresApproval, e.ReversalOfID, nullString(e.SourceModule), e.SourceID, e.CreatedBy)
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	lines, err := r.ReplaceLines(ctx, e.ID, e.Lines)
	if err != nil {
		return JournalEntry{}, err
	}
	e.Lines = lines
	return e, nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, entryID int64, lines []JournalLine) ([]JournalLine, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return nil, err
	}
	out := make([]JournalLine, 0, len(lines))
	for _, l := range lines {
		l.EntryID = entryID
		if err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, line_number, account_id, description, debit, credit, currency, exchange_rate,
base_debit, base_credit, cost_center, project, tax_code) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
			entryID, l.LineNumber, l.AccountID, l.Description, l.DebitAmount, l.CreditAmount, l.Currency, l.ExchangeRate,
			l.BaseDebitAmount, l.BaseCreditAmount, l.CostCenter, l.Project, l.TaxCode).Scan(&l.ID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *txRepository) UpdateEntry(ctx context.Context, e JournalEntry) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET entry_date=$2, status=$3, period_id=$4, description=$5, reference=$6,
total_debit=$7, total_credit=$8, requires_approval=$9, approved_at=$10, approved_by=$11, posted_at=$12, posted_by=$13,
reversed_at=$14, reversed_by=$15, entry_number=$16, updated_at=NOW() WHERE id=$1`,
		e.ID, e.EntryDate, e.Status, e.PeriodID, e.Description, e.Reference, e.TotalDebit, e.TotalCredit, e.RequiresApproval,
		e.ApprovedAt, e.ApprovedBy, e.PostedAt, e.PostedBy, e.ReversedAt, e.ReversedBy, e.EntryNumber)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Wrap(shared.ErrEntryNotFound, "entry %d", e.ID)
	}
	return nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM source_links WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1 AND status='DRAFT'`, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.Wrap(shared.ErrEntryNotEditable, "entry %d", entryID)
	}
	return nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, entryID int64) (JournalEntry, error) {
	return getEntry(ctx, r.tx, entryID, true)
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		if db.UniqueViolation(err) {
			return shared.Wrap(shared.ErrSourceAlreadyLinked, "%s %s", module, ref)
		}
		return err
	}
	return nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
