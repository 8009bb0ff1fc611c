package periods

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service is the period calendar.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// FindByDate returns the period containing date, open or closed.
func (s *Service) FindByDate(ctx context.Context, date time.Time) (Period, error) {
	return s.repo.FindByDate(ctx, shared.DateOf(date))
}

func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// NextOpenAfter returns the first open period starting on or after date.
func (s *Service) NextOpenAfter(ctx context.Context, date time.Time) (Period, error) {
	return s.repo.NextOpenAfter(ctx, shared.DateOf(date))
}

func (s *Service) ListByFiscalYear(ctx context.Context, fiscalYearID int64) ([]Period, error) {
	return s.repo.ListByFiscalYear(ctx, fiscalYearID)
}

// CreateFiscalYear stores a fiscal year together with its monthly periods.
func (s *Service) CreateFiscalYear(ctx context.Context, in CreateFiscalYearInput) (FiscalYear, error) {
	code := strings.TrimSpace(in.Code)
	if code == "" {
		code = fmt.Sprintf("FY%d", in.StartDate.Year())
	}
	list, err := GenerateMonthlyPeriods(in.StartDate, in.EndDate)
	if err != nil {
		return FiscalYear{}, err
	}
	if err := ValidateContiguous(in.StartDate, in.EndDate, list); err != nil {
		return FiscalYear{}, err
	}
	fy, err := s.repo.CreateFiscalYear(ctx, FiscalYear{
		Code:      code,
		StartDate: shared.DateOf(in.StartDate),
		EndDate:   shared.DateOf(in.EndDate),
		Status:    PeriodStatusOpen,
	}, list)
	if err != nil {
		return FiscalYear{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "fiscal_year.create",
			Entity:   "fiscal_year",
			EntityID: fmt.Sprintf("%d", fy.ID),
			Meta: map[string]any{
				"code":    fy.Code,
				"periods": len(fy.Periods),
			},
			At: s.now(),
		})
	}
	return fy, nil
}

// Close moves a period to CLOSED. The transition cannot be undone.
func (s *Service) Close(ctx context.Context, id, actorID int64) (Period, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return Period{}, err
	}
	if !before.IsOpen() {
		return Period{}, shared.Wrap(shared.ErrInvalidStatus, "period %s already closed", before.Code)
	}
	closed, err := s.repo.Close(ctx, id, actorID, s.now())
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  actorID,
			Action:   "period.close",
			Entity:   "period",
			EntityID: fmt.Sprintf("%d", id),
			Meta: map[string]any{
				"before": before.Status,
				"after":  closed.Status,
			},
			At: s.now(),
		})
	}
	return closed, nil
}
