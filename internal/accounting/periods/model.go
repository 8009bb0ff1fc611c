package periods

import "time"

// PeriodStatus enumerates valid period states. OPEN -> CLOSED is one-directional.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// FiscalYear groups contiguous periods.
type FiscalYear struct {
	ID        int64        `json:"id"`
	Code      string       `json:"code"`
	StartDate time.Time    `json:"startDate"`
	EndDate   time.Time    `json:"endDate"`
	Status    PeriodStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	Periods   []Period     `json:"periods,omitempty"`
}

// Period represents a fiscal period window. Both bounds are inclusive dates.
type Period struct {
	ID           int64        `json:"id"`
	FiscalYearID int64        `json:"fiscalYearId"`
	Code         string       `json:"code"`
	StartDate    time.Time    `json:"startDate"`
	EndDate      time.Time    `json:"endDate"`
	Status       PeriodStatus `json:"status"`
	ClosedAt     *time.Time   `json:"closedAt,omitempty"`
	ClosedBy     *int64       `json:"closedBy,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// IsOpen reports whether postings are accepted.
func (p Period) IsOpen() bool {
	return p.Status == PeriodStatusOpen
}

// Contains reports whether date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// CreateFiscalYearInput describes a fiscal year split into monthly periods.
type CreateFiscalYearInput struct {
	Code      string
	StartDate time.Time
	EndDate   time.Time
	ActorID   int64
}
