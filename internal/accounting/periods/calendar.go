package periods

import (
	"fmt"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// GenerateMonthlyPeriods splits [start, end] into calendar-month periods. The
// first and last periods are clipped to the fiscal year bounds.
func GenerateMonthlyPeriods(start, end time.Time) ([]Period, error) {
	start, end = shared.DateOf(start), shared.DateOf(end)
	if end.Before(start) {
		return nil, shared.Wrap(shared.ErrValidation, "fiscal year ends before it starts")
	}
	var out []Period
	cursor := start
	for !cursor.After(end) {
		monthEnd := time.Date(cursor.Year(), cursor.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		if monthEnd.After(end) {
			monthEnd = end
		}
		out = append(out, Period{
			Code:      fmt.Sprintf("%04d-%02d", cursor.Year(), int(cursor.Month())),
			StartDate: cursor,
			EndDate:   monthEnd,
			Status:    PeriodStatusOpen,
		})
		cursor = monthEnd.AddDate(0, 0, 1)
	}
	return out, nil
}

// ValidateContiguous checks that periods tile [start, end] without gaps or overlaps.
func ValidateContiguous(start, end time.Time, list []Period) error {
	if len(list) == 0 {
		return shared.Wrap(shared.ErrPeriodsNotContiguous, "no periods")
	}
	sorted := append([]Period(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartDate.Before(sorted[j].StartDate) })
	if !sorted[0].StartDate.Equal(shared.DateOf(start)) {
		return shared.Wrap(shared.ErrPeriodsNotContiguous, "first period starts %s", sorted[0].StartDate.Format(shared.DateLayout))
	}
	for i, p := range sorted {
		if p.EndDate.Before(p.StartDate) {
			return shared.Wrap(shared.ErrPeriodsNotContiguous, "period %s ends before it starts", p.Code)
		}
		if i == 0 {
			continue
		}
		want := sorted[i-1].EndDate.AddDate(0, 0, 1)
		if !p.StartDate.Equal(want) {
			return shared.Wrap(shared.ErrPeriodsNotContiguous, "period %s starts %s, expected %s", p.Code, p.StartDate.Format(shared.DateLayout), want.Format(shared.DateLayout))
		}
	}
	if last := sorted[len(sorted)-1]; !last.EndDate.Equal(shared.DateOf(end)) {
		return shared.Wrap(shared.ErrPeriodsNotContiguous, "last period ends %s", last.EndDate.Format(shared.DateLayout))
	}
	return nil
}
