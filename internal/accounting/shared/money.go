package shared

import (
	"time"

	"github.com/shopspring/decimal"
)

// NormalBalance is the side on which an account balance is positive.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Valid reports whether the side is known.
func (n NormalBalance) Valid() bool {
	return n == NormalDebit || n == NormalCredit
}

var hundred = decimal.NewFromInt(100)

// SignedBalance nets debit and credit totals by the normal side.
func SignedBalance(normal NormalBalance, debit, credit decimal.Decimal) decimal.Decimal {
	if normal == NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// PlaceBalance puts the net of debit and credit on the side matching its sign.
// warning is set when the balance sits opposite the normal side.
func PlaceBalance(normal NormalBalance, debit, credit decimal.Decimal) (dr, cr decimal.Decimal, warning bool) {
	net := debit.Sub(credit)
	switch net.Sign() {
	case 1:
		return net, decimal.Zero, normal == NormalCredit
	case -1:
		return decimal.Zero, net.Neg(), normal == NormalDebit
	default:
		return decimal.Zero, decimal.Zero, false
	}
}

// Variance compares a current value against a prior one.
type Variance struct {
	Amount        decimal.Decimal  `json:"variance"`
	PercentChange *decimal.Decimal `json:"percentChange"`
	IsSignificant bool             `json:"isSignificant"`
}

// ComputeVariance returns current - compared and the percent change relative to
// compared. The percent is nil when compared is zero and rounded to 2 places
// for display; significance is judged on the unrounded ratio. A nil threshold
// never flags the row.
func ComputeVariance(current, compared decimal.Decimal, threshold *decimal.Decimal) Variance {
	out := Variance{Amount: current.Sub(compared)}
	if compared.IsZero() {
		return out
	}
	raw := out.Amount.Mul(hundred).Div(compared)
	pct := raw.Round(2)
	out.PercentChange = &pct
	if threshold != nil && raw.Abs().GreaterThanOrEqual(*threshold) {
		out.IsSignificant = true
	}
	return out
}

// Sum adds the supplied amounts.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, Wrap(ErrValidation, "invalid date %q", value)
	}
	return t, nil
}
