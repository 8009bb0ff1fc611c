package shared

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestSignedBalanceFollowsNormalSide(t *testing.T) {
	require.True(t, SignedBalance(NormalDebit, dec("150"), dec("40")).Equal(dec("110")))
	require.True(t, SignedBalance(NormalCredit, dec("150"), dec("40")).Equal(dec("-110")))
	require.True(t, SignedBalance(NormalCredit, decimal.Zero, decimal.Zero).IsZero())
}

func TestPlaceBalanceFlagsOppositeSide(t *testing.T) {
	dr, cr, warn := PlaceBalance(NormalDebit, dec("100"), dec("30"))
	require.True(t, dr.Equal(dec("70")))
	require.True(t, cr.IsZero())
	require.False(t, warn)

	dr, cr, warn = PlaceBalance(NormalDebit, dec("10"), dec("30"))
	require.True(t, dr.IsZero())
	require.True(t, cr.Equal(dec("20")))
	require.True(t, warn)

	dr, cr, warn = PlaceBalance(NormalCredit, dec("50"), dec("50"))
	require.True(t, dr.IsZero())
	require.True(t, cr.IsZero())
	require.False(t, warn)
}

func TestComputeVariance(t *testing.T) {
	threshold := dec("10")
	v := ComputeVariance(dec("110"), dec("100"), &threshold)
	require.True(t, v.Amount.Equal(dec("10")))
	require.NotNil(t, v.PercentChange)
	require.True(t, v.PercentChange.Equal(dec("10")))
	require.True(t, v.IsSignificant)

	v = ComputeVariance(dec("105"), dec("100"), &threshold)
	require.False(t, v.IsSignificant)

	v = ComputeVariance(dec("1"), dec("3"), nil)
	require.True(t, v.PercentChange.Equal(dec("-66.67")))
	require.False(t, v.IsSignificant)
}

func TestComputeVarianceJudgesThresholdBeforeRounding(t *testing.T) {
	threshold := dec("10")
	v := ComputeVariance(dec("10999.6"), dec("10000"), &threshold)
	require.True(t, v.PercentChange.Equal(dec("10")))
	require.False(t, v.IsSignificant)

	v = ComputeVariance(dec("9000.4"), dec("10000"), &threshold)
	require.True(t, v.PercentChange.Equal(dec("-10")))
	require.False(t, v.IsSignificant)

	v = ComputeVariance(dec("11000"), dec("10000"), &threshold)
	require.True(t, v.IsSignificant)
}

func TestComputeVarianceZeroComparedHasNoPercent(t *testing.T) {
	threshold := dec("1")
	v := ComputeVariance(dec("500"), decimal.Zero, &threshold)
	require.True(t, v.Amount.Equal(dec("500")))
	require.Nil(t, v.PercentChange)
	require.False(t, v.IsSignificant)
}

func TestDecimalSumsAreExact(t *testing.T) {
	total := Sum(dec("0.1"), dec("0.2"))
	require.True(t, total.Equal(dec("0.3")))
}

func TestErrorMatchingByCode(t *testing.T) {
	err := Wrap(ErrUnbalanced, "debit %s credit %s", "1000", "500")
	require.True(t, errors.Is(err, ErrUnbalanced))
	require.False(t, errors.Is(err, ErrPeriodClosed))
	require.Equal(t, "UNBALANCED_ENTRY", CodeOf(err))
	require.Equal(t, KindUnbalanced, KindOf(err))
	require.Contains(t, err.Error(), "debit 1000 credit 500")
	require.Equal(t, "INTERNAL", CodeOf(errors.New("boom")))
}

func TestDateOfDropsClock(t *testing.T) {
	loc := time.FixedZone("WAW", 2*3600)
	got := DateOf(time.Date(2024, 1, 31, 23, 30, 0, 0, loc))
	require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), got)

	parsed, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), parsed)

	_, err = ParseDate("29/02/2024")
	require.ErrorIs(t, err, ErrValidation)
}
