package stock

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 3, n, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplySetEstablishesPosition(t *testing.T) {
	l := NewLedger()

	res, err := l.Apply(day(1), "AAPL", Delta{Set: &Set{Amount: dec("10"), Value: 150000}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Gain)
	assert.True(t, dec("10").Equal(l.Last("AAPL").Amount))
	assert.Equal(t, int64(150000), l.Last("AAPL").Value)
}

func TestApplyBuyAccumulatesWeightedAverage(t *testing.T) {
	l := NewLedger()

	_, err := l.Apply(day(1), "AAPL", Delta{Change: &Change{Amount: dec("10"), Value: 100000}})
	require.NoError(t, err)
	_, err = l.Apply(day(2), "AAPL", Delta{Change: &Change{Amount: dec("10"), Value: 200000}})
	require.NoError(t, err)

	pos := l.Last("AAPL")
	assert.True(t, dec("20").Equal(pos.Amount))
	assert.Equal(t, int64(300000), pos.Value)
	// 3000.00 over 20 units = 150.00 per unit.
	assert.True(t, dec("150").Equal(pos.AverageCost()))
}

func TestApplySellRealizesProportionalGain(t *testing.T) {
	l := NewLedger()

	// Buy 0.01 BTC for 605.00, sell half for 316.00.
	_, err := l.Apply(day(1), "BTC", Delta{Change: &Change{Amount: dec("0.01"), Value: 60500}})
	require.NoError(t, err)

	res, err := l.Apply(day(10), "BTC", Delta{Change: &Change{Amount: dec("-0.005"), Value: -31600}})
	require.NoError(t, err)

	assert.Equal(t, int64(1350), res.Gain)
	assert.True(t, dec("0.005").Equal(res.Position.Amount))
	assert.Equal(t, int64(30250), res.Position.Value)
}

func TestApplySellAtLossRealizesNegativeGain(t *testing.T) {
	l := NewLedger()

	_, err := l.Apply(day(1), "NOKIA", Delta{Change: &Change{Amount: dec("100"), Value: 35500}})
	require.NoError(t, err)

	// Sell everything for 300.00 against a 355.00 basis.
	res, err := l.Apply(day(5), "NOKIA", Delta{Change: &Change{Amount: dec("-100"), Value: -30000}})
	require.NoError(t, err)

	assert.Equal(t, int64(-5500), res.Gain)
	assert.True(t, res.Position.Zero())
	assert.Empty(t, l.Summary())
}

func TestApplyFullCycleReturnsToEmpty(t *testing.T) {
	l := NewLedger()

	_, err := l.Apply(day(1), "ETH", Delta{Change: &Change{Amount: dec("3"), Value: 90000}})
	require.NoError(t, err)
	_, err = l.Apply(day(2), "ETH", Delta{Change: &Change{Amount: dec("-1"), Value: -31000}})
	require.NoError(t, err)
	res, err := l.Apply(day(3), "ETH", Delta{Change: &Change{Amount: dec("-2"), Value: -65000}})
	require.NoError(t, err)

	// 30000 cost out on day 2, 60000 on day 3.
	assert.Equal(t, int64(5000), res.Gain)
	assert.True(t, l.Last("ETH").Zero())
}

func TestApplySignFlip(t *testing.T) {
	l := NewLedger()

	_, err := l.Apply(day(1), "XYZ", Delta{Change: &Change{Amount: dec("10"), Value: 1000}})
	require.NoError(t, err)

	// Sell 15 for 3000 cents: closes 10 held at 1000 basis, opens short 5.
	res, err := l.Apply(day(2), "XYZ", Delta{Change: &Change{Amount: dec("-15"), Value: -3000}})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), res.Gain)
	assert.True(t, dec("-5").Equal(res.Position.Amount))
	assert.Equal(t, int64(-1000), res.Position.Value)
}

func TestStockConservation(t *testing.T) {
	l := NewLedger()

	changes := []string{"1.5", "-0.5", "2.25", "-1", "0.125"}
	expected := decimal.Zero
	_, err := l.Apply(day(1), "BTC", Delta{Set: &Set{Amount: dec("1"), Value: 100000}})
	require.NoError(t, err)
	expected = dec("1")

	for i, c := range changes {
		amount := dec(c)
		_, err := l.Apply(day(i+2), "BTC", Delta{Change: &Change{Amount: amount, Value: amount.Mul(dec("30000")).Round(0).IntPart()}})
		require.NoError(t, err)
		expected = expected.Add(amount)
	}

	got := l.Summary()["BTC"]
	assert.True(t, expected.Sub(got.Amount).Abs().LessThan(dec("0.000000001")),
		"expected %s, got %s", expected, got.Amount)
}

func TestApplyOutOfOrderRejected(t *testing.T) {
	l := NewLedger()

	_, err := l.Apply(day(5), "AAPL", Delta{Change: &Change{Amount: dec("1"), Value: 100}})
	require.NoError(t, err)

	_, err = l.Apply(day(1), "AAPL", Delta{Change: &Change{Amount: dec("1"), Value: 100}})
	assert.Error(t, err)
}

func TestApplySetRejectsDanglingCents(t *testing.T) {
	l := NewLedger()

	// An empty position may not hold cost: that would silently discard
	// cents no reduction can ever realize.
	_, err := l.Apply(day(1), "AAPL", Delta{Set: &Set{Amount: decimal.Zero, Value: 42}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "42 cents")

	// A near-zero residual amount is the same case.
	_, err = l.Apply(day(1), "AAPL", Delta{Set: &Set{Amount: dec("0.0000000001"), Value: 42}})
	require.Error(t, err)

	// Zero amount with zero value clears the position.
	_, err = l.Apply(day(1), "AAPL", Delta{Set: &Set{Amount: decimal.Zero, Value: 0}})
	require.NoError(t, err)
	assert.True(t, l.Last("AAPL").Zero())
}

func TestApplyMalformedDelta(t *testing.T) {
	l := NewLedger()

	_, err := l.Apply(day(1), "AAPL", Delta{})
	assert.Error(t, err)

	_, err = l.Apply(day(1), "AAPL", Delta{
		Set:    &Set{Amount: dec("1")},
		Change: &Change{Amount: dec("1")},
	})
	assert.Error(t, err)
}

func TestSummaryExcludesZeroedAssets(t *testing.T) {
	l := NewLedger()

	_, err := l.Apply(day(1), "AAPL", Delta{Change: &Change{Amount: dec("10"), Value: 1000}})
	require.NoError(t, err)
	_, err = l.Apply(day(2), "MSFT", Delta{Change: &Change{Amount: dec("5"), Value: 500}})
	require.NoError(t, err)
	_, err = l.Apply(day(3), "MSFT", Delta{Change: &Change{Amount: dec("-5"), Value: -600}})
	require.NoError(t, err)

	summary := l.Summary()
	assert.Contains(t, summary, "AAPL")
	assert.NotContains(t, summary, "MSFT")
	assert.Equal(t, []string{"AAPL", "MSFT"}, l.Assets())
}
