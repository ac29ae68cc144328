package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/common"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/connector"
	"github.com/dataplugoy/tasenor-bookkeeper-sub002/internal/model"
)

func TestOracleCacheRateAtMostOnce(t *testing.T) {
	conn := connector.NewMockConnector()
	conn.GetRateFn = func(_ context.Context, asset string, _ time.Time) (float64, error) {
		return 1.1, nil
	}
	cache := NewOracleCache(conn)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rate, err := cache.Rate(ctx, "USD", day)
		require.NoError(t, err)
		assert.Equal(t, 1.1, rate)
	}
	assert.Len(t, conn.RateCalls, 1)

	// A different date is a different query.
	_, err := cache.Rate(ctx, "USD", day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, conn.RateCalls, 2)
}

func TestOracleCacheEmptyCandidatesCached(t *testing.T) {
	conn := connector.NewMockConnector()
	cache := NewOracleCache(conn)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		cands, err := cache.AccountCandidates(ctx, "expense.other")
		require.NoError(t, err)
		assert.Empty(t, cands)
	}
	assert.Len(t, conn.AccountCalls, 1, "absence is cached too")
}

func TestOracleCacheWrapsFailures(t *testing.T) {
	conn := connector.NewMockConnector()
	conn.GetVATFn = func(_ context.Context, _ model.TransferReason, _ time.Time) (float64, error) {
		return 0, errors.New("connection refused")
	}
	cache := NewOracleCache(conn)

	_, err := cache.VAT(context.Background(), model.ReasonExpense, time.Now())
	assert.ErrorIs(t, err, common.ErrOracleFailure)
	assert.Len(t, conn.VATCalls, 1)

	// Failed lookups are not cached; the next call retries.
	_, _ = cache.VAT(context.Background(), model.ReasonExpense, time.Now())
	assert.Len(t, conn.VATCalls, 2)
}
