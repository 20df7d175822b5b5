package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spot-grid-bot-go/internal/models"
	"spot-grid-bot-go/internal/reporter"
)

func roundTripKlines() []models.Kline {
	return []models.Kline{
		{OpenTime: time.Unix(0, 0), Open: 100, High: 101, Low: 98, Close: 99},
		{OpenTime: time.Unix(60, 0), Open: 100, High: 106, Low: 99, Close: 105},
	}
}

func TestRunBacktest_RoundTrip(t *testing.T) {
	result, err := RunBacktest(context.Background(), testConfig(), roundTripKlines(), testRules, nil, zap.NewNop())
	require.NoError(t, err)

	require.Len(t, result.Fills, 2)
	assert.Equal(t, models.Buy, result.Fills[0].Side)
	assert.Equal(t, 2, result.Fills[0].GridIndex)
	assert.Equal(t, models.Sell, result.Fills[1].Side)
	assert.Equal(t, 3, result.Fills[1].GridIndex)
	assert.Equal(t, time.Unix(60, 0).Unix(), result.Fills[1].FilledAt.Unix())

	assert.Greater(t, result.RealizedPnL, 0.0)
	assert.InDelta(t, result.Fills[1].RealizedPnL, result.RealizedPnL, 1e-12)
	assert.Equal(t, 100.0, result.InitialEquity)
	assert.Greater(t, result.FinalEquity, result.InitialEquity)
	assert.Greater(t, result.TotalFees, 0.0)
	assert.Len(t, result.EquityCurve, 9, "one point for the opening price and one per path step")
	assert.Equal(t, time.Unix(0, 0), result.StartTime)
	assert.Equal(t, time.Unix(60, 0), result.EndTime)
	assert.InDelta(t, 0.013, result.Balances["BTC"], 1e-9)

	m := reporter.CalculateMetrics(result)
	assert.Equal(t, 1, m.RoundTrips)
	assert.Equal(t, 1, m.WinningTrades)
}

func TestRunBacktest_NoKlines(t *testing.T) {
	_, err := RunBacktest(context.Background(), testConfig(), nil, testRules, nil, nil)
	require.Error(t, err)
	assert.Equal(t, models.KindConfiguration, models.KindOf(err))
}

func TestRunBacktest_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunBacktest(ctx, testConfig(), roundTripKlines(), testRules, nil, zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBacktest_DoesNotMutateConfig(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true

	_, err := RunBacktest(context.Background(), cfg, roundTripKlines(), testRules, nil, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}
