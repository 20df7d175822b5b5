package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spot-grid-bot-go/internal/models"
)

func TestPaper_BooksOrdersLocally(t *testing.T) {
	market := newTestSim()
	paper := NewPaper(market, "BTC", "USDT", 0.001, map[string]float64{"USDT": 100}, zap.NewNop())
	ctx := context.Background()

	id, err := paper.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 95, 0.2, "dry_run_1")
	require.NoError(t, err)
	assert.Equal(t, "dry_run_1", id)
	assert.Empty(t, market.Orders(), "nothing reaches the inner exchange")

	status, err := paper.GetOrderStatus(ctx, "BTCUSDT", id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, status)

	market.SetPrice(94.5, time.Unix(60, 0))
	status, err = paper.GetOrderStatus(ctx, "BTCUSDT", id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, status)

	balances, err := paper.GetBalances(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, balances["BTC"], 1e-12)
	assert.InDelta(t, 100-19-0.019, balances["USDT"], 1e-9)

	// Filled orders stay filled even if the price moves away.
	market.SetPrice(120, time.Unix(120, 0))
	status, err = paper.GetOrderStatus(ctx, "BTCUSDT", id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, status)
}

func TestPaper_SellFillsAtOrAboveLimit(t *testing.T) {
	market := newTestSim()
	paper := NewPaper(market, "BTC", "USDT", 0, map[string]float64{"BTC": 1}, zap.NewNop())
	ctx := context.Background()

	_, err := paper.PlaceLimitOrder(ctx, "BTCUSDT", models.Sell, 105, 0.5, "s")
	require.NoError(t, err)

	status, err := paper.GetOrderStatus(ctx, "BTCUSDT", "s")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, status)

	market.SetPrice(105, time.Unix(60, 0))
	status, err = paper.GetOrderStatus(ctx, "BTCUSDT", "s")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, status)

	balances, _ := paper.GetBalances(ctx)
	assert.Equal(t, 0.5, balances["BTC"])
	assert.Equal(t, 52.5, balances["USDT"])
}

func TestPaper_UnknownAndCancel(t *testing.T) {
	paper := NewPaper(newTestSim(), "BTC", "USDT", 0.001, nil, zap.NewNop())
	ctx := context.Background()

	_, err := paper.GetOrderStatus(ctx, "BTCUSDT", "missing")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)

	_, err = paper.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 50, 1, "c")
	require.NoError(t, err)
	ok, err := paper.CancelOrder(ctx, "BTCUSDT", "c")
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := paper.GetOrderStatus(ctx, "BTCUSDT", "c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, status)

	_, err = paper.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 50, 1, "c")
	assert.Equal(t, models.KindExchange, models.KindOf(err), "duplicate client id")
}

func TestPaper_ReadsDelegate(t *testing.T) {
	market := newTestSim()
	paper := NewPaper(market, "BTC", "USDT", 0.001, nil, zap.NewNop())
	ctx := context.Background()

	price, err := paper.GetPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, price)

	rules, err := paper.GetSymbolRules(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, testRules, rules)

	market.FailNext("GetPrice", assert.AnError)
	_, err = paper.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 50, 1, "x")
	require.NoError(t, err)
	_, err = paper.GetOrderStatus(ctx, "BTCUSDT", "x")
	assert.True(t, models.IsRetryable(err), "price errors surface as exchange errors")
}

func TestPaper_AdoptRestoresOpenOrder(t *testing.T) {
	market := newTestSim()
	paper := NewPaper(market, "BTC", "USDT", 0.001, map[string]float64{"USDT": 100}, zap.NewNop())
	ctx := context.Background()

	paper.Adopt(models.ActiveOrder{OrderID: "dry_run_old", Side: models.Buy, Price: 95, Qty: 0.2, GridIndex: 1, Status: models.StatusOpen})
	paper.Adopt(models.ActiveOrder{OrderID: "dry_run_unsent", Side: models.Buy, Price: 95, Qty: 0.2, GridIndex: 1, Status: models.StatusNew})

	status, err := paper.GetOrderStatus(ctx, "BTCUSDT", "dry_run_old")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, status)

	_, err = paper.GetOrderStatus(ctx, "BTCUSDT", "dry_run_unsent")
	assert.ErrorIs(t, err, models.ErrOrderNotFound, "an unconfirmed order is not adopted")

	market.SetPrice(94, time.Unix(60, 0))
	status, err = paper.GetOrderStatus(ctx, "BTCUSDT", "dry_run_old")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, status)

	// Adopting a known id does not reset it.
	paper.Adopt(models.ActiveOrder{OrderID: "dry_run_old", Side: models.Buy, Price: 95, Qty: 0.2, GridIndex: 1, Status: models.StatusOpen})
	status, err = paper.GetOrderStatus(ctx, "BTCUSDT", "dry_run_old")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, status)
}
