package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-grid-bot-go/internal/models"
)

var testRules = models.SymbolRules{TickSize: 0.01, StepSize: 0.001, MinNotional: 5, MinQty: 0.001}

func newTestSim() *SimulatedExchange {
	sim := NewSimulatedExchange("BTCUSDT", "BTC", "USDT", testRules, 0.001, map[string]float64{"USDT": 100})
	sim.SetPrice(100, time.Unix(0, 0))
	return sim
}

func TestSimulated_LimitOrdersFillWhenPriceCrosses(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	id, err := sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 95, 0.2, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", id)

	sim.SetPrice(96, time.Unix(60, 0))
	status, err := sim.GetOrderStatus(ctx, "BTCUSDT", "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, status)

	sim.SetPrice(95, time.Unix(120, 0))
	status, err = sim.GetOrderStatus(ctx, "BTCUSDT", "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, status)

	balances, err := sim.GetBalances(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, balances["BTC"], 1e-12)
	assert.InDelta(t, 100-19-0.019, balances["USDT"], 1e-9)

	_, err = sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Sell, 100, 0.2, "s1")
	require.NoError(t, err)
	sim.SetPrice(101, time.Unix(180, 0))
	status, err = sim.GetOrderStatus(ctx, "BTCUSDT", "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFilled, status)

	orders := sim.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "b1", orders[0].ID)
	assert.Equal(t, time.Unix(120, 0), orders[0].FilledAt)
	assert.InDelta(t, 100-19-0.019+20-0.02, sim.Equity(), 1e-9)
	assert.InDelta(t, 0.039, sim.TotalFees, 1e-12)
}

func TestSimulated_RejectsBadOrders(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	_, err := sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 100, 0.01, "tiny")
	assert.Equal(t, models.KindExchange, models.KindOf(err), "below min notional")

	_, err = sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 100, 2, "big")
	assert.Equal(t, models.KindExchange, models.KindOf(err), "insufficient quote")

	_, err = sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Sell, 100, 0.1, "nobase")
	assert.Equal(t, models.KindExchange, models.KindOf(err), "insufficient base")

	_, err = sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 90, 0.1, "dup")
	require.NoError(t, err)
	_, err = sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 90, 0.1, "dup")
	assert.Equal(t, models.KindExchange, models.KindOf(err), "duplicate client id")
}

func TestSimulated_UnknownOrderAndCancel(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	_, err := sim.GetOrderStatus(ctx, "BTCUSDT", "nope")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
	assert.Equal(t, models.KindExchange, models.KindOf(err))

	_, err = sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 90, 0.1, "c1")
	require.NoError(t, err)
	ok, err := sim.CancelOrder(ctx, "BTCUSDT", "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sim.CancelOrder(ctx, "BTCUSDT", "c1")
	require.NoError(t, err)
	assert.False(t, ok, "already canceled")

	sim.SetPrice(80, time.Unix(60, 0))
	status, err := sim.GetOrderStatus(ctx, "BTCUSDT", "c1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, status, "canceled orders never fill")
}

func TestSimulated_FailNextIsOneShot(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()
	boom := errors.New("connection reset")

	sim.FailNext("GetPrice", boom)
	_, err := sim.GetPrice(ctx, "BTCUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, models.IsRetryable(err))

	price, err := sim.GetPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 100.0, price)
}

func TestSimulated_ManualStatusControl(t *testing.T) {
	sim := newTestSim()
	ctx := context.Background()

	_, err := sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 90, 0.1, "m1")
	require.NoError(t, err)
	require.NoError(t, sim.FillOrder("m1"))
	assert.Error(t, sim.FillOrder("m1"), "cannot fill twice")

	_, err = sim.PlaceLimitOrder(ctx, "BTCUSDT", models.Buy, 90, 0.1, "m2")
	require.NoError(t, err)
	sim.SetOrderStatus("m2", models.StatusRejected)
	status, err := sim.GetOrderStatus(ctx, "BTCUSDT", "m2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, status)
}
