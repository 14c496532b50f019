package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticefi/dexcore/internal/domain"
)

func TestBasicLimitMatch(t *testing.T) {
	e, pub, _ := newTestEngine("BTC-USDT")
	ctx := context.Background()

	sell := &domain.Order{UserID: "u1", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideSell, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFGTC}
	res, err := e.PlaceOrder(ctx, sell)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, res.Order.Status)

	buy := &domain.Order{UserID: "u2", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideBuy, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFGTC}
	res, err = e.PlaceOrder(ctx, buy)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Order.Status)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "100", res.Trades[0].Price.FromBase())
	assert.Equal(t, 1, pub.tradeCount())
}

func TestPriceTimePriority(t *testing.T) {
	e, _, clock := newTestEngine("BTC-USDT")
	ctx := context.Background()

	first := &domain.Order{UserID: "maker1", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideSell, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFGTC}
	_, err := e.PlaceOrder(ctx, first)
	require.NoError(t, err)

	clock.Advance(time.Second)
	second := &domain.Order{UserID: "maker2", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideSell, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFGTC}
	_, err = e.PlaceOrder(ctx, second)
	require.NoError(t, err)

	taker := &domain.Order{UserID: "taker", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideBuy, Quantity: qty("0.5"), Price: price("100"), TimeInForce: domain.TIFGTC}
	res, err := e.PlaceOrder(ctx, taker)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, first.ID, res.Trades[0].SellOrderID, "the earlier-arrived resting order must fill first at the same price")
}

func TestFOKRejectsWithoutPartialFill(t *testing.T) {
	e, _, _ := newTestEngine("BTC-USDT")
	ctx := context.Background()

	resting := &domain.Order{UserID: "maker", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideSell, Quantity: qty("0.5"), Price: price("100"), TimeInForce: domain.TIFGTC}
	_, err := e.PlaceOrder(ctx, resting)
	require.NoError(t, err)

	fok := &domain.Order{UserID: "taker", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideBuy, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFFOK}
	res, err := fokResult(e, ctx, fok)
	require.Error(t, err)
	assert.True(t, res.Rejected)
	assert.Equal(t, domain.StatusRejected, res.Order.Status)

	// the resting maker must be untouched — FOK failure is all-or-nothing.
	snap := e.Snapshot(10)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, "0.5", snap.Asks[0].TotalRemaining.FromBase())
}

func fokResult(e *PairEngine, ctx context.Context, o *domain.Order) (*Result, error) {
	return e.PlaceOrder(ctx, o)
}

func TestOCOCancelOnFill(t *testing.T) {
	e, _, _ := newTestEngine("BTC-USDT")
	ctx := context.Background()

	counter := &domain.Order{UserID: "counterparty", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideSell, Quantity: qty("1.0"), Price: price("90"), TimeInForce: domain.TIFGTC}
	_, err := e.PlaceOrder(ctx, counter)
	require.NoError(t, err)

	oco := &domain.Order{UserID: "u1", Pair: "BTC-USDT", Type: domain.OrderTypeOCO, Side: domain.SideBuy, Quantity: qty("1.0"), Price: price("90"), StopPrice: price("80")}
	res, err := e.PlaceOrder(ctx, oco)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1, "limit leg should immediately cross the resting counterparty")

	for _, o := range e.orders {
		if o.ParentOrderID != nil && *o.ParentOrderID == oco.ID && o.Type == domain.OrderTypeStopLimit {
			assert.Equal(t, domain.StatusCancelled, o.Status, "stop leg must be cancelled once the limit leg fills")
		}
	}
}

func TestIcebergRevealsNextSlice(t *testing.T) {
	e, _, _ := newTestEngine("BTC-USDT")
	ctx := context.Background()

	iceberg := &domain.Order{
		UserID: "u1", Pair: "BTC-USDT", Type: domain.OrderTypeIceberg, Side: domain.SideSell,
		Quantity: qty("3.0"), Price: price("100"), TimeInForce: domain.TIFGTC,
		VisibleAmount: price("1.0"), TotalAmount: price("3.0"),
	}
	_, err := e.PlaceOrder(ctx, iceberg)
	require.NoError(t, err)

	snap := e.Snapshot(10)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, "1", snap.Asks[0].TotalRemaining.FromBase())

	taker := &domain.Order{UserID: "u2", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideBuy, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFGTC}
	_, err = e.PlaceOrder(ctx, taker)
	require.NoError(t, err)

	snap = e.Snapshot(10)
	require.Len(t, snap.Asks, 1, "iceberg must still rest with a freshly-revealed slice")
	assert.Equal(t, "1", snap.Asks[0].TotalRemaining.FromBase())

	icebergLive := e.orders[iceberg.ID]
	assert.Equal(t, "2", icebergLive.Remaining.FromBase())
}

func TestPostOnlyRejectsWhenCrossing(t *testing.T) {
	e, _, _ := newTestEngine("BTC-USDT")
	ctx := context.Background()

	resting := &domain.Order{UserID: "maker", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideSell, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFGTC}
	_, err := e.PlaceOrder(ctx, resting)
	require.NoError(t, err)

	crossing := &domain.Order{UserID: "taker", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideBuy, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFGTC, PostOnly: true}
	res, err := e.PlaceOrder(ctx, crossing)
	require.Error(t, err)
	assert.True(t, res.Rejected)
}

func TestCancelOnlyByOwner(t *testing.T) {
	e, _, _ := newTestEngine("BTC-USDT")
	ctx := context.Background()

	o := &domain.Order{UserID: "owner", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideSell, Quantity: qty("1.0"), Price: price("100"), TimeInForce: domain.TIFGTC}
	_, err := e.PlaceOrder(ctx, o)
	require.NoError(t, err)

	_, err = e.CancelOrder(ctx, o.ID, "not-the-owner")
	require.Error(t, err)

	cancelled, err := e.CancelOrder(ctx, o.ID, "owner")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	snap := e.Snapshot(10)
	assert.Len(t, snap.Asks, 0)
}

func TestTWAPReleasesAcrossSlices(t *testing.T) {
	e, _, clock := newTestEngine("BTC-USDT")
	ctx := context.Background()

	counter := &domain.Order{UserID: "counterparty", Pair: "BTC-USDT", Type: domain.OrderTypeLimit, Side: domain.SideSell, Quantity: qty("10.0"), Price: price("100"), TimeInForce: domain.TIFGTC}
	_, err := e.PlaceOrder(ctx, counter)
	require.NoError(t, err)

	twap := &domain.Order{
		UserID: "u1", Pair: "BTC-USDT", Type: domain.OrderTypeTWAP, Side: domain.SideBuy,
		Quantity: qty("3.0"), Duration: 3 * time.Minute, Slices: 3,
	}
	res, err := e.PlaceOrder(ctx, twap)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPartiallyFilled, res.Order.Status, "first slice fills immediately against the resting counterparty")

	clock.Advance(time.Minute)
	e.ReleaseDueSlices(ctx)
	clock.Advance(time.Minute)
	e.ReleaseDueSlices(ctx)

	parent := e.orders[twap.ID]
	assert.Equal(t, domain.StatusFilled, parent.Status)
	assert.Equal(t, "3", parent.Filled.FromBase())
}
