package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticefi/dexcore/internal/coreerrors"
	"github.com/latticefi/dexcore/internal/domain"
)

func privacyOrder(userID string, side domain.Side, encryptedQty, priceStr string) *domain.Order {
	return &domain.Order{
		UserID:            userID,
		Pair:              "BTC-USDT",
		Type:              domain.OrderTypeLimit,
		Side:              side,
		Private:           true,
		EncryptedQuantity: encryptedQty,
		Price:             price(priceStr),
		TimeInForce:       domain.TIFGTC,
	}
}

func TestPrivacyOrderRestsWithoutACounterparty(t *testing.T) {
	e, pub, _ := newTestPrivacyEngine("BTC-USDT", &fakePrivacyGate{available: true})
	ctx := context.Background()

	sell := privacyOrder("maker", domain.SideSell, "1.0", "100")
	res, err := e.PlaceOrder(ctx, sell)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, res.Order.Status)
	assert.Empty(t, res.Trades)
	assert.Contains(t, pub.orders, "orderPlaced:"+sell.ID)
}

func TestPrivacyOrderExactMatchFillsBothLegs(t *testing.T) {
	e, pub, _ := newTestPrivacyEngine("BTC-USDT", &fakePrivacyGate{available: true})
	ctx := context.Background()

	sell := privacyOrder("maker", domain.SideSell, "1.0", "100")
	_, err := e.PlaceOrder(ctx, sell)
	require.NoError(t, err)

	buy := privacyOrder("taker", domain.SideBuy, "1.0", "100")
	res, err := e.PlaceOrder(ctx, buy)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Order.Status)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "1", res.Trades[0].Quantity.FromBase())
	assert.Equal(t, 1, pub.tradeCount())
}

func TestPrivacyOrderPartialFillLeavesMakerRemainderResting(t *testing.T) {
	e, _, _ := newTestPrivacyEngine("BTC-USDT", &fakePrivacyGate{available: true})
	ctx := context.Background()

	sell := privacyOrder("maker", domain.SideSell, "2.0", "100")
	_, err := e.PlaceOrder(ctx, sell)
	require.NoError(t, err)

	buy := privacyOrder("taker", domain.SideBuy, "0.5", "100")
	res, err := e.PlaceOrder(ctx, buy)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFilled, res.Order.Status)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "0.5", res.Trades[0].Quantity.FromBase())

	assert.Equal(t, domain.StatusPartiallyFilled, sell.Status)
	assert.Equal(t, "1.5", sell.EncryptedQuantity)
}

func TestPrivacyOrderRejectedWhenOracleUnavailable(t *testing.T) {
	e, pub, _ := newTestPrivacyEngine("BTC-USDT", &fakePrivacyGate{available: false})
	ctx := context.Background()

	buy := privacyOrder("taker", domain.SideBuy, "1.0", "100")
	res, err := e.PlaceOrder(ctx, buy)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.ErrPrivacyOracleUnavailable))
	assert.Equal(t, domain.StatusRejected, res.Order.Status)
	assert.Contains(t, pub.orders, "orderRejected:"+buy.ID)
}

func TestPrivacyOrderRejectedWithoutPrivacyGateConfigured(t *testing.T) {
	e, _, _ := newTestEngine("BTC-USDT")
	ctx := context.Background()

	buy := privacyOrder("taker", domain.SideBuy, "1.0", "100")
	res, err := e.PlaceOrder(ctx, buy)
	require.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.ErrPrivacyOracleUnavailable))
	assert.Equal(t, domain.StatusRejected, res.Order.Status)
}

func TestCancelPrivacyOrderRemovesItFromTheRestingQueue(t *testing.T) {
	e, _, _ := newTestPrivacyEngine("BTC-USDT", &fakePrivacyGate{available: true})
	ctx := context.Background()

	sell := privacyOrder("maker", domain.SideSell, "1.0", "100")
	_, err := e.PlaceOrder(ctx, sell)
	require.NoError(t, err)

	cancelled, err := e.CancelOrder(ctx, sell.ID, "maker")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	buy := privacyOrder("taker", domain.SideBuy, "1.0", "100")
	res, err := e.PlaceOrder(ctx, buy)
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "the cancelled maker must not still be resting")
}
