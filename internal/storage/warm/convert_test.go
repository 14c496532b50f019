package warm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

func TestOrderRowRoundTrip(t *testing.T) {
	price := fixedpoint.FromU64(25000)
	avg := fixedpoint.FromU64(25100)
	linked := "linked-1"

	o := &domain.Order{
		ID:           "ord-1",
		UserID:       "user-1",
		Pair:         "BTC/USDT",
		Type:         domain.OrderTypeLimit,
		Side:         domain.SideBuy,
		Quantity:     fixedpoint.FromU64(2),
		Price:        &price,
		TimeInForce:  domain.TIFGTC,
		Status:       domain.StatusPartiallyFilled,
		Filled:       fixedpoint.FromU64(1),
		Remaining:    fixedpoint.FromU64(1),
		AveragePrice: &avg,
		Fees:         fixedpoint.FromU64(5),
		FeeAsset:     "USDT",
		LinkedOrderID: &linked,
		Timestamp:    time.Now().Truncate(time.Second),
		UpdatedAt:    time.Now().Truncate(time.Second),
	}

	row := orderToRow(o)
	require.Equal(t, o.ID, row.OrderID)
	require.Equal(t, price.Raw(), row.Price)

	back, err := rowToOrder(row)
	require.NoError(t, err)
	require.Equal(t, o.ID, back.ID)
	require.True(t, o.Quantity.Raw() == back.Quantity.Raw())
	require.NotNil(t, back.Price)
	require.Equal(t, price.Raw(), back.Price.Raw())
	require.NotNil(t, back.LinkedOrderID)
	require.Equal(t, linked, *back.LinkedOrderID)
}

func TestTradeRowConversion(t *testing.T) {
	tr := &domain.Trade{
		ID:            "trade-1",
		Pair:          "BTC/USDT",
		BuyOrderID:    "buy-1",
		SellOrderID:   "sell-1",
		Price:         fixedpoint.FromU64(25000),
		Quantity:      fixedpoint.FromU64(1),
		QuoteQuantity: fixedpoint.FromU64(25000),
		Fee:           fixedpoint.FromU64(5),
		FeeAsset:      "USDT",
		Sequence:      42,
		Timestamp:     time.Now().Truncate(time.Second),
	}

	row := tradeToRow(tr)
	require.Equal(t, tr.ID, row.TradeID)
	require.Equal(t, uint64(42), row.Sequence)
	require.Equal(t, tr.Price.Raw(), row.Price)
}

func TestPositionRowConversion(t *testing.T) {
	p := &domain.Position{
		ID:         "pos-1",
		UserID:     "user-1",
		Contract:   "BTC-PERP",
		Side:       domain.SideBuy,
		Size:       fixedpoint.FromU64(3),
		EntryPrice: fixedpoint.FromU64(25000),
		MarkPrice:  fixedpoint.FromU64(25100),
		Leverage:   10,
		MarginMode: domain.MarginModeCross,
		Margin:     fixedpoint.FromU64(100),
		Status:     domain.PositionStatusOpen,
	}

	row := positionToRow(p)
	require.Equal(t, p.UserID, row.UserID)
	require.Equal(t, p.Contract, row.Contract)
	require.Equal(t, p.EntryPrice.Raw(), row.EntryPrice)
	require.Equal(t, string(domain.MarginModeCross), row.MarginMode)
}
