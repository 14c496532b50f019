package hot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

func TestStorePutGetOrder(t *testing.T) {
	s := New(time.Minute, nil, zap.NewNop())
	o := &domain.Order{ID: "ord-1", Pair: "BTC/USDT", Quantity: fixedpoint.FromU64(1), Status: domain.StatusOpen}

	_, ok := s.GetOrder("ord-1")
	require.False(t, ok)

	s.PutOrder(context.Background(), o)

	got, ok := s.GetOrder("ord-1")
	require.True(t, ok)
	require.Equal(t, "ord-1", got.ID)
}

func TestStoreDeleteOrder(t *testing.T) {
	s := New(time.Minute, nil, zap.NewNop())
	o := &domain.Order{ID: "ord-2", Status: domain.StatusFilled}
	s.PutOrder(context.Background(), o)

	s.DeleteOrder("ord-2")

	_, ok := s.GetOrder("ord-2")
	require.False(t, ok)
}

func TestAllTerminalOrdersFiltersByStatus(t *testing.T) {
	s := New(time.Minute, nil, zap.NewNop())
	s.PutOrder(context.Background(), &domain.Order{ID: "open-1", Status: domain.StatusOpen})
	s.PutOrder(context.Background(), &domain.Order{ID: "filled-1", Status: domain.StatusFilled})
	s.PutOrder(context.Background(), &domain.Order{ID: "cancelled-1", Status: domain.StatusCancelled})

	terminal := s.AllTerminalOrders()
	ids := make(map[string]bool)
	for _, o := range terminal {
		ids[o.ID] = true
	}

	require.Len(t, terminal, 2)
	require.True(t, ids["filled-1"])
	require.True(t, ids["cancelled-1"])
	require.False(t, ids["open-1"])
}

func TestStoreTradeAndPositionRoundTrip(t *testing.T) {
	s := New(time.Minute, nil, zap.NewNop())
	tr := &domain.Trade{ID: "trade-1", Pair: "BTC/USDT", Price: fixedpoint.FromU64(1), Quantity: fixedpoint.FromU64(1)}
	s.PutTrade(context.Background(), tr)
	got, ok := s.GetTrade("trade-1")
	require.True(t, ok)
	require.Equal(t, "trade-1", got.ID)

	pos := &domain.Position{Contract: "BTC-PERP", UserID: "user-1", Size: fixedpoint.FromU64(1)}
	s.PutPosition(context.Background(), pos)
	gotPos, ok := s.GetPosition("BTC-PERP", "user-1")
	require.True(t, ok)
	require.Equal(t, "BTC-PERP", gotPos.Contract)
}
