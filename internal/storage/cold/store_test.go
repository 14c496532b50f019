package cold

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

func TestArchiveOrderRoundTrip(t *testing.T) {
	archive, err := New(NewMemBlockstore(), zap.NewNop())
	require.NoError(t, err)

	price := fixedpoint.FromU64(25000)
	o := &domain.Order{
		ID:        "ord-1",
		Pair:      "BTC/USDT",
		Type:      domain.OrderTypeLimit,
		Side:      domain.SideBuy,
		Quantity:  fixedpoint.FromU64(1),
		Price:     &price,
		Status:    domain.StatusFilled,
		Timestamp: time.Now().Truncate(time.Second),
	}

	ref, err := archive.ArchiveOrder(context.Background(), o)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	back, err := archive.FetchOrder(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, o.ID, back.ID)
	require.Equal(t, o.Pair, back.Pair)
}

func TestArchiveTradeRoundTrip(t *testing.T) {
	archive, err := New(NewMemBlockstore(), zap.NewNop())
	require.NoError(t, err)

	tr := &domain.Trade{
		ID:        "trade-1",
		Pair:      "BTC/USDT",
		Price:     fixedpoint.FromU64(25000),
		Quantity:  fixedpoint.FromU64(1),
		Timestamp: time.Now().Truncate(time.Second),
	}

	ref, err := archive.ArchiveTrade(context.Background(), tr)
	require.NoError(t, err)

	back, err := archive.FetchTrade(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, tr.ID, back.ID)
}

func TestFetchUnknownRefFails(t *testing.T) {
	archive, err := New(NewMemBlockstore(), zap.NewNop())
	require.NoError(t, err)

	_, err = archive.FetchOrder(context.Background(), "not-a-cid")
	require.Error(t, err)
}

func TestIdenticalPayloadsShareAddress(t *testing.T) {
	archive, err := New(NewMemBlockstore(), zap.NewNop())
	require.NoError(t, err)

	tr := &domain.Trade{ID: "trade-2", Pair: "BTC/USDT", Price: fixedpoint.FromU64(1), Quantity: fixedpoint.FromU64(1)}

	ref1, err := archive.ArchiveTrade(context.Background(), tr)
	require.NoError(t, err)
	ref2, err := archive.ArchiveTrade(context.Background(), tr)
	require.NoError(t, err)

	require.Equal(t, ref1, ref2)
}
