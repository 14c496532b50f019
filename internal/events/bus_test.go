package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/domain"
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

func newTestBus(t *testing.T) (*Bus, *gochannel.GoChannel) {
	t.Helper()
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NewStdLogger(false, false))
	b := &Bus{
		publisher:   pubsub,
		topicPrefix: "dexcore.",
		logger:      zap.NewNop(),
		queue:       make(chan func(), 16),
		done:        make(chan struct{}),
		live:        make(chan *LiveEvent, 16),
	}
	go b.run()
	t.Cleanup(func() { b.Close() })
	return b, pubsub
}

func TestPublishOrderDeliversToSubscribedTopic(t *testing.T) {
	bus, pubsub := newTestBus(t)

	messages, err := pubsub.Subscribe(context.Background(), "dexcore.orders.BTC-USDT")
	require.NoError(t, err)

	order := &domain.Order{ID: "order-1", Pair: "BTC-USDT", Side: domain.SideBuy}
	bus.PublishOrder(context.Background(), "orderPlaced", order)

	select {
	case msg := <-messages:
		var evt orderEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &evt))
		require.Equal(t, "orderPlaced", evt.Kind)
		require.Equal(t, "order-1", evt.Order.ID)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for order event")
	}
}

func TestPublishTradeDeliversToSubscribedTopic(t *testing.T) {
	bus, pubsub := newTestBus(t)

	messages, err := pubsub.Subscribe(context.Background(), "dexcore.trades.ETH-USDT")
	require.NoError(t, err)

	trade, err := domain.NewTrade("ETH-USDT", fixedpoint.FromU64(100), fixedpoint.FromU64(1), "buy-1", "sell-1", true, 1, time.Now())
	require.NoError(t, err)
	bus.PublishTrade(context.Background(), trade)

	select {
	case msg := <-messages:
		var got domain.Trade
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		require.Equal(t, trade.ID, got.ID)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for trade event")
	}
}

func TestPublishBookDeliversToSubscribedTopic(t *testing.T) {
	bus, pubsub := newTestBus(t)

	messages, err := pubsub.Subscribe(context.Background(), "dexcore.book.BTC-USDT")
	require.NoError(t, err)

	snapshot := domain.BookSnapshot{Pair: "BTC-USDT", Sequence: 7, Timestamp: time.Now()}
	bus.PublishBook(context.Background(), snapshot)

	select {
	case msg := <-messages:
		var got domain.BookSnapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		require.Equal(t, uint64(7), got.Sequence)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for book event")
	}
}

func TestPublishDropsWhenQueueFullRatherThanBlocking(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NewStdLogger(false, false))
	b := &Bus{
		publisher:   pubsub,
		topicPrefix: "dexcore.",
		logger:      zap.NewNop(),
		queue:       make(chan func(), 1),
		done:        make(chan struct{}),
	}
	// No worker goroutine started: the queue fills after one publish and
	// every subsequent call must return immediately rather than block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			order := &domain.Order{ID: "order-x", Pair: "BTC-USDT", Side: domain.SideBuy}
			b.PublishOrder(context.Background(), "orderPlaced", order)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PublishOrder blocked instead of dropping once the queue filled")
	}
}
