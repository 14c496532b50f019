// Package events implements the live-update egress bus (spec.md §6):
// order, trade, and book-snapshot events published off the matching hot
// path, backed by NATS in production and an in-memory pub/sub otherwise.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	natsdriver "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	natsio "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/config"
	"github.com/latticefi/dexcore/internal/domain"
)

// Bus implements matching.EventPublisher by fanning order/trade/book
// events out onto a watermill publisher. Grounded on the teacher's
// WatermillEventBus (internal/architecture/cqrs/eventbus/watermill_adapter.go),
// generalized from event-sourcing aggregates to this domain's egress
// shapes and rebuilt around a queue+worker so PublishOrder/PublishTrade/
// PublishBook never block the calling matching goroutine on broker I/O.
type Bus struct {
	publisher   message.Publisher
	topicPrefix string
	logger      *zap.Logger

	queue chan func()
	done  chan struct{}

	// live fans every published event out to at most one in-process
	// consumer (internal/websocket's hub bridge), independent of the
	// watermill publisher above. It exists because the watermill
	// subscriber side (NATS or gochannel) would otherwise need its own
	// connection just to feed local websocket clients the same data this
	// process already holds in hand.
	live chan *LiveEvent
}

// LiveEvent is one event as handed to an in-process subscriber (the
// websocket hub bridge), already JSON-encoded the same way it was
// published to the egress bus.
type LiveEvent struct {
	Topic   string
	Payload json.RawMessage
}

// New builds a Bus. An empty cfg.NatsURL falls back to an in-process
// gochannel pub/sub, mirroring internal/storage's empty-host-disables-
// the-tier convention — useful for tests and for running without a
// broker dependency.
func New(cfg config.EventsConfig, logger *zap.Logger) (*Bus, error) {
	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "dexcore."
	}

	b := &Bus{
		publisher:   publisher,
		topicPrefix: prefix,
		logger:      logger,
		queue:       make(chan func(), 4096),
		done:        make(chan struct{}),
		live:        make(chan *LiveEvent, 1024),
	}
	go b.run()
	return b, nil
}

func newPublisher(cfg config.EventsConfig, logger *zap.Logger) (message.Publisher, error) {
	watermillLogger := watermill.NewStdLogger(false, false)

	if cfg.NatsURL == "" {
		return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1024}, watermillLogger), nil
	}

	publisher, err := natsdriver.NewPublisher(natsdriver.PublisherConfig{
		URL:         cfg.NatsURL,
		NatsOptions: []natsio.Option{natsio.Name("dexcore-events")},
		Marshaler:   natsdriver.GobMarshaler{},
	}, watermillLogger)
	if err != nil {
		return nil, fmt.Errorf("events: connecting to nats at %s: %w", cfg.NatsURL, err)
	}
	return publisher, nil
}

func (b *Bus) run() {
	defer close(b.done)
	for fn := range b.queue {
		fn()
	}
}

func (b *Bus) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("events: failed to marshal payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	msg := message.NewMessage(uuid.New().String(), data)

	task := func() {
		if err := b.publisher.Publish(topic, msg); err != nil {
			b.logger.Warn("events: publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}

	select {
	case b.queue <- task:
	default:
		b.logger.Warn("events: publish queue full, dropping event", zap.String("topic", topic))
	}

	select {
	case b.live <- &LiveEvent{Topic: topic, Payload: data}:
	default:
		// No websocket bridge is draining Subscribe, or it fell behind;
		// live delivery is best-effort, unlike the durable queue above.
	}
}

// Subscribe returns the channel every published event is mirrored onto,
// for a single in-process consumer (internal/websocket's hub bridge).
// It is not a durable subscription: events published before Subscribe is
// called, or while its channel is full, are not redelivered.
func (b *Bus) Subscribe() <-chan *LiveEvent {
	return b.live
}

// orderEvent is the wire shape published for every order lifecycle
// transition (spec.md §6 egress: orderPlaced, orderFilled, orderCancelled,
// orderRejected, orderUpdated).
type orderEvent struct {
	Kind  string        `json:"kind"`
	Order *domain.Order `json:"order"`
}

// PublishOrder implements matching.EventPublisher.
func (b *Bus) PublishOrder(ctx context.Context, kind string, order *domain.Order) {
	b.publish(b.topicPrefix+"orders."+order.Pair, orderEvent{Kind: kind, Order: order})
}

// PublishTrade implements matching.EventPublisher.
func (b *Bus) PublishTrade(ctx context.Context, trade *domain.Trade) {
	b.publish(b.topicPrefix+"trades."+trade.Pair, trade)
}

// PublishBook implements matching.EventPublisher.
func (b *Bus) PublishBook(ctx context.Context, snapshot domain.BookSnapshot) {
	b.publish(b.topicPrefix+"book."+snapshot.Pair, snapshot)
}

// Close stops accepting new events, drains whatever is already queued,
// and closes the underlying publisher connection.
func (b *Bus) Close() error {
	close(b.queue)
	<-b.done
	close(b.live)
	return b.publisher.Close()
}
