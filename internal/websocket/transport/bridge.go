package websocket

import (
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/events"
)

// Bridge relays internal/events.Bus's live feed onto a Hub, so every
// connected websocket client sees the same order/trade/book events the
// egress bus publishes to NATS. It performs no filtering — topic-scoped
// subscriptions are left to a future client-side protocol, spec.md names
// none.
type Bridge struct {
	hub    *Hub
	bus    *events.Bus
	logger *zap.Logger
	stop   chan struct{}
}

// NewBridge constructs a Bridge. Run starts relaying.
func NewBridge(hub *Hub, bus *events.Bus, logger *zap.Logger) *Bridge {
	return &Bridge{hub: hub, bus: bus, logger: logger, stop: make(chan struct{})}
}

// Run drains bus.Subscribe() until Stop is called, broadcasting each
// event to every registered client.
func (br *Bridge) Run() {
	feed := br.bus.Subscribe()
	for {
		select {
		case <-br.stop:
			return
		case evt, ok := <-feed:
			if !ok {
				return
			}
			br.hub.Broadcast(&Message{Type: evt.Topic, Data: evt.Payload})
		}
	}
}

// Stop ends the relay loop.
func (br *Bridge) Stop() {
	close(br.stop)
}
