package websocket

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/events"
)

// Module wires the live-update websocket hub for fx-based assembly in
// cmd/coreengine.
var Module = fx.Options(
	fx.Provide(newHub, newBridge),
	fx.Invoke(registerHubLifecycle),
)

func newHub(logger *zap.Logger) *Hub {
	return NewHub(logger)
}

func newBridge(hub *Hub, bus *events.Bus, logger *zap.Logger) *Bridge {
	return NewBridge(hub, bus, logger)
}

func registerHubLifecycle(lc fx.Lifecycle, hub *Hub, bridge *Bridge) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go hub.Run()
			go bridge.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			bridge.Stop()
			return nil
		},
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UpgradeHandler upgrades an HTTP request to a websocket connection and
// registers the resulting Client with hub, for use as a gin handler in
// cmd/coreengine (kept framework-agnostic: it takes http.ResponseWriter/
// *http.Request directly since gorilla/websocket has no gin binding).
func UpgradeHandler(hub *Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket: upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(uuid.New().String(), conn, hub, logger)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
