package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(id string) *Client {
	return &Client{ID: id, Send: make(chan []byte, 8), Logger: zap.NewNop()}
}

func TestHubBroadcastReachesRegisteredClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := newTestClient("client-1")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(&Message{Type: "dexcore.trades.BTC-USDT", Data: json.RawMessage(`{"id":"t1"}`)})

	select {
	case payload := <-client.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(payload, &msg))
		require.Equal(t, "dexcore.trades.BTC-USDT", msg.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHubUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	client := newTestClient("client-2")
	hub.Register(client)
	time.Sleep(10 * time.Millisecond)
	hub.Unregister(client)
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, stillPresent := hub.Clients[client.ID]
	hub.mu.RUnlock()
	require.False(t, stillPresent)
}

func TestHubSendToClientTargetsSingleClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	a := newTestClient("a")
	b := newTestClient("b")
	hub.Register(a)
	hub.Register(b)
	time.Sleep(10 * time.Millisecond)

	hub.SendToClient("a", &Message{Type: "ping"})

	select {
	case <-a.Send:
	case <-time.After(time.Second):
		t.Fatal("client a did not receive its targeted message")
	}

	select {
	case <-b.Send:
		t.Fatal("client b should not have received a's targeted message")
	case <-time.After(50 * time.Millisecond):
	}
}
