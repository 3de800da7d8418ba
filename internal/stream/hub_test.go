package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/solrun/internal/domain"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	first := dialHub(t, srv)
	second := dialHub(t, srv)

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 },
		time.Second, 10*time.Millisecond)

	trade := domain.Trade{
		ID:     "t1",
		Pair:   "USDC/JUP",
		Type:   domain.ActionBuy,
		Price:  0.80,
		Amount: 12.5,
		Time:   time.Now().UTC(),
	}
	hub.Broadcast(TradeEvent(trade))

	for _, conn := range []*websocket.Conn{first, second} {
		event := readEvent(t, conn)
		assert.Equal(t, EventTrade, event.Type)
		assert.False(t, event.At.IsZero())

		payload, ok := event.Payload.(map[string]any)
		require.True(t, ok, "payload should decode as an object")
		assert.Equal(t, "USDC/JUP", payload["pair"])
		assert.Equal(t, "BUY", payload["type"])
	}
}

func TestDisconnectedClientLeavesTheHub(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)

	// A broadcast into an empty hub must not block or panic.
	hub.Broadcast(SignalEvent(domain.TradeSignal{Symbol: "SOL", Action: domain.ActionBuy}))
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server should have closed the connection")
}

func TestPositionEventShapes(t *testing.T) {
	pos := domain.NewPosition("JUP", domain.ActionBuy, 12.5, 0.80, 0.05, 0.10, time.Now())

	opened := PositionOpenedEvent(pos)
	assert.Equal(t, EventPositionOpened, opened.Type)

	closed := PositionClosedEvent(pos, "stop-loss", 0.76, -0.5)
	assert.Equal(t, EventPositionClosed, closed.Type)

	payload, ok := closed.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stop-loss", payload["trigger"])
	assert.Equal(t, 0.76, payload["exit_price"])
	assert.Equal(t, -0.5, payload["pnl"])
}
