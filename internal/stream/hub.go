// Package stream pushes trading events to dashboard clients over
// WebSocket. The hub fans every published event out to all connected
// clients; slow consumers are dropped rather than allowed to stall the
// loop.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/domain"
)

// Event types published on the stream.
const (
	EventSignal         = "signal"
	EventTrade          = "trade"
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 64
)

// Event is one dashboard notification.
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// SignalEvent announces a generated trade signal.
func SignalEvent(sig domain.TradeSignal) Event {
	return Event{Type: EventSignal, Payload: sig, At: time.Now().UTC()}
}

// TradeEvent announces a confirmed trade.
func TradeEvent(trade domain.Trade) Event {
	return Event{Type: EventTrade, Payload: trade, At: time.Now().UTC()}
}

// PositionOpenedEvent announces a freshly opened position.
func PositionOpenedEvent(pos domain.Position) Event {
	return Event{Type: EventPositionOpened, Payload: pos, At: time.Now().UTC()}
}

// PositionClosedEvent announces a position exit.
func PositionClosedEvent(pos domain.Position, trigger string, exitPrice, pnl float64) Event {
	return Event{
		Type: EventPositionClosed,
		Payload: map[string]any{
			"position":   pos,
			"trigger":    trigger,
			"exit_price": exitPrice,
			"pnl":        pnl,
		},
		At: time.Now().UTC(),
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the client set. It implements http.Handler for the /ws
// endpoint.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub returns an empty hub. Origin checks are disabled: the server
// only binds loopback and the dashboard may load from file://.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and keeps the connection until the
// client leaves or falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	log.Info().Str("remote", r.RemoteAddr).Int("clients", count).Msg("Dashboard client connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Broadcast sends the event to every connected client. Clients whose
// send buffer is full are disconnected.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("type", event.Type).Msg("Event marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			log.Warn().Msg("Dropping slow dashboard client")
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// writeLoop drains the send buffer and keeps the connection alive with
// pings. A closed send channel means the hub dropped the client.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames; the stream is one-way. It exists to
// notice disconnects and answer pongs.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket read ended")
			}
			return
		}
	}
}
