package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cryptoverse/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 16
)

// Message types pushed to clients
const (
	TypeMarket  = "market"
	TypeHistory = "history"
	TypeSearch  = "search"
)

// Envelope is the WebSocket frame format
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type clientMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Hub pushes provider state to connected clients.
// Each client has its own market search filter. A client that falls
// sendBuffer frames behind is disconnected.
type Hub struct {
	market   MarketViewer
	history  HistoryController
	metrics  *infra.Metrics
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu     sync.RWMutex
	conns  map[string]*client
	closed bool
}

type client struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	search string

	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a hub. metrics may be nil.
func NewHub(market MarketViewer, history HistoryController, metrics *infra.Metrics) *Hub {
	return &Hub{
		market:  market,
		history: history,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: slog.Default().With("module", "hub"),
		conns:  make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		ws.Close()
		return
	}
	defer h.unregister(c)

	c.enqueue(h.marketFrame(""))
	c.enqueue(h.historyFrame())

	go h.writePump(c)
	h.readPump(c)
}

// BroadcastMarket sends every client the market table under its own filter.
func (h *Hub) BroadcastMarket() {
	for _, c := range h.clients() {
		if frame := h.marketFrame(c.filter()); frame != nil {
			c.enqueue(frame)
		}
	}
}

// BroadcastHistory sends every client the current chart.
func (h *Hub) BroadcastHistory() {
	frame := h.historyFrame()
	if frame == nil {
		return
	}
	for _, c := range h.clients() {
		c.enqueue(frame)
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c.id] = c
	if h.metrics != nil {
		h.metrics.IncrementConnections()
	}
	h.logger.Info("Client connected", slog.String("conn_id", c.id))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; ok {
		delete(h.conns, c.id)
		if h.metrics != nil {
			h.metrics.DecrementConnections()
		}
	}
	h.mu.Unlock()

	c.close()
	h.logger.Info("Client disconnected", slog.String("conn_id", c.id))
}

func (h *Hub) clients() []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		result = append(result, c)
	}
	return result
}

func (h *Hub) readPump(c *client) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Read failed", slog.String("conn_id", c.id), slog.Any("error", err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Ignoring malformed message", slog.String("conn_id", c.id))
			continue
		}
		if msg.Type == TypeSearch {
			c.mu.Lock()
			c.search = msg.Text
			c.mu.Unlock()
			c.enqueue(h.marketFrame(msg.Text))
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			c.ws.Close()
			return
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				c.ws.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				c.ws.Close()
				return
			}
		}
	}
}

func (h *Hub) marketFrame(search string) []byte {
	return h.encode(TypeMarket, h.market.View(search))
}

func (h *Hub) historyFrame() []byte {
	return h.encode(TypeHistory, h.history.View())
}

func (h *Hub) encode(typ string, data any) []byte {
	frame, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		h.logger.Error("Failed to encode frame", slog.String("type", typ), slog.Any("error", err))
		return nil
	}
	return frame
}

func (c *client) filter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.search
}

// enqueue disconnects a client whose send buffer is full
func (c *client) enqueue(frame []byte) {
	if frame == nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- frame:
	default:
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
