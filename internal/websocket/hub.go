package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"taxipulse/internal/config"
	"taxipulse/internal/infrastructure"
)

const broadcastBuffer = 256

// Hub maintains the set of active clients and fans events out to them.
// The client map is owned by the run goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	quit       chan struct{}
	done       chan struct{}

	cfg    config.WebSocketConfig
	logger *slog.Logger

	started   atomic.Bool
	stopOnce  sync.Once
	count     atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64
}

// HubStats is a snapshot of hub counters
type HubStats struct {
	Clients   int   `json:"clients"`
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
}

// NewHub creates a hub. Call Start before registering clients.
func NewHub(cfg config.WebSocketConfig, logger *slog.Logger) *Hub {
	defaults := config.Default().WebSocket
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = defaults.PingPeriod
	}
	if cfg.PongWait <= cfg.PingPeriod {
		cfg.PongWait = cfg.PingPeriod * 2
	}

	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		cfg:        cfg,
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
	}
}

// Start runs the hub loop in its own goroutine
func (h *Hub) Start() {
	if h.started.CompareAndSwap(false, true) {
		go h.run()
	}
}

// Stop closes every client and waits for the loop to exit
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
		if h.started.Load() {
			<-h.done
		}
	})
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("WebSocket client connected",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.count.Store(int64(len(h.clients)))
				h.logger.Info("WebSocket client disconnected",
					slog.String("client_id", client.id),
					slog.Int("total_clients", len(h.clients)))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer
					delete(h.clients, client)
					close(client.send)
					h.logger.Warn("Dropping slow WebSocket client", slog.String("client_id", client.id))
				}
			}
			h.count.Store(int64(len(h.clients)))

		case <-h.quit:
			for client := range h.clients {
				close(client.send)
			}
			clear(h.clients)
			h.count.Store(0)
			return
		}
	}
}

// Publish encodes an event envelope and queues it for every client.
// It never blocks; events are dropped when the hub is stopped or its
// queue is full.
func (h *Hub) Publish(ctx context.Context, eventType string, data interface{}) {
	msg := Message{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		TraceID:   infrastructure.GetTraceID(ctx),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to encode WebSocket event",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}

	select {
	case <-h.quit:
		h.dropped.Add(1)
		return
	default:
	}

	select {
	case h.broadcast <- payload:
		h.published.Add(1)
	default:
		h.dropped.Add(1)
		h.logger.WarnContext(ctx, "WebSocket broadcast queue full, dropping event",
			slog.String("type", eventType))
	}
}

// Register adds a client; it returns false once the hub is stopped
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Stats returns the hub counters
func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients:   h.ClientCount(),
		Published: h.published.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// ServeConn registers conn as a new client and starts its pumps. A
// connection greeting is the first message the client receives.
func (h *Hub) ServeConn(ctx context.Context, conn Connection) *Client {
	client := NewClient(h, conn, infrastructure.GetTraceID(ctx), h.logger)

	greeting, err := json.Marshal(Message{
		Type:      EventConnection,
		Data:      map[string]string{"client_id": client.id, "status": "connected"},
		Timestamp: time.Now().UTC(),
		TraceID:   client.traceID,
	})
	if err == nil {
		client.send <- greeting
	}

	if !h.Register(client) {
		conn.Close()
		return nil
	}

	go client.WritePump()
	go client.ReadPump()
	return client
}
