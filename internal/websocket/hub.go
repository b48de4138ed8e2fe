// Package websocket implements the live-reload hub: browsers connect over a
// WebSocket and are told to reload once a build sequence finishes.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/mailwright/mailwright/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Hub tracks connected browsers and broadcasts to them.
//
// A single goroutine owns registration, unregistration and broadcasting;
// each client has its own write pump so one slow browser cannot stall the
// others.
type Hub struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn

	originValidator OriginValidator
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
}

// NewHub creates a hub and starts its goroutine.
func NewHub(originValidator OriginValidator, logger logging.Logger) *Hub {
	if originValidator == nil {
		panic("websocket: originValidator cannot be nil")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan []byte, 256),
		register:        make(chan *Client, 32),
		unregister:      make(chan *websocket.Conn, 32),
		originValidator: originValidator,
		logger:          logger.WithComponent("reload"),
		ctx:             ctx,
		cancel:          cancel,
	}

	go h.runHub()
	return h
}

// HandleWebSocket upgrades the request and registers the browser.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if !h.originValidator.IsAllowedOrigin(origin) {
		h.logger.Warn(r.Context(), nil, "WebSocket connection rejected", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	// Origin is checked above; the library check would reject the
	// localhost aliases.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 16),
		remote: r.RemoteAddr,
	}

	select {
	case h.register <- client:
	case <-h.ctx.Done():
		conn.Close(websocket.StatusServiceRestart, "server shutting down")
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) runHub() {
	for {
		select {
		case client := <-h.register:
			h.clientsMutex.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.clientsMutex.Unlock()
			h.logger.Debug(h.ctx, "Browser connected", "remote", client.remote, "clients", count)

		case conn := <-h.unregister:
			h.remove(conn)

		case message := <-h.broadcast:
			h.clientsMutex.RLock()
			var slow []*websocket.Conn
			for conn, client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, conn)
				}
			}
			h.clientsMutex.RUnlock()
			for _, conn := range slow {
				h.remove(conn)
			}

		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.clientsMutex.Lock()
	client, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(client.send)
	}
	count := len(h.clients)
	h.clientsMutex.Unlock()

	if ok {
		conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Debug(h.ctx, "Browser disconnected", "remote", client.remote, "clients", count)
	}
}

// readPump drains the connection so control frames are processed and a
// closed browser tab is noticed.
func (h *Hub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c.conn:
		case <-h.ctx.Done():
		}
	}()

	for {
		ctx, cancel := context.WithTimeout(h.ctx, pongWait)
		_, _, err := c.conn.Read(ctx)
		cancel()
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "WebSocket read ended", "remote", c.remote, "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(h.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}

// BroadcastMessage queues message for every connected browser. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) BroadcastMessage(message UpdateMessage) error {
	if h.isShutdown.Load() {
		return fmt.Errorf("hub is shut down")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	select {
	case h.broadcast <- data:
		return nil
	case <-h.ctx.Done():
		return fmt.Errorf("hub is shut down")
	default:
		return fmt.Errorf("broadcast queue full")
	}
}

// Reload tells every browser to reload the page.
func (h *Hub) Reload(ctx context.Context) {
	if err := h.BroadcastMessage(UpdateMessage{Type: MessageFullReload}); err != nil {
		h.logger.Warn(ctx, err, "Reload not sent")
		return
	}
	h.logger.Info(ctx, "Reload sent", "clients", h.ConnectedClients())
}

// NotifyError shows a build failure in connected browsers.
func (h *Hub) NotifyError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if berr := h.BroadcastMessage(UpdateMessage{Type: MessageBuildError, Content: err.Error()}); berr != nil {
		h.logger.Warn(ctx, berr, "Build error not sent")
	}
}

// ConnectedClients returns the number of connected browsers.
func (h *Hub) ConnectedClients() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every browser and stops the hub.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.isShutdown.Store(true)
		h.cancel()

		h.clientsMutex.Lock()
		for conn, client := range h.clients {
			close(client.send)
			conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
		h.clients = make(map[*websocket.Conn]*Client)
		h.clientsMutex.Unlock()

		h.logger.Debug(ctx, "Reload hub shut down")
	})
	return nil
}

// IsShutdown reports whether Shutdown has been called.
func (h *Hub) IsShutdown() bool {
	return h.isShutdown.Load()
}
