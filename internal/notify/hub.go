// Package notify delivers notifications and window commands to pages over
// websockets.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/offlined/internal/domain"
	"nhooyr.io/websocket"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

// Message types sent to connected pages.
const (
	TypeNotification = "notification"
	TypeCommand      = "command"
)

// ActionOpenWindow asks a page to open (or focus) a window at URL.
const ActionOpenWindow = "openWindow"

// Message is the JSON frame written to each page.
type Message struct {
	Type         string                `json:"type"`
	Notification *domain.Notification  `json:"notification,omitempty"`
	Command      *domain.ClientCommand `json:"command,omitempty"`
}

type client struct {
	conn *websocket.Conn
	msgs chan []byte
}

// Hub tracks connected pages and fans messages out to all of them. It
// implements domain.Notifier and http.Handler.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams messages until the page goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	c := &client{conn: conn, msgs: make(chan []byte, sendBuffer)}
	h.add(c)
	defer h.remove(c)

	// Pages never send anything; CloseRead handles control frames.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.msgs:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "client too slow")
				return
			}
			if err := write(ctx, conn, msg); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("page connected", "clients", n)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.msgs)
	}
	h.mu.Unlock()
}

// ShowNotification sends n to every connected page.
func (h *Hub) ShowNotification(ctx context.Context, n domain.Notification) error {
	return h.broadcast(ctx, Message{Type: TypeNotification, Notification: &n})
}

// OpenWindow asks every connected page to open url.
func (h *Hub) OpenWindow(ctx context.Context, url string) error {
	return h.broadcast(ctx, Message{
		Type:    TypeCommand,
		Command: &domain.ClientCommand{Action: ActionOpenWindow, URL: url},
	})
}

// broadcast queues msg for every page. Pages whose queue is full are dropped.
func (h *Hub) broadcast(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.msgs <- data:
		default:
			delete(h.clients, c)
			close(c.msgs)
			h.logger.Warn("dropping slow page")
		}
	}
	return nil
}
