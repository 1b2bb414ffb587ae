package render

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-livedetect/pipeline"
)

const writeWait = 5 * time.Second

// Message is the JSON envelope sent to websocket clients.
type Message struct {
	// Type is "result" or "status".
	Type string `json:"type"`
	// Result is set for result messages.
	Result *pipeline.Result `json:"result,omitempty"`
	// Status is set for status messages; empty clears the previous status.
	Status string `json:"status"`
}

// Hub broadcasts results to websocket clients.
//
// Every client has a one-message buffer; a slow client only ever receives the
// most recent message.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewHub creates a hub.
//
// Arguments:
//   - logger: The logger, nil for none.
//
// Returns:
//   - *Hub: The hub, ready to be mounted as an http.Handler.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client. A new client
// immediately receives the last broadcast message.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 1), done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	h.logger.Info("websocket client connected", zap.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop drains control frames until the client goes away.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		close(c.done)
		c.conn.Close()
	}
}

// Publish broadcasts a result.
func (h *Hub) Publish(result *pipeline.Result) {
	h.broadcast(Message{Type: "result", Result: result})
}

// Status broadcasts a status message.
func (h *Hub) Status(message string) {
	h.broadcast(Message{Type: "status", Status: message})
}

func (h *Hub) broadcast(m Message) {
	payload, err := json.Marshal(m)
	if err != nil {
		h.logger.Warn("failed to encode message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = payload
	for c := range h.clients {
		// Replace a pending message so the client catches up with the latest one.
		select {
		case <-c.send:
		default:
		}
		c.send <- payload
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.closed = true
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
	return nil
}

// Serve runs an HTTP server exposing the hub on /ws until ctx is cancelled.
//
// Arguments:
//   - ctx: Bounds the lifetime of the server.
//   - addr: The listen address, for example ":8080".
//
// Returns:
//   - error: The listen error, nil after a clean shutdown.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		h.logger.Info("websocket server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	_ = h.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
