package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"leeai-backend/internal/middleware"
	"leeai-backend/internal/models"
)

const (
	maxMessageBytes = 1 << 20
	writeWait       = 10 * time.Second
)

type responder interface {
	Respond(ctx context.Context, requestID, message string) (int, string)
}

type frameLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// Hub serves chat over WebSocket connections: every text frame carrying
// {"message": ...} is answered with {"reply": ..., "status": ...}.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID]*websocket.Conn
	responder   responder
	limiter     frameLimiter
	upgrader    websocket.Upgrader
}

// NewHub builds the hub. Every frame is counted against limiter under the
// client's IP; limiter may be nil.
func NewHub(r responder, limiter frameLimiter, allowedOrigins string) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID]*websocket.Conn),
		responder:   r,
		limiter:     limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowedOrigins string) func(r *http.Request) bool {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || len(allowed) == 0 || allowed[origin]
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	connID := uuid.New()
	h.registerConnection(connID, conn)
	defer h.unregisterConnection(connID, conn)

	// Canceled when the client goes away, aborting any reply in progress.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientIP := middleware.ClientIP(r)
	frames := make(chan []byte)
	go func() {
		defer cancel()
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range frames {
		requestID := uuid.NewString()
		var req models.ChatRequest
		var out models.SocketReply
		switch {
		case h.limiter != nil && !h.limiter.Allow(ctx, clientIP):
			out = models.SocketReply{Reply: middleware.RateLimitedReply, Status: http.StatusTooManyRequests}
		case json.Unmarshal(data, &req) != nil:
			out = models.SocketReply{Reply: "Error: Invalid request body.", Status: http.StatusBadRequest}
		default:
			out.Status, out.Reply = h.responder.Respond(ctx, requestID, req.Message)
		}

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(out); err != nil {
			log.Printf("WebSocket write failed on %s: %v", connID, err)
			return
		}
	}
}

func (h *Hub) registerConnection(id uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[id] = conn
	log.Printf("WebSocket connected: %s (total: %d)", id, len(h.connections))
}

func (h *Hub) unregisterConnection(id uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()
	delete(h.connections, id)
	log.Printf("WebSocket disconnected: %s", id)
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll sends a close frame to every client and drops the connections.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, conn := range h.connections {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
}
