package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS configuration of the API;
		// the progress feed itself carries no sensitive payloads.
		return true
	},
}

// ProgressEvent is pushed to WebSocket subscribers while a document is
// being processed.
type ProgressEvent struct {
	DocumentID string  `json:"document_id"`
	Status     string  `json:"status"`
	Stage      string  `json:"stage,omitempty"`
	Progress   float64 `json:"progress"`
	Pages      int     `json:"pages,omitempty"`
	Blocks     int     `json:"blocks,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Hub fans processing events out to WebSocket subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn       *websocket.Conn
	documentID string // empty means all documents
	send       chan ProgressEvent
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

// Broadcast delivers an event to every subscriber interested in the
// document. Slow clients are skipped rather than blocking processing.
func (h *Hub) Broadcast(documentID string, ev ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.documentID != "" && c.documentID != documentID {
			continue
		}
		select {
		case c.send <- ev:
		default:
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	websocketConnections.Inc()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	websocketConnections.Dec()
}

// wsHandler upgrades the connection and streams progress events. An
// optional ?document= query restricts the feed to one document.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn:       conn,
		documentID: r.URL.Query().Get("document"),
		send:       make(chan ProgressEvent, 16),
	}
	s.hub.add(client)
	s.logger.Info("websocket connected", "remote_addr", r.RemoteAddr, "document", client.documentID)

	done := make(chan struct{})

	// Reader: only used for liveness; clients send no commands.
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Error("websocket error", "error", err)
				}
				return
			}
			websocketMessagesTotal.WithLabelValues("received").Inc()
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		s.hub.remove(client)
		_ = conn.Close()
	}()

	for {
		select {
		case ev := <-client.send:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			websocketMessagesTotal.WithLabelValues("sent").Inc()
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
