package httpapi

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tradeedge/signalcore/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans governing decisions out to websocket subscribers. A slow client
// gets dropped rather than backing up the scan loop.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan domain.RiskDecision
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan domain.RiskDecision)}
}

// HandleWS upgrades the connection and streams decisions until the client
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	ch := make(chan domain.RiskDecision, 32)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = ch
	h.mu.Unlock()

	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Websocket client connected")

	go func() {
		// Drain reads so pings and close frames are processed.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()

	for d := range ch {
		if err := conn.WriteJSON(d); err != nil {
			h.drop(conn)
			return
		}
	}
	conn.Close()
}

// Broadcast sends a decision to every subscriber, dropping those whose
// buffers are full.
func (h *Hub) Broadcast(d domain.RiskDecision) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- d:
		default:
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}

// Close disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, ch := range h.clients {
		delete(h.clients, conn)
		close(ch)
		conn.Close()
	}
}
