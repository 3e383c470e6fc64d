// Package adminapi exposes a read-only operational HTTP and WebSocket
// surface over a running Orchestrator: startup report history, the
// current module/plugin state snapshot, and a live stream of phase and
// state-transition events. It deliberately has no write endpoints; spec
// §1 excludes a CLI front-end and config surface as non-goals, but an
// embedder still needs a way to look inside a running host, and this
// is the supplemental surface for that.
//
// The WebSocket handler is grounded on the teacher's
// internal/handlers/websocket.go Hub-and-Spoke architecture: one hub
// goroutine owns the registered-client set and fans out broadcasts,
// each client gets its own write pump goroutine reading off a buffered
// channel, and registration/unregistration flow through channels
// rather than a guarded map accessed from arbitrary goroutines. It is
// simplified to a single broadcast topic (event envelopes from
// internal/eventbus) since there is no per-client subscription
// filtering need analogous to session/user/team scoping.
package adminapi

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// eventEnvelope is what the hub broadcasts to every connected client;
// Subject identifies which eventbus subject produced Payload.
type eventEnvelope struct {
	Subject string          `json:"subject"`
	Payload json.RawMessage `json:"payload"`
}

// client is one connected WebSocket viewer. id is a synthetic
// connection identity used only for correlating hub log lines across a
// connection's register/unregister lifetime; it has no meaning to the
// protocol itself.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// hub fans out event envelopes to every connected viewer. It owns no
// business state; it is purely a broadcast tree.
type hub struct {
	log zerolog.Logger

	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*client]bool
}

func newHub(log zerolog.Logger) *hub {
	return &hub{
		log: log.With().Str("component", "adminapi-hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*client]bool),
	}
}

// checkOrigin allows same-origin and localhost requests, and any
// request with no Origin header (non-browser clients, curl). Operators
// who need to restrict this further front the admin API with their own
// reverse proxy; this package has no notion of authenticated identity
// to scope a stricter policy to.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := os.Getenv("PLUGIFY_ADMIN_ALLOWED_ORIGINS")
	if allowed == "" {
		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
	}
	for _, o := range strings.Split(allowed, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// run is the only goroutine that adds or removes clients; it still takes
// h.mu around each membership change and broadcast so other readers of
// the map see a consistent view.
func (h *hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.log.Debug().Str("client", c.id).Int("clients", len(h.clients)).Msg("viewer connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Debug().Str("client", c.id).Msg("viewer disconnected")

		case payload := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- payload:
				default:
					// slow consumer; drop it rather than block the hub
					go func(c *client) { h.unregister <- c }(c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *hub) publish(subject string, payload []byte) {
	envelope, err := json.Marshal(eventEnvelope{Subject: subject, Payload: payload})
	if err != nil {
		h.log.Error().Err(err).Str("subject", subject).Msg("failed to marshal event envelope")
		return
	}
	select {
	case h.broadcast <- envelope:
	default:
		h.log.Warn().Str("subject", subject).Msg("broadcast channel full, dropping event")
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains and discards any client message; this endpoint is
// read-only, but the connection still needs its read deadline/pong
// handler serviced or the peer looks dead to the transport.
func (c *client) readPump(h *hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
