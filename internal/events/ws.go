package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

// WSEmitter pushes every Emit to all currently-connected websocket
// clients of the local UI. One HTTP server, upgraded per connection;
// a disconnected client is dropped from the hub on its next failed
// write rather than polled for liveness.
type WSEmitter struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewWSEmitter builds a WSEmitter and a chi router exposing it at
// GET /ws, with CORS restricted to allowOrigins.
func NewWSEmitter(allowOrigins []string) (*WSEmitter, http.Handler) {
	w := &WSEmitter{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		clients: make(map[*websocket.Conn]struct{}),
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowOrigins,
		AllowedMethods:   []string{"GET"},
		AllowCredentials: true,
	}))
	r.Get("/ws", w.handleWS)

	return w, r
}

func (w *WSEmitter) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	w.mu.Lock()
	w.clients[conn] = struct{}{}
	w.mu.Unlock()

	slog.Info("ui client connected", "remote", conn.RemoteAddr())

	// Clients don't send us anything meaningful; just drain reads so
	// the connection's close/ping machinery keeps working, and drop
	// the client once the read loop errors out.
	go func() {
		defer w.disconnect(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (w *WSEmitter) disconnect(conn *websocket.Conn) {
	w.mu.Lock()
	delete(w.clients, conn)
	w.mu.Unlock()
	conn.Close()
	slog.Info("ui client disconnected", "remote", conn.RemoteAddr())
}

// Emit implements Emitter: broadcasts the event to every connected client.
func (w *WSEmitter) Emit(event string, payload any) error {
	data, err := json.Marshal(Message{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshaling payload for event %q: %w", event, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for conn := range w.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("dropping ui client after write failure", "remote", conn.RemoteAddr(), "error", err)
			delete(w.clients, conn)
			conn.Close()
		}
	}
	return nil
}
