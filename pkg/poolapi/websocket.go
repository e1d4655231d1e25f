package poolapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventMessage is the wire shape written to each /_ws/events subscriber.
type eventMessage struct {
	Type   string `json:"type"` // "event" or "heartbeat"
	Kind   string `json:"kind,omitempty"`
	PageID uint32 `json:"pageId,omitempty"`
}

const wsHeartbeatInterval = 30 * time.Second

// handleEvents upgrades the connection and streams frame transition events
// until the client disconnects or a write to it fails. Server.Shutdown
// does not close these upgraded connections.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("pagepool: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, events := s.hub.subscribe()
	defer s.hub.unsubscribe(id)

	heartbeat := time.NewTicker(wsHeartbeatInterval)
	defer heartbeat.Stop()

	// A dedicated reader goroutine drains (and discards) client frames so
	// control messages like Close are still observed; this connection is
	// otherwise server-to-client only.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg := eventMessage{Type: "event", Kind: string(ev.Kind), PageID: uint32(ev.PageID)}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteJSON(eventMessage{Type: "heartbeat"}); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("pagepool: error encoding JSON response: %v", err)
	}
}
