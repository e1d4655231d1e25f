package poolapi

import (
	"sync"

	"github.com/arcdb/pagepool/pkg/bufferpool"
)

// eventHub fans out bufferpool.Event values to every currently-subscribed
// WebSocket connection. Its shape mirrors the teacher codebase's
// ChangeStreamManager: a map of connection id to a per-connection
// buffered channel guarded by a single mutex, so a slow reader drops its
// own events instead of blocking the pool.
type eventHub struct {
	mu      sync.RWMutex
	subs    map[string]chan bufferpool.Event
	nextID  int
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[string]chan bufferpool.Event)}
}

// attach registers pool's event hook to broadcast into this hub. Call once
// per Server.
func (h *eventHub) attach(pool *bufferpool.Manager) {
	pool.SetEventHook(h.broadcast)
}

func (h *eventHub) broadcast(ev bufferpool.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber isn't keeping up; drop the event rather than
			// stall buffer pool operations waiting on it.
		}
	}
}

// subscribe registers a new listener and returns its id and channel. The
// channel is buffered so a burst of evictions doesn't immediately trigger
// the drop path above.
func (h *eventHub) subscribe() (string, <-chan bufferpool.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := idFor(h.nextID)
	ch := make(chan bufferpool.Event, 64)
	h.subs[id] = ch
	return id, ch
}

func (h *eventHub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func idFor(n int) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 8)
	for n > 0 {
		buf = append(buf, alphabet[n%len(alphabet)])
		n /= len(alphabet)
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return "ws-" + string(buf)
}
