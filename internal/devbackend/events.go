package devbackend

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"valter-dash/internal/hostsignal"
)

// subscriberBuffer is how many events a slow subscriber may lag before
// further events to it are dropped.
const subscriberBuffer = 16

// Hub fans backend events out to every connected /events websocket.
type Hub struct {
	mu   sync.Mutex
	subs map[chan hostsignal.Event]struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: map[chan hostsignal.Event]struct{}{}, log: log}
}

// Broadcast queues evt for every subscriber without blocking.
func (h *Hub) Broadcast(evt hostsignal.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.log.Warn("event subscriber lagging, dropping event", zap.String("type", evt.Type))
		}
	}
}

// Subscribers reports how many streams are connected.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) subscribe() chan hostsignal.Event {
	ch := make(chan hostsignal.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan hostsignal.Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP upgrades to a websocket and streams events until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("events: websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Reads only detect the close; clients never send anything.
	ctx := conn.CloseRead(r.Context())
	ch := h.subscribe()
	defer h.unsubscribe(ch)
	h.log.Debug("events: subscriber connected", zap.String("remote", r.RemoteAddr))

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, evt)
			cancel()
			if err != nil {
				h.log.Debug("events: write failed", zap.Error(err))
				return
			}
		}
	}
}
