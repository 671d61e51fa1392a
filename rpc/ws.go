package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"splitescrow/core/types"
	"splitescrow/native/escrow"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// Hub fans committed events out to websocket subscribers. A subscriber whose
// buffer is full is disconnected instead of stalling the processor.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	logger *slog.Logger
}

type subscription struct {
	ch       chan *types.Event
	filter   eventFilter
	dropOnce sync.Once
}

type eventFilter struct {
	types    map[string]struct{}
	escrowID string
}

func (f eventFilter) match(evt *types.Event) bool {
	if evt == nil {
		return false
	}
	if len(f.types) > 0 {
		if _, ok := f.types[evt.Type]; !ok {
			return false
		}
	}
	if f.escrowID != "" && evt.Attributes[escrow.AttrEscrowID] != f.escrowID {
		return false
	}
	return true
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[*subscription]struct{}), logger: logger}
}

// Publish implements events.Sink.
func (h *Hub) Publish(evt *types.Event) {
	if h == nil || evt == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.filter.match(evt) {
			continue
		}
		select {
		case sub.ch <- evt.Clone():
		default:
			h.logger.Warn("ws: dropping slow subscriber", slog.String("type", evt.Type))
			h.removeLocked(sub)
		}
	}
}

func (h *Hub) subscribe(filter eventFilter) (*subscription, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	sub := &subscription{ch: make(chan *types.Event, subscriberBuffer), filter: filter}
	h.subs[sub] = struct{}{}
	return sub, true
}

func (h *Hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	sub.dropOnce.Do(func() { close(sub.ch) })
}

// Subscribers returns the number of connected streams.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		h.removeLocked(sub)
	}
}

func parseFilter(r *http.Request) eventFilter {
	filter := eventFilter{escrowID: strings.TrimSpace(r.URL.Query().Get("escrowId"))}
	for _, raw := range r.URL.Query()["type"] {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if filter.types == nil {
				filter.types = make(map[string]struct{})
			}
			filter.types[name] = struct{}{}
		}
	}
	return filter
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	sub, ok := s.hub.subscribe(parseFilter(r))
	if !ok {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer s.hub.unsubscribe(sub)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, sub.ch); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan *types.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(eventPayload{Type: evt.Type, Attributes: evt.Attributes})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

type eventPayload struct {
	Seq        uint64            `json:"seq,omitempty"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt *time.Time        `json:"recordedAt,omitempty"`
}
