// Package serial fans device serial-console frames out to browser
// subscribers. The device posts frames over plain HTTP during a stay-awake
// window (streaming is enabled with the enable_streaming command); UI
// clients hold a websocket.
package serial

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/framehub/artframe/internal/store"
)

// Frames kept in memory (and mirrored to the serial-streams entity) per
// device.
const maxBuffered = 200

type Frame struct {
	DeviceID  string    `json:"deviceId"`
	Line      string    `json:"line"`
	Level     string    `json:"level,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriber wraps a websocket with a write lock; gorilla connections allow
// only one concurrent writer.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub tracks subscribers per device and the recent-frame ring.
type Hub struct {
	store store.Store
	log   *slog.Logger

	mu      sync.Mutex
	subs    map[string]map[*websocket.Conn]*subscriber
	buffers map[string][]Frame
}

func NewHub(st store.Store, log *slog.Logger) *Hub {
	return &Hub{
		store:   st,
		log:     log,
		subs:    make(map[string]map[*websocket.Conn]*subscriber),
		buffers: make(map[string][]Frame),
	}
}

// Publish appends a frame to the ring, mirrors it to the store
// (best-effort) and pushes it to every live subscriber.
func (h *Hub) Publish(ctx context.Context, frame Frame) {
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	buf := append(h.buffers[frame.DeviceID], frame)
	if len(buf) > maxBuffered {
		buf = buf[len(buf)-maxBuffered:]
	}
	h.buffers[frame.DeviceID] = buf
	targets := make([]*subscriber, 0, len(h.subs[frame.DeviceID]))
	for _, s := range h.subs[frame.DeviceID] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	for _, s := range targets {
		if err := s.send(payload); err != nil {
			h.Unsubscribe(frame.DeviceID, s.conn)
		}
	}

	// Persistence is a convenience for reloading the console view; a failed
	// write only costs scrollback.
	if err := h.persist(ctx, frame.DeviceID, buf); err != nil {
		h.log.Warn("serial stream persist failed", "deviceId", frame.DeviceID, "err", err)
	}
}

func (h *Hub) persist(ctx context.Context, deviceID string, buf []Frame) error {
	return h.store.Update(ctx, store.EntitySerialStreams, func(cur []byte) ([]byte, error) {
		all := map[string][]Frame{}
		if cur != nil {
			if err := json.Unmarshal(cur, &all); err != nil {
				return nil, err
			}
		}
		all[deviceID] = buf
		return json.Marshal(all)
	})
}

// Subscribe registers a websocket and replays the buffered frames to it.
func (h *Hub) Subscribe(deviceID string, conn *websocket.Conn) {
	sub := &subscriber{conn: conn}
	h.mu.Lock()
	if h.subs[deviceID] == nil {
		h.subs[deviceID] = make(map[*websocket.Conn]*subscriber)
	}
	h.subs[deviceID][conn] = sub
	replay := append([]Frame(nil), h.buffers[deviceID]...)
	h.mu.Unlock()

	for _, f := range replay {
		payload, err := json.Marshal(f)
		if err != nil {
			continue
		}
		if err := sub.send(payload); err != nil {
			h.Unsubscribe(deviceID, conn)
			return
		}
	}
}

func (h *Hub) Unsubscribe(deviceID string, conn *websocket.Conn) {
	h.mu.Lock()
	if set, ok := h.subs[deviceID]; ok {
		delete(set, conn)
	}
	h.mu.Unlock()
	conn.Close()
}

// Recent returns the buffered frames for a device (HTTP fallback view).
func (h *Hub) Recent(deviceID string) []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Frame(nil), h.buffers[deviceID]...)
}
