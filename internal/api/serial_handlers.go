package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/framehub/artframe/internal/serial"
	"github.com/framehub/artframe/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN appliance; the UI is served from anywhere local
	},
}

// Device log lines retained in the logs entity.
const maxStoredLogs = 500

// SerialHandler bridges device serial frames to browser websockets and
// persists device log lines.
type SerialHandler struct {
	Hub   *serial.Hub
	Store store.Store
	Log   *slog.Logger
}

func NewSerialHandler(hub *serial.Hub, st store.Store, log *slog.Logger) *SerialHandler {
	return &SerialHandler{Hub: hub, Store: st, Log: log}
}

// PostFrame is POST /api/serial-stream: the device pushes console output
// while streaming is enabled.
func (h *SerialHandler) PostFrame(w http.ResponseWriter, r *http.Request) {
	var frame serial.Frame
	if err := decodeStrict(r.Body, &frame); err != nil {
		respondError(w, http.StatusBadRequest, "invalid serial frame")
		return
	}
	if frame.DeviceID == "" || frame.Line == "" {
		respondError(w, http.StatusBadRequest, "missing deviceId or line")
		return
	}
	h.Hub.Publish(r.Context(), frame)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Subscribe is GET /api/serial/{deviceId}/ws.
func (h *SerialHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("serial ws upgrade failed", "err", err)
		return
	}
	h.Hub.Subscribe(deviceID, conn)

	// Hold the connection open; the hub writes, we only watch for close.
	go func() {
		defer h.Hub.Unsubscribe(deviceID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Recent is GET /api/serial/{deviceId}: the buffered frames over plain HTTP.
func (h *SerialHandler) Recent(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"frames": h.Hub.Recent(chi.URLParam(r, "deviceId")),
	})
}

type logEntry struct {
	DeviceID  string    `json:"deviceId"`
	Level     string    `json:"level,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PostLog is POST /api/logs: device log ingestion, bounded storage.
func (h *SerialHandler) PostLog(w http.ResponseWriter, r *http.Request) {
	var entry logEntry
	if err := decodeStrict(r.Body, &entry); err != nil {
		respondError(w, http.StatusBadRequest, "invalid log body")
		return
	}
	if entry.DeviceID == "" || entry.Message == "" {
		respondError(w, http.StatusBadRequest, "missing deviceId or message")
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	err := h.Store.Update(r.Context(), store.EntityLogs, func(cur []byte) ([]byte, error) {
		var entries []logEntry
		if cur != nil {
			if err := json.Unmarshal(cur, &entries); err != nil {
				return nil, err
			}
		}
		entries = append(entries, entry)
		if len(entries) > maxStoredLogs {
			entries = entries[len(entries)-maxStoredLogs:]
		}
		return json.Marshal(entries)
	})
	if err != nil {
		// Same rule as the other device paths: log it, let the device sleep.
		h.Log.Error("device log persist failed", "deviceId", entry.DeviceID, "err", err)
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GetLogs is GET /api/logs (UI view).
func (h *SerialHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Store.Read(r.Context(), store.EntityLogs)
	if errors.Is(err, store.ErrNotFound) {
		respondJSON(w, http.StatusOK, map[string]any{"logs": []logEntry{}})
		return
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var entries []logEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"logs": entries})
}
