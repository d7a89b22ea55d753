package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framehub/artframe/internal/commands"
	"github.com/framehub/artframe/internal/current"
	"github.com/framehub/artframe/internal/devices"
	"github.com/framehub/artframe/internal/metrics"
)

// DeviceHandler owns the endpoints the frame hits on every wake cycle. These
// paths must answer fast (no external I/O). The metadata poll, status post
// and command drain never answer 500: a confused response leaves the panel
// stuck until someone power-cycles it. image.bin has no buffer to send when
// the store read fails, so it answers with the mapped error status.
type DeviceHandler struct {
	Current  *current.Service
	Registry *devices.Registry
	Queue    *commands.Queue
	Metrics  *metrics.Collector
	Log      *slog.Logger
	Location *time.Location

	// DefaultDeviceID backfills status posts from firmware builds that omit
	// their id (single-frame households).
	DefaultDeviceID string
}

func NewDeviceHandler(cur *current.Service, reg *devices.Registry, q *commands.Queue,
	m *metrics.Collector, loc *time.Location, defaultDeviceID string, log *slog.Logger) *DeviceHandler {
	if loc == nil {
		loc = time.Local
	}
	return &DeviceHandler{
		Current: cur, Registry: reg, Queue: q, Metrics: m,
		Location: loc, DefaultDeviceID: defaultDeviceID, Log: log,
	}
}

type currentResponse struct {
	HasImage      bool   `json:"hasImage"`
	ImageID       string `json:"imageId,omitempty"`
	Title         string `json:"title,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	SleepDuration int64  `json:"sleepDuration"`
	Rotation      int    `json:"rotation"`
	DevServerHost string `json:"devServerHost,omitempty"`
}

// GetCurrent is GET /api/current.json. Reading it may advance the playlist;
// the first poll past an interval boundary sees the next image.
func (h *DeviceHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	settings, err := h.Current.GetSettings(ctx)
	if err != nil {
		h.Log.Error("settings read failed", "err", err)
		def := current.DefaultSettings()
		settings = &def
	}

	resp := currentResponse{
		SleepDuration: current.SleepDuration(time.Now().In(h.Location), *settings, 0),
	}
	if settings.DevMode {
		resp.DevServerHost = settings.DevServerHost
	}

	meta, err := h.Current.Snapshot(ctx)
	switch {
	case errors.Is(err, current.ErrNoImage):
		// Nothing uploaded yet; the device sleeps on the default cadence.
	case err != nil:
		h.Log.Error("current snapshot failed", "err", err)
	default:
		resp.HasImage = true
		resp.ImageID = meta.ImageID
		resp.Title = meta.Title
		resp.Timestamp = meta.Timestamp.UnixMilli()
		resp.Rotation = meta.Rotation
		resp.SleepDuration = current.SleepDuration(time.Now().In(h.Location), *settings, meta.SleepDurationUS)
		h.Metrics.SetImageAge(time.Since(meta.Timestamp))
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetImage is GET /api/image.bin: the raw panel buffer, uncompressed.
func (h *DeviceHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	pixels, meta, err := h.Current.Pixels(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pixels)))
	w.Header().Set("ETag", `"`+meta.ImageID+`"`)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match == `"`+meta.ImageID+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(pixels)
}

// PostStatus is POST /api/device-status. Telemetry processing failures are
// logged, not surfaced: the device needs its 200 to go back to sleep.
func (h *DeviceHandler) PostStatus(w http.ResponseWriter, r *http.Request) {
	var report devices.StatusReport
	if err := decodeStrict(r.Body, &report); err != nil {
		h.Metrics.StatusPost("bad_request")
		respondError(w, http.StatusBadRequest, "invalid status body")
		return
	}
	if report.DeviceID == "" {
		report.DeviceID = h.DefaultDeviceID
	}
	if report.DeviceID == "" {
		h.Metrics.StatusPost("bad_request")
		respondError(w, http.StatusBadRequest, "missing deviceId")
		return
	}

	dev, err := h.Registry.Ingest(r.Context(), report)
	if err != nil {
		h.Log.Error("status ingest failed", "deviceId", report.DeviceID, "err", err)
		h.Metrics.StatusPost("error")
		respondJSON(w, http.StatusOK, map[string]any{"success": false})
		return
	}

	h.Metrics.StatusPost("ok")
	h.Metrics.ObserveDevice(dev.DeviceID, dev.Voltage, dev.Percent,
		dev.IsCharging, dev.SignalStrength, dev.BrownoutCount)
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GetCommands is GET /api/commands/{deviceId}: a destructive drain. Errors
// degrade to an empty command list for the same never-strand-the-device
// reason as PostStatus.
func (h *DeviceHandler) GetCommands(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if deviceID == "" {
		respondError(w, http.StatusBadRequest, "missing deviceId")
		return
	}
	cmds, err := h.Queue.Drain(r.Context(), deviceID)
	if err != nil {
		h.Log.Error("command drain failed", "deviceId", deviceID, "err", err)
		cmds = []commands.Command{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"commands": cmds})
}

// PostCommand is POST /api/device-command/{deviceId} (authenticated).
func (h *DeviceHandler) PostCommand(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	var req struct {
		Command    string `json:"command"`
		DurationMS int64  `json:"duration_ms"`
	}
	if err := decodeStrict(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid command body")
		return
	}
	cmd, err := h.Queue.Enqueue(r.Context(), deviceID, req.Command, req.DurationMS)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cmd)
}

// ListDevices is GET /api/devices.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	list, err := h.Registry.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"devices": list})
}

// GetDevice is GET /api/devices/{deviceId}.
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := h.Registry.Get(r.Context(), chi.URLParam(r, "deviceId"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dev)
}
