package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/framehub/artframe/internal/ota"
)

// FirmwareHandler serves the OTA manifest and binary.
type FirmwareHandler struct {
	OTA *ota.Service
	Log *slog.Logger
}

func NewFirmwareHandler(svc *ota.Service, log *slog.Logger) *FirmwareHandler {
	return &FirmwareHandler{OTA: svc, Log: log}
}

// Version is GET /firmware/version.
func (h *FirmwareHandler) Version(w http.ResponseWriter, r *http.Request) {
	m, err := h.OTA.Manifest(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// Download is GET /firmware/download?deviceId=... — the binary stream.
func (h *FirmwareHandler) Download(w http.ResponseWriter, r *http.Request) {
	rc, size, err := h.OTA.Open()
	if err != nil {
		respondDomainError(w, err)
		return
	}
	defer rc.Close()

	deviceID := r.URL.Query().Get("deviceId")
	h.Log.Info("firmware download started", "deviceId", deviceID, "size", size)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		// The device dropping mid-download is routine on weak Wi-Fi.
		h.Log.Warn("firmware download interrupted", "deviceId", deviceID, "err", err)
	}
}

// Force is POST /firmware/force {enabled} (authenticated).
func (h *FirmwareHandler) Force(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeStrict(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid force body")
		return
	}
	if err := h.OTA.SetForceUpdate(r.Context(), req.Enabled); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"forceUpdate": req.Enabled})
}

// SetInfo is PUT /firmware/info (authenticated, deploy tooling).
func (h *FirmwareHandler) SetInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version    string  `json:"version"`
		BuildDate  string  `json:"buildDate"`
		MinBattery float64 `json:"minBattery"`
	}
	if err := decodeStrict(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid info body")
		return
	}
	if req.Version == "" {
		respondError(w, http.StatusBadRequest, "missing version")
		return
	}
	if err := h.OTA.SetInfo(r.Context(), req.Version, req.BuildDate, req.MinBattery); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
