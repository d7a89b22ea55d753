package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/framehub/artframe/internal/metrics"
	"github.com/framehub/artframe/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Device   *DeviceHandler
	Art      *ArtHandler
	Image    *ImageHandler
	Playlist *PlaylistHandler
	Settings *SettingsHandler
	Firmware *FirmwareHandler
	Serial   *SerialHandler
	Metrics  *metrics.Collector
	Auth     *middleware.APIKeyAuth
}

// NewRouter wires the route table. Device-poll paths stay outside the API
// key: the frame only ever holds its device id.
func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/api/metrics", h.Metrics.Handler())

	// Device wake-cycle endpoints: fast, unauthenticated; only image.bin
	// can answer 500 (failed store read).
	r.Get("/api/current.json", h.Device.GetCurrent)
	r.Get("/api/image.bin", h.Device.GetImage)
	r.Post("/api/device-status", h.Device.PostStatus)
	r.Get("/api/commands/{deviceId}", h.Device.GetCommands)
	r.Post("/api/logs", h.Serial.PostLog)
	r.Post("/api/serial-stream", h.Serial.PostFrame)

	// OTA: manifest and binary are device-facing.
	r.Get("/firmware/version", h.Firmware.Version)
	r.Get("/firmware/download", h.Firmware.Download)

	// Read-only UI endpoints.
	r.Get("/api/art/search", h.Art.Search)
	r.Get("/api/art/random", h.Art.Random)
	r.Get("/api/history", h.Image.History)
	r.Get("/api/history/{imageId}/thumbnail", h.Image.Thumbnail)
	r.Get("/api/playlist", h.Playlist.Get)
	r.Get("/api/settings", h.Settings.Get)
	r.Get("/api/devices", h.Device.ListDevices)
	r.Get("/api/devices/{deviceId}", h.Device.GetDevice)
	r.Get("/api/logs", h.Serial.GetLogs)
	r.Get("/api/serial/{deviceId}", h.Serial.Recent)
	r.Get("/api/serial/{deviceId}/ws", h.Serial.Subscribe)

	// Mutating endpoints sit behind the API key.
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.Middleware)

		r.Post("/api/upload", h.Image.Upload)
		r.Post("/api/art/import", h.Art.Import)
		r.Post("/api/generate-art", h.Art.Generate)
		r.Post("/api/images/{imageId}/apply", h.Image.Apply)
		r.Post("/api/history/{imageId}/load", h.Image.Load)
		r.Post("/api/device-command/{deviceId}", h.Device.PostCommand)

		r.Post("/api/playlist", h.Playlist.Put)
		r.Put("/api/playlist", h.Playlist.Put)
		r.Patch("/api/playlist", h.Playlist.Patch)
		r.Delete("/api/playlist", h.Playlist.Delete)

		r.Put("/api/settings", h.Settings.Put)

		r.Post("/firmware/force", h.Firmware.Force)
		r.Put("/firmware/info", h.Firmware.SetInfo)
	})

	return r
}
