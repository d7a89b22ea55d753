package api

import (
	"log/slog"
	"net/http"

	"github.com/framehub/artframe/internal/current"
)

// SettingsHandler is the /api/settings surface.
type SettingsHandler struct {
	Current *current.Service
	Log     *slog.Logger
}

func NewSettingsHandler(cur *current.Service, log *slog.Logger) *SettingsHandler {
	return &SettingsHandler{Current: cur, Log: log}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.Current.GetSettings(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	var st current.Settings
	if err := decodeStrict(r.Body, &st); err != nil {
		respondError(w, http.StatusBadRequest, "invalid settings body")
		return
	}
	saved, err := h.Current.SaveSettings(r.Context(), st)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}
