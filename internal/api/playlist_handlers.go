package api

import (
	"log/slog"
	"net/http"

	"github.com/framehub/artframe/internal/current"
)

// PlaylistHandler is the /api/playlist CRUD surface.
type PlaylistHandler struct {
	Current *current.Service
	Log     *slog.Logger
}

func NewPlaylistHandler(cur *current.Service, log *slog.Logger) *PlaylistHandler {
	return &PlaylistHandler{Current: cur, Log: log}
}

func (h *PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	pl, err := h.Current.GetPlaylist(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pl)
}

type playlistRequest struct {
	Active     bool     `json:"active"`
	Mode       string   `json:"mode"`
	IntervalUS int64    `json:"interval_us"`
	Images     []string `json:"images"`
}

func (h *PlaylistHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist body")
		return
	}
	pl, err := h.Current.SavePlaylist(r.Context(), current.Playlist{
		Active:     req.Active,
		Mode:       req.Mode,
		IntervalUS: req.IntervalUS,
		Images:     req.Images,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pl)
}

func (h *PlaylistHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var patch current.PlaylistPatch
	if err := decodeStrict(r.Body, &patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid playlist patch")
		return
	}
	pl, err := h.Current.PatchPlaylist(r.Context(), patch)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pl)
}

func (h *PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Current.DeletePlaylist(r.Context()); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}
