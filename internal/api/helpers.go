package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/framehub/artframe/internal/art"
	"github.com/framehub/artframe/internal/art/adapters"
	"github.com/framehub/artframe/internal/commands"
	"github.com/framehub/artframe/internal/current"
	"github.com/framehub/artframe/internal/devices"
	"github.com/framehub/artframe/internal/ota"
	"github.com/framehub/artframe/internal/pipeline"
	"github.com/framehub/artframe/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeStrict unmarshals a JSON body rejecting unknown fields, so a
// misspelled option fails loudly instead of silently defaulting.
func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondDomainError maps domain sentinels onto the API's status codes.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidParam),
		errors.Is(err, pipeline.ErrDegenerate),
		errors.Is(err, current.ErrBadInterval),
		errors.Is(err, current.ErrBadPlaylist),
		errors.Is(err, current.ErrBadSettings),
		errors.Is(err, current.ErrBadBuffer),
		errors.Is(err, commands.ErrUnknownCommand):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, current.ErrNotFound),
		errors.Is(err, current.ErrNoImage),
		errors.Is(err, current.ErrNoOriginal),
		errors.Is(err, devices.ErrNotFound),
		errors.Is(err, ota.ErrNoFirmware),
		errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, art.ErrAIDisabled):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, pipeline.ErrDecode),
		errors.Is(err, adapters.ErrUpstream),
		errors.Is(err, art.ErrTimeout),
		errors.Is(err, art.ErrNoSource):
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
