package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/framehub/artframe/internal/current"
	"github.com/framehub/artframe/internal/metrics"
	"github.com/framehub/artframe/internal/pipeline"
)

// Uploads larger than this are rejected; at most this many bytes plus one
// are read from the file part before the size check.
const maxUploadBytes = 64 << 20

// ImageHandler covers upload, history and archive re-processing.
type ImageHandler struct {
	Pool    *pipeline.Pool
	Current *current.Service
	Metrics *metrics.Collector
	Log     *slog.Logger
}

func NewImageHandler(pool *pipeline.Pool, cur *current.Service, m *metrics.Collector, log *slog.Logger) *ImageHandler {
	return &ImageHandler{Pool: pool, Current: cur, Metrics: m, Log: log}
}

// Upload is POST /api/upload (multipart, authenticated). The image lands in
// the archive only; the frame keeps its current picture until an apply.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	src, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable upload")
		return
	}
	if len(src) > maxUploadBytes {
		respondError(w, http.StatusBadRequest, "upload too large")
		return
	}

	params, err := paramsFromForm(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := h.Pool.Process(r.Context(), src, params)
	if err != nil {
		h.Metrics.PipelineJob("error", time.Since(start))
		respondDomainError(w, err)
		return
	}
	h.Metrics.PipelineJob("ok", time.Since(start))

	entry, err := h.Current.Archive(r.Context(), current.WriteRequest{
		Title:     r.FormValue("title"),
		Artist:    r.FormValue("artist"),
		Source:    "upload",
		Rotation:  params.Rotation,
		Pixels:    result.Pixels,
		Thumbnail: result.ThumbnailPNG,
		Original:  src,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

// Apply is POST /api/images/{imageId}/apply (authenticated): make an
// archived image current without re-processing.
func (h *ImageHandler) Apply(w http.ResponseWriter, r *http.Request) {
	meta, err := h.Current.SetCurrentFromArchive(r.Context(), chi.URLParam(r, "imageId"), 0)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

// History is GET /api/history.
func (h *ImageHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Current.History(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// Thumbnail is GET /api/history/{imageId}/thumbnail.
func (h *ImageHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageId")
	png, err := h.Current.Thumbnail(r.Context(), imageID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("ETag", `"`+imageID+`"`)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if r.Header.Get("If-None-Match") == `"`+imageID+`"` {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Write(png)
}

type loadRequest struct {
	Rotation           int     `json:"rotation"`
	CropX              float64 `json:"cropX"`
	CropY              float64 `json:"cropY"`
	ZoomLevel          float64 `json:"zoomLevel"`
	DitherAlgorithm    string  `json:"ditherAlgorithm"`
	EnhanceContrast    bool    `json:"enhanceContrast"`
	Sharpen            bool    `json:"sharpen"`
	AutoCropWhitespace bool    `json:"autoCropWhitespace"`
}

// Load is POST /api/history/{imageId}/load: re-quantize the retained
// original with new parameters and republish it as current under the same
// image id.
func (h *ImageHandler) Load(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageId")

	var req loadRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid load body")
		return
	}

	src, err := h.Current.Original(r.Context(), imageID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	params := pipeline.DefaultParams()
	params.Rotation = req.Rotation
	if req.CropX != 0 || req.CropY != 0 {
		params.CropX, params.CropY = req.CropX, req.CropY
	}
	if req.ZoomLevel != 0 {
		params.ZoomLevel = req.ZoomLevel
	}
	if req.DitherAlgorithm != "" {
		params.DitherAlgorithm = req.DitherAlgorithm
	}
	params.EnhanceContrast = req.EnhanceContrast
	params.Sharpen = req.Sharpen
	params.AutoCropWhitespace = req.AutoCropWhitespace

	start := time.Now()
	result, err := h.Pool.Process(r.Context(), src, params)
	if err != nil {
		h.Metrics.PipelineJob("error", time.Since(start))
		respondDomainError(w, err)
		return
	}
	h.Metrics.PipelineJob("ok", time.Since(start))

	meta, err := h.Current.ReplaceCurrent(r.Context(), imageID, params.Rotation,
		result.Pixels, result.ThumbnailPNG, 0)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

func paramsFromForm(r *http.Request) (pipeline.Params, error) {
	params := pipeline.DefaultParams()
	var err error
	if v := r.FormValue("rotation"); v != "" {
		if params.Rotation, err = strconv.Atoi(v); err != nil {
			return params, err
		}
	}
	if v := r.FormValue("cropX"); v != "" {
		if params.CropX, err = strconv.ParseFloat(v, 64); err != nil {
			return params, err
		}
	}
	if v := r.FormValue("cropY"); v != "" {
		if params.CropY, err = strconv.ParseFloat(v, 64); err != nil {
			return params, err
		}
	}
	if v := r.FormValue("zoomLevel"); v != "" {
		if params.ZoomLevel, err = strconv.ParseFloat(v, 64); err != nil {
			return params, err
		}
	}
	if v := r.FormValue("ditherAlgorithm"); v != "" {
		params.DitherAlgorithm = v
	}
	params.EnhanceContrast = r.FormValue("enhanceContrast") == "true"
	params.Sharpen = r.FormValue("sharpen") == "true"
	params.AutoCropWhitespace = r.FormValue("autoCropWhitespace") == "true"
	return params, nil
}
