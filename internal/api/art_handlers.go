package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/framehub/artframe/internal/art"
	"github.com/framehub/artframe/internal/current"
	"github.com/framehub/artframe/internal/metrics"
	"github.com/framehub/artframe/internal/pipeline"
)

// ArtHandler covers federated search, import and AI generation.
type ArtHandler struct {
	Federator *art.Federator
	Importer  *art.Importer
	AI        *art.AIGenerator
	Pool      *pipeline.Pool
	Current   *current.Service
	Metrics   *metrics.Collector
	Log       *slog.Logger
}

func NewArtHandler(fed *art.Federator, imp *art.Importer, ai *art.AIGenerator,
	pool *pipeline.Pool, cur *current.Service, m *metrics.Collector, log *slog.Logger) *ArtHandler {
	return &ArtHandler{
		Federator: fed, Importer: imp, AI: ai,
		Pool: pool, Current: cur, Metrics: m, Log: log,
	}
}

// Search is GET /api/art/search?q=&limit=&offset=.
func (h *ArtHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "missing q")
		return
	}
	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)
	if limit < 1 || limit > 100 || offset < 0 {
		respondError(w, http.StatusBadRequest, "limit must be 1-100, offset >= 0")
		return
	}

	res, err := h.Federator.Search(r.Context(), q, limit, offset)
	if err != nil {
		h.Metrics.SearchOutcome("error")
		respondDomainError(w, err)
		return
	}
	h.Metrics.SearchOutcome("ok")
	respondJSON(w, http.StatusOK, res)
}

// Random is GET /api/art/random.
func (h *ArtHandler) Random(w http.ResponseWriter, r *http.Request) {
	work, err := h.Federator.Random(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, work)
}

// importRequest is shared by import and generate: pipeline parameters ride
// along with the source selector.
type importRequest struct {
	ImageURL string `json:"imageUrl"`
	Prompt   string `json:"prompt"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Source   string `json:"source"`

	Rotation           int     `json:"rotation"`
	CropX              float64 `json:"cropX"`
	CropY              float64 `json:"cropY"`
	ZoomLevel          float64 `json:"zoomLevel"`
	DitherAlgorithm    string  `json:"ditherAlgorithm"`
	EnhanceContrast    bool    `json:"enhanceContrast"`
	Sharpen            bool    `json:"sharpen"`
	AutoCropWhitespace bool    `json:"autoCropWhitespace"`
}

func (req *importRequest) params() pipeline.Params {
	p := pipeline.DefaultParams()
	p.Rotation = req.Rotation
	if req.CropX != 0 || req.CropY != 0 {
		p.CropX, p.CropY = req.CropX, req.CropY
	}
	if req.ZoomLevel != 0 {
		p.ZoomLevel = req.ZoomLevel
	}
	if req.DitherAlgorithm != "" {
		p.DitherAlgorithm = req.DitherAlgorithm
	}
	p.EnhanceContrast = req.EnhanceContrast
	p.Sharpen = req.Sharpen
	p.AutoCropWhitespace = req.AutoCropWhitespace
	return p
}

// Import is POST /api/art/import (authenticated): fetch URL, run the
// pipeline, publish as current.
func (h *ArtHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid import body")
		return
	}
	if req.ImageURL == "" {
		respondError(w, http.StatusBadRequest, "missing imageUrl")
		return
	}

	src, err := h.Importer.Download(r.Context(), req.ImageURL)
	if err != nil {
		h.Log.Warn("art import download failed", "url", req.ImageURL, "err", err)
		respondDomainError(w, err)
		return
	}

	meta, err := h.runPipeline(w, r, req, src, false)
	if err != nil {
		return // runPipeline already responded
	}
	respondJSON(w, http.StatusOK, meta)
}

// Generate is POST /api/generate-art (authenticated, needs OPENAI_API_KEY).
func (h *ArtHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeStrict(r.Body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid generate body")
		return
	}
	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "missing prompt")
		return
	}

	src, err := h.AI.Generate(r.Context(), req.Prompt)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if req.Title == "" {
		req.Title = req.Prompt
	}
	req.Source = "ai"

	meta, err := h.runPipeline(w, r, req, src, true)
	if err != nil {
		return
	}
	respondJSON(w, http.StatusOK, meta)
}

func (h *ArtHandler) runPipeline(w http.ResponseWriter, r *http.Request, req importRequest, src []byte, aiGenerated bool) (*current.Meta, error) {
	start := time.Now()
	result, err := h.Pool.Process(r.Context(), src, req.params())
	if err != nil {
		h.Metrics.PipelineJob("error", time.Since(start))
		h.Log.Error("pipeline failed", "title", req.Title, "url", req.ImageURL, "err", err)
		respondDomainError(w, err)
		return nil, err
	}
	h.Metrics.PipelineJob("ok", time.Since(start))

	meta, err := h.Current.Write(r.Context(), current.WriteRequest{
		Title:       req.Title,
		Artist:      req.Artist,
		Source:      req.Source,
		Rotation:    req.Rotation,
		Pixels:      result.Pixels,
		Thumbnail:   result.ThumbnailPNG,
		Original:    src,
		AIGenerated: aiGenerated,
	})
	if err != nil {
		respondDomainError(w, err)
		return nil, err
	}
	return meta, nil
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
