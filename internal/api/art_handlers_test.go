package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/framehub/artframe/internal/api"
	"github.com/framehub/artframe/internal/art"
	"github.com/framehub/artframe/internal/art/adapters"
	"github.com/framehub/artframe/internal/current"
	"github.com/framehub/artframe/internal/metrics"
	"github.com/framehub/artframe/internal/middleware"
	"github.com/framehub/artframe/internal/pipeline"
	"github.com/framehub/artframe/internal/store"
)

type stubSource struct {
	name  string
	works []adapters.Artwork
	delay time.Duration
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Search(ctx context.Context, q string, limit, offset int) ([]adapters.Artwork, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.works, nil
}

func stubWork(source, id string) adapters.Artwork {
	return adapters.Artwork{
		ID:       source + "-" + id,
		Title:    "Work " + id,
		ImageURL: "https://img.example/" + source + "/" + id,
		Source:   source,
	}
}

func newArtEnv(t *testing.T, sources ...adapters.Adapter) (*env, *art.Federator) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	fed := art.NewFederator(sources, art.NewMemoryCache(10, time.Minute), art.FederatorConfig{
		AdapterTimeout: 150 * time.Millisecond,
		OverallTimeout: 300 * time.Millisecond,
	}, logger)
	cur := current.NewService(st, logger)
	pool := pipeline.NewPool(pipeline.NewProcessor(logger), 2)
	collector := metrics.NewCollector()

	client := &http.Client{Timeout: 5 * time.Second}
	handler := api.NewArtHandler(fed, art.NewImporter(client), art.NewAIGenerator(client, ""),
		pool, cur, collector, logger)

	router := api.NewRouter(api.Handlers{
		Device:   api.NewDeviceHandler(cur, nil, nil, collector, time.UTC, "", logger),
		Art:      handler,
		Image:    api.NewImageHandler(pool, cur, collector, logger),
		Playlist: api.NewPlaylistHandler(cur, logger),
		Settings: api.NewSettingsHandler(cur, logger),
		Firmware: api.NewFirmwareHandler(nil, logger),
		Serial:   nil,
		Metrics:  collector,
		Auth:     middleware.NewAPIKeyAuth(""),
	})
	return &env{router: router, current: cur, store: st}, fed
}

func TestSearch_PartialFailureEndToEnd(t *testing.T) {
	met := &stubSource{name: "met", works: []adapters.Artwork{
		stubWork("met", "1"), stubWork("met", "2"), stubWork("met", "3"),
	}}
	artic := &stubSource{name: "artic", works: []adapters.Artwork{
		stubWork("artic", "4"), stubWork("artic", "5"), stubWork("artic", "6"),
	}}
	cleveland := &stubSource{name: "cleveland", delay: time.Second}

	e, _ := newArtEnv(t, met, artic, cleveland)

	rr := e.do(t, "GET", "/api/art/search?q=water&limit=5&offset=0", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var res art.SearchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Len(t, res.Results, 5)
	require.Equal(t, "ok", res.Sources["met"].Status)
	require.Equal(t, 3, res.Sources["met"].Count)
	require.Equal(t, "ok", res.Sources["artic"].Status)
	require.Equal(t, "error", res.Sources["cleveland"].Status)
	require.Equal(t, 0, res.Sources["cleveland"].Count)
}

func TestSearch_BadParams(t *testing.T) {
	e, _ := newArtEnv(t, &stubSource{name: "met"})

	require.Equal(t, http.StatusBadRequest, e.do(t, "GET", "/api/art/search", nil, nil).Code)
	require.Equal(t, http.StatusBadRequest, e.do(t, "GET", "/api/art/search?q=x&limit=0", nil, nil).Code)
	require.Equal(t, http.StatusBadRequest, e.do(t, "GET", "/api/art/search?q=x&offset=-1", nil, nil).Code)
	require.Equal(t, http.StatusBadRequest, e.do(t, "GET", "/api/art/search?q=x&limit=bogus", nil, nil).Code)
}

func sourcePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 300, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImport_FetchesAndPublishes(t *testing.T) {
	src := sourcePNG(t)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(src)
	}))
	defer origin.Close()

	e, _ := newArtEnv(t, &stubSource{name: "met"})

	body, _ := json.Marshal(map[string]any{
		"imageUrl": origin.URL + "/art.png",
		"title":    "Imported",
		"artist":   "Tester",
		"source":   "met",
	})
	rr := e.do(t, "POST", "/api/art/import", body, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var meta current.Meta
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &meta))
	require.Equal(t, "Imported", meta.Title)

	pixels, _, err := e.current.Pixels(context.Background())
	require.NoError(t, err)
	require.Len(t, pixels, pipeline.BaseWidth*pipeline.BaseHeight*3)
}

func TestImport_MissingURL(t *testing.T) {
	e, _ := newArtEnv(t, &stubSource{name: "met"})
	rr := e.do(t, "POST", "/api/art/import", []byte(`{"title":"x"}`), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImport_UpstreamFailure(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer origin.Close()

	e, _ := newArtEnv(t, &stubSource{name: "met"})
	body, _ := json.Marshal(map[string]any{"imageUrl": origin.URL + "/missing.png"})
	rr := e.do(t, "POST", "/api/art/import", body, nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGenerate_DisabledWithoutKey(t *testing.T) {
	e, _ := newArtEnv(t, &stubSource{name: "met"})
	rr := e.do(t, "POST", "/api/generate-art", []byte(`{"prompt":"a quiet harbor"}`), nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestUploadThenApply(t *testing.T) {
	e, _ := newArtEnv(t, &stubSource{name: "met"})

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, "image", "art.png", sourcePNG(t), map[string]string{
		"title":    "Uploaded",
		"rotation": "0",
	})

	req := httptest.NewRequest("POST", "/api/upload", &buf)
	req.Header.Set("Content-Type", mw)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var entry current.ArchiveEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entry))
	require.Equal(t, "Uploaded", entry.Title)

	// Upload alone does not swap the current image.
	_, err := e.current.Snapshot(context.Background())
	require.ErrorIs(t, err, current.ErrNoImage)

	// Apply makes it current.
	rr2 := e.do(t, "POST", "/api/images/"+entry.ImageID+"/apply", nil, nil)
	require.Equal(t, http.StatusOK, rr2.Code)

	meta, err := e.current.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, entry.ImageID, meta.ImageID)
}

func TestHistoryLoad_ReprocessesOriginal(t *testing.T) {
	src := sourcePNG(t)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(src)
	}))
	defer origin.Close()

	e, _ := newArtEnv(t, &stubSource{name: "met"})
	body, _ := json.Marshal(map[string]any{"imageUrl": origin.URL, "title": "Reload Me"})
	rr := e.do(t, "POST", "/api/art/import", body, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var meta current.Meta
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &meta))

	// Re-quantize with different parameters: the image keeps its id, only
	// the rendered buffer and geometry change.
	rr = e.do(t, "POST", "/api/history/"+meta.ImageID+"/load",
		[]byte(`{"rotation":90,"ditherAlgorithm":"atkinson"}`), nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var reloaded current.Meta
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reloaded))
	require.Equal(t, meta.ImageID, reloaded.ImageID, "load must not mint a new id")
	require.Equal(t, "Reload Me", reloaded.Title)
	require.Equal(t, 90, reloaded.Rotation)
	require.Equal(t, pipeline.BaseHeight, reloaded.Width)

	// The device's next metadata poll reports the loaded id.
	snap, err := e.current.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, meta.ImageID, snap.ImageID)

	// No near-duplicate archive/history rows from the re-dither.
	hist, err := e.current.History(context.Background())
	require.NoError(t, err)
	require.Len(t, hist, 1)

	// Unknown image id → 404.
	rr = e.do(t, "POST", "/api/history/nope/load", []byte(`{}`), nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

// newMultipart writes a form with one file part plus fields and returns the
// content type.
func newMultipart(t *testing.T, buf *bytes.Buffer, field, filename string, data []byte, fields map[string]string) string {
	t.Helper()
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return w.FormDataContentType()
}
