package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/framehub/artframe/internal/api"
	"github.com/framehub/artframe/internal/commands"
	"github.com/framehub/artframe/internal/current"
	"github.com/framehub/artframe/internal/devices"
	"github.com/framehub/artframe/internal/metrics"
	"github.com/framehub/artframe/internal/middleware"
	"github.com/framehub/artframe/internal/ota"
	"github.com/framehub/artframe/internal/pipeline"
	"github.com/framehub/artframe/internal/serial"
	"github.com/framehub/artframe/internal/store"
)

type env struct {
	router  http.Handler
	current *current.Service
	store   *store.FileStore
}

func newEnv(t *testing.T, apiKey string) *env {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	cur := current.NewService(st, logger)
	reg := devices.NewRegistry(st, devices.NopNotifier{}, logger)
	queue := commands.NewQueue(st, logger)
	pool := pipeline.NewPool(pipeline.NewProcessor(logger), 2)
	collector := metrics.NewCollector()
	otaSvc := ota.NewService(t.TempDir(), st, "v1", "2026-01-01", logger)
	hub := serial.NewHub(st, logger)

	router := api.NewRouter(api.Handlers{
		Device:   api.NewDeviceHandler(cur, reg, queue, collector, time.UTC, "", logger),
		Art:      api.NewArtHandler(nil, nil, nil, pool, cur, collector, logger),
		Image:    api.NewImageHandler(pool, cur, collector, logger),
		Playlist: api.NewPlaylistHandler(cur, logger),
		Settings: api.NewSettingsHandler(cur, logger),
		Firmware: api.NewFirmwareHandler(otaSvc, logger),
		Serial:   api.NewSerialHandler(hub, st, logger),
		Metrics:  collector,
		Auth:     middleware.NewAPIKeyAuth(apiKey),
	})
	return &env{router: router, current: cur, store: st}
}

func (e *env) do(t *testing.T, method, path string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func seedImage(t *testing.T, e *env, title string) *current.Meta {
	t.Helper()
	meta, err := e.current.Write(context.Background(), current.WriteRequest{
		Title:     title,
		Pixels:    make([]byte, pipeline.BaseWidth*pipeline.BaseHeight*3),
		Thumbnail: []byte("png-bytes"),
	})
	require.NoError(t, err)
	return meta
}

func TestCurrentJSON_NoImage(t *testing.T) {
	e := newEnv(t, "")
	rr := e.do(t, "GET", "/api/current.json", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, false, resp["hasImage"])
	require.Equal(t, float64(3_600_000_000), resp["sleepDuration"])
}

func TestDeviceCycle_HappyPath(t *testing.T) {
	e := newEnv(t, "")
	meta := seedImage(t, e, "X")

	// 1. Metadata poll.
	rr := e.do(t, "GET", "/api/current.json", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var cur map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cur))
	require.Equal(t, true, cur["hasImage"])
	require.Equal(t, meta.ImageID, cur["imageId"])
	require.Equal(t, "X", cur["title"])
	require.Equal(t, float64(0), cur["rotation"])
	require.Equal(t, float64(3_600_000_000), cur["sleepDuration"])

	// 2. Pixel buffer.
	rr = e.do(t, "GET", "/api/image.bin", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))
	require.Equal(t, fmt.Sprintf("%d", 1200*1600*3), rr.Header().Get("Content-Length"))
	require.Equal(t, 1200*1600*3, rr.Body.Len())

	// 3. First status post: no prior voltage, no operation sample.
	body := []byte(`{"deviceId":"d1","status":{"batteryVoltage":4.0,"isCharging":false,"signalStrength":-45,"firmwareVersion":"v2"}}`)
	rr = e.do(t, "POST", "/api/device-status", body, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"success":true`)

	rr = e.do(t, "GET", "/api/devices/d1", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var dev devices.Device
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dev))
	require.InDelta(t, 80, dev.Percent, 0.1)
	require.Empty(t, dev.OperationSamples)

	// 4. Second post with a display drop.
	body = []byte(`{"deviceId":"d1","status":{"batteryVoltage":3.95,"isCharging":false,"status":"display_updating"}}`)
	rr = e.do(t, "POST", "/api/device-status", body, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, "GET", "/api/devices/d1", nil, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &dev))
	require.Len(t, dev.OperationSamples, 1)
	require.Equal(t, devices.OpDisplay, dev.OperationSamples[0].Type)
	require.InDelta(t, 0.05, dev.OperationSamples[0].Drop, 0.0001)
	require.Equal(t, 1, dev.UsageStats.TotalDisplayUpdates)
}

func TestDeviceStatus_UnknownFieldRejected(t *testing.T) {
	e := newEnv(t, "")
	body := []byte(`{"deviceId":"d1","status":{},"typoField":1}`)
	rr := e.do(t, "POST", "/api/device-status", body, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestImageBin_NotFoundBeforeFirstImage(t *testing.T) {
	e := newEnv(t, "")
	rr := e.do(t, "GET", "/api/image.bin", nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCommands_EnqueueRequiresAuth(t *testing.T) {
	e := newEnv(t, "secret")

	body := []byte(`{"command":"stay_awake","duration_ms":30000}`)
	rr := e.do(t, "POST", "/api/device-command/d1", body, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = e.do(t, "POST", "/api/device-command/d1", body, map[string]string{"X-Api-Key": "secret"})
	require.Equal(t, http.StatusOK, rr.Code)

	// Device drains without auth.
	rr = e.do(t, "GET", "/api/commands/d1", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var drained struct {
		Commands []commands.Command `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &drained))
	require.Len(t, drained.Commands, 1)
	require.Equal(t, "stay_awake", drained.Commands[0].Command)

	// Second drain is empty.
	rr = e.do(t, "GET", "/api/commands/d1", nil, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &drained))
	require.Empty(t, drained.Commands)
}

func TestCommands_UnknownNameRejected(t *testing.T) {
	e := newEnv(t, "")
	rr := e.do(t, "POST", "/api/device-command/d1", []byte(`{"command":"reboot"}`), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPlaylist_AdvanceOnPoll(t *testing.T) {
	e := newEnv(t, "")
	a := seedImage(t, e, "A")
	b := seedImage(t, e, "B")
	c := seedImage(t, e, "C")

	pl := map[string]any{
		"active":      true,
		"mode":        "sequential",
		"interval_us": 3_600_000_000,
		"images":      []string{a.ImageID, b.ImageID, c.ImageID},
	}
	body, _ := json.Marshal(pl)
	rr := e.do(t, "POST", "/api/playlist", body, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// Rewind lastUpdate past the interval so the next poll advances.
	err := e.store.Update(context.Background(), store.EntityPlaylist, func(cur []byte) ([]byte, error) {
		var p current.Playlist
		if err := json.Unmarshal(cur, &p); err != nil {
			return nil, err
		}
		p.LastUpdate = time.Now().Add(-3700 * time.Second)
		return json.Marshal(p)
	})
	require.NoError(t, err)

	rr = e.do(t, "GET", "/api/current.json", nil, nil)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, b.ImageID, resp["imageId"], "sequential advance from index 0 to 1")

	// Immediate second poll: no second advance.
	rr = e.do(t, "GET", "/api/current.json", nil, nil)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, b.ImageID, resp["imageId"])
}

func TestPlaylist_ShortIntervalRejected(t *testing.T) {
	e := newEnv(t, "")
	body := []byte(`{"active":false,"mode":"sequential","interval_us":1000000,"images":[]}`)
	rr := e.do(t, "POST", "/api/playlist", body, nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSettings_RoundTrip(t *testing.T) {
	e := newEnv(t, "")

	rr := e.do(t, "GET", "/api/settings", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := []byte(`{
		"defaultSleepDuration_us": 1800000000,
		"devMode": false,
		"defaultOrientation": "landscape",
		"nightSleepEnabled": true,
		"nightSleepStartHour": 23,
		"nightSleepEndHour": 7
	}`)
	rr = e.do(t, "PUT", "/api/settings", body, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, "GET", "/api/settings", nil, nil)
	var st current.Settings
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	require.Equal(t, int64(1_800_000_000), st.DefaultSleepDurationUS)
	require.Equal(t, "landscape", st.DefaultOrientation)
}

func TestHistory_ListAndThumbnail(t *testing.T) {
	e := newEnv(t, "")
	meta := seedImage(t, e, "X")

	rr := e.do(t, "GET", "/api/history", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var hist struct {
		History []current.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hist))
	require.Len(t, hist.History, 1)
	require.Equal(t, meta.ImageID, hist.History[0].ImageID)

	rr = e.do(t, "GET", "/api/history/"+meta.ImageID+"/thumbnail", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "image/png", rr.Header().Get("Content-Type"))
}

func TestFirmware_VersionAndForce(t *testing.T) {
	e := newEnv(t, "")
	// No binary in the temp firmware dir → 404.
	rr := e.do(t, "GET", "/firmware/version", nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = e.do(t, "POST", "/firmware/force", []byte(`{"enabled":true}`), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"forceUpdate":true`)
}

func TestLogsIngestion(t *testing.T) {
	e := newEnv(t, "")
	rr := e.do(t, "POST", "/api/logs", []byte(`{"deviceId":"d1","level":"info","message":"boot ok"}`), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, "GET", "/api/logs", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "boot ok")
}

func TestSerialFrames(t *testing.T) {
	e := newEnv(t, "")
	rr := e.do(t, "POST", "/api/serial-stream", []byte(`{"deviceId":"d1","line":"wifi connected"}`), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = e.do(t, "GET", "/api/serial/d1", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "wifi connected")
}

func TestMetricsExposition(t *testing.T) {
	e := newEnv(t, "")
	e.do(t, "POST", "/api/device-status",
		[]byte(`{"deviceId":"d1","status":{"batteryVoltage":4.0}}`), nil)

	rr := e.do(t, "GET", "/api/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "frame_device_battery_volts")
}
