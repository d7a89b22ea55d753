// Package ota serves firmware binaries and the version manifest the device
// gates its self-update on.
package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/framehub/artframe/internal/store"
)

var ErrNoFirmware = errors.New("no firmware binary available")

// Size gates the device enforces from the manifest.
const (
	MinFirmwareSize = 100 * 1024
	MaxFirmwareSize = 8 * 1024 * 1024
)

const binaryName = "firmware.bin"

// Manifest is the /firmware/version response.
type Manifest struct {
	Version    string    `json:"version"`
	BuildDate  string    `json:"buildDate"`
	Size       int64     `json:"size"`
	SHA256     string    `json:"sha256"`
	MinBattery float64   `json:"minBattery"`
	ForceUpdate bool     `json:"forceUpdate"`
	DeployedAt time.Time `json:"deployedAt"`
}

// firmwareInfo is the sidecar entity written at deploy time; env vars win
// over it.
type firmwareInfo struct {
	Version    string    `json:"version"`
	BuildDate  string    `json:"buildDate"`
	MinBattery float64   `json:"minBattery"`
	DeployedAt time.Time `json:"deployedAt"`
}

type forceFlag struct {
	Enabled bool `json:"enabled"`
}

// Service computes and caches the manifest. The sha256 is expensive for an
// 8 MB binary, so it is cached by mtime and additionally invalidated by a
// directory watcher.
type Service struct {
	dir     string
	store   store.Store
	log     *slog.Logger
	version string // from env, optional
	build   string

	mu         sync.Mutex
	cachedSHA  string
	cachedSize int64
	cachedMod  time.Time

	watcher *fsnotify.Watcher
}

func NewService(dir string, st store.Store, version, build string, log *slog.Logger) *Service {
	return &Service{dir: dir, store: st, version: version, build: build, log: log}
}

// Watch invalidates the digest cache when the firmware directory changes.
// Best-effort: on watcher failure the mtime check still catches swaps.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("ota: watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("ota: watch %s: %w", s.dir, err)
	}
	s.watcher = w

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(evt.Name) == binaryName {
					s.mu.Lock()
					s.cachedMod = time.Time{}
					s.mu.Unlock()
					s.log.Info("firmware binary changed, manifest cache invalidated")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("firmware watcher error", "err", err)
			}
		}
	}()
	return nil
}

func (s *Service) binaryPath() string { return filepath.Join(s.dir, binaryName) }

// digest returns (sha256, size) of the binary, recomputing only when the
// file's mtime moved.
func (s *Service) digest() (string, int64, error) {
	info, err := os.Stat(s.binaryPath())
	if os.IsNotExist(err) {
		return "", 0, ErrNoFirmware
	}
	if err != nil {
		return "", 0, fmt.Errorf("ota: stat: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if info.ModTime().Equal(s.cachedMod) && s.cachedSHA != "" {
		return s.cachedSHA, s.cachedSize, nil
	}

	f, err := os.Open(s.binaryPath())
	if err != nil {
		return "", 0, fmt.Errorf("ota: open: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("ota: hash: %w", err)
	}

	s.cachedSHA = hex.EncodeToString(h.Sum(nil))
	s.cachedSize = size
	s.cachedMod = info.ModTime()
	s.log.Debug("firmware digest recomputed", "size", size, "sha256", s.cachedSHA)
	return s.cachedSHA, s.cachedSize, nil
}

// Manifest assembles the version response from the binary digest, the
// sidecar info entity, the force flag and env overrides.
func (s *Service) Manifest(ctx context.Context) (*Manifest, error) {
	sha, size, err := s.digest()
	if err != nil {
		return nil, err
	}

	var info firmwareInfo
	if err := store.ReadJSON(ctx, s.store, store.EntityFirmwareInfo, &info); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if s.version != "" {
		info.Version = s.version
	}
	if s.build != "" {
		info.BuildDate = s.build
	}
	if info.MinBattery == 0 {
		info.MinBattery = 25 // percent; conservative default for an 8 MB flash write
	}

	var force forceFlag
	if err := store.ReadJSON(ctx, s.store, store.EntityForceOTA, &force); err != nil &&
		!errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return &Manifest{
		Version:     info.Version,
		BuildDate:   info.BuildDate,
		Size:        size,
		SHA256:      sha,
		MinBattery:  info.MinBattery,
		ForceUpdate: force.Enabled,
		DeployedAt:  info.DeployedAt,
	}, nil
}

// SetForceUpdate toggles the sidecar force flag.
func (s *Service) SetForceUpdate(ctx context.Context, enabled bool) error {
	if err := store.WriteJSON(ctx, s.store, store.EntityForceOTA, forceFlag{Enabled: enabled}); err != nil {
		return err
	}
	s.log.Info("force update flag set", "enabled", enabled)
	return nil
}

// SetInfo records deploy metadata (used by the deploy script's PUT).
func (s *Service) SetInfo(ctx context.Context, version, buildDate string, minBattery float64) error {
	return store.WriteJSON(ctx, s.store, store.EntityFirmwareInfo, firmwareInfo{
		Version:    version,
		BuildDate:  buildDate,
		MinBattery: minBattery,
		DeployedAt: time.Now().UTC(),
	})
}

// Open returns a reader over the binary plus its size for streaming with
// Content-Length.
func (s *Service) Open() (io.ReadCloser, int64, error) {
	info, err := os.Stat(s.binaryPath())
	if os.IsNotExist(err) {
		return nil, 0, ErrNoFirmware
	}
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(s.binaryPath())
	if err != nil {
		return nil, 0, err
	}
	return f, info.Size(), nil
}
