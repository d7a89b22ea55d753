package current

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framehub/artframe/internal/pipeline"
	"github.com/framehub/artframe/internal/store"
)

func newImageID() string { return uuid.NewString() }

// Service is the single writer of the "now showing" state. All writers
// (upload, import, AI generation, history load, playlist advance) funnel
// through the same mutex; readers get a consistent snapshot.
type Service struct {
	store store.Store
	log   *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

func NewService(st store.Store, log *slog.Logger) *Service {
	return &Service{store: st, log: log, now: time.Now}
}

// WriteRequest is one atomic current-image replacement.
type WriteRequest struct {
	Title       string
	Artist      string
	Source      string
	Rotation    int
	Pixels      []byte
	Thumbnail   []byte
	Original    []byte // retained for later re-dithers; may be nil
	AIGenerated bool
	SleepUS     int64 // 0 means "use settings default at poll time"
}

// Write stores a new current image: blobs first, then the archive/history
// append with joint FIFO eviction, then the current metadata. Returns the new
// image's metadata.
func (s *Service) Write(ctx context.Context, req WriteRequest) (*Meta, error) {
	w, h := pipeline.TargetDims(req.Rotation)
	if len(req.Pixels) != w*h*3 {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d", ErrBadBuffer, len(req.Pixels), w, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta := Meta{
		ImageID:         newImageID(),
		Title:           req.Title,
		Artist:          req.Artist,
		Source:          req.Source,
		Rotation:        req.Rotation,
		Width:           w,
		Height:          h,
		Timestamp:       s.now().UTC(),
		SleepDurationUS: req.SleepUS,
		AIGenerated:     req.AIGenerated,
	}

	if err := s.store.WriteBlob(ctx, pixelsKey(meta.ImageID), req.Pixels); err != nil {
		return nil, err
	}
	if len(req.Thumbnail) > 0 {
		if err := s.store.WriteBlob(ctx, thumbnailKey(meta.ImageID), req.Thumbnail); err != nil {
			return nil, err
		}
	}
	if len(req.Original) > 0 {
		if err := s.store.WriteBlob(ctx, originalKey(meta.ImageID), req.Original); err != nil {
			return nil, err
		}
	}

	if err := s.appendArchive(ctx, meta, len(req.Original) > 0); err != nil {
		return nil, err
	}
	if err := store.WriteJSON(ctx, s.store, store.EntityCurrent, meta); err != nil {
		return nil, err
	}

	s.log.Info("current image replaced",
		"imageId", meta.ImageID, "title", meta.Title, "source", meta.Source)
	return &meta, nil
}

// Archive appends an image without making it current (the upload path: the
// frame keeps showing what it shows until the UI applies).
func (s *Service) Archive(ctx context.Context, req WriteRequest) (*ArchiveEntry, error) {
	w, h := pipeline.TargetDims(req.Rotation)
	if len(req.Pixels) != w*h*3 {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d", ErrBadBuffer, len(req.Pixels), w, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta := Meta{
		ImageID:     newImageID(),
		Title:       req.Title,
		Artist:      req.Artist,
		Source:      req.Source,
		Rotation:    req.Rotation,
		Width:       w,
		Height:      h,
		Timestamp:   s.now().UTC(),
		AIGenerated: req.AIGenerated,
	}
	if err := s.store.WriteBlob(ctx, pixelsKey(meta.ImageID), req.Pixels); err != nil {
		return nil, err
	}
	if len(req.Thumbnail) > 0 {
		if err := s.store.WriteBlob(ctx, thumbnailKey(meta.ImageID), req.Thumbnail); err != nil {
			return nil, err
		}
	}
	if len(req.Original) > 0 {
		if err := s.store.WriteBlob(ctx, originalKey(meta.ImageID), req.Original); err != nil {
			return nil, err
		}
	}
	if err := s.appendArchive(ctx, meta, len(req.Original) > 0); err != nil {
		return nil, err
	}
	entry := archiveEntryFromMeta(meta, len(req.Original) > 0)
	return &entry, nil
}

// appendArchive adds the archive + history rows and evicts the oldest pair
// (and its blobs) beyond the cap. Caller holds s.mu.
func (s *Service) appendArchive(ctx context.Context, meta Meta, hasOriginal bool) error {
	var evicted []string

	err := s.store.Update(ctx, store.EntityImages, func(cur []byte) ([]byte, error) {
		var entries []ArchiveEntry
		if cur != nil {
			if err := json.Unmarshal(cur, &entries); err != nil {
				return nil, fmt.Errorf("decode archive: %w", err)
			}
		}
		entries = append(entries, archiveEntryFromMeta(meta, hasOriginal))
		for len(entries) > maxArchived {
			evicted = append(evicted, entries[0].ImageID)
			entries = entries[1:]
		}
		return json.Marshal(entries)
	})
	if err != nil {
		return err
	}

	err = s.store.Update(ctx, store.EntityHistory, func(cur []byte) ([]byte, error) {
		var entries []HistoryEntry
		if cur != nil {
			if err := json.Unmarshal(cur, &entries); err != nil {
				return nil, fmt.Errorf("decode history: %w", err)
			}
		}
		entries = append(entries, HistoryEntry{
			ImageID:     meta.ImageID,
			Title:       meta.Title,
			Artist:      meta.Artist,
			Source:      meta.Source,
			Timestamp:   meta.Timestamp,
			AIGenerated: meta.AIGenerated,
		})
		keep := entries[:0]
		evictedSet := map[string]struct{}{}
		for _, id := range evicted {
			evictedSet[id] = struct{}{}
		}
		for _, e := range entries {
			if _, gone := evictedSet[e.ImageID]; !gone {
				keep = append(keep, e)
			}
		}
		for len(keep) > maxArchived {
			keep = keep[1:]
		}
		return json.Marshal(keep)
	})
	if err != nil {
		return err
	}

	for _, id := range evicted {
		for _, key := range []string{pixelsKey(id), originalKey(id), thumbnailKey(id)} {
			if err := s.store.DeleteBlob(ctx, key); err != nil {
				s.log.Warn("evicted blob delete failed", "key", key, "err", err)
			}
		}
	}
	return nil
}

func archiveEntryFromMeta(meta Meta, hasOriginal bool) ArchiveEntry {
	return ArchiveEntry{
		ImageID:     meta.ImageID,
		Title:       meta.Title,
		Artist:      meta.Artist,
		Source:      meta.Source,
		Rotation:    meta.Rotation,
		Width:       meta.Width,
		Height:      meta.Height,
		Timestamp:   meta.Timestamp,
		AIGenerated: meta.AIGenerated,
		HasOriginal: hasOriginal,
	}
}

// ReplaceCurrent re-renders an archived image under its existing id: the
// pixel and thumbnail blobs are overwritten, the archive row keeps its id
// with refreshed geometry, and the image is republished as current. No new
// archive or history row is appended; a re-dither is still the same picture,
// and the device's next metadata poll must report the id it loaded.
func (s *Service) ReplaceCurrent(ctx context.Context, imageID string, rotation int, pixels, thumbnail []byte, sleepUS int64) (*Meta, error) {
	w, h := pipeline.TargetDims(rotation)
	if len(pixels) != w*h*3 {
		return nil, fmt.Errorf("%w: got %d bytes for %dx%d", ErrBadBuffer, len(pixels), w, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.ArchiveEntry(ctx, imageID)
	if err != nil {
		return nil, err
	}

	if err := s.store.WriteBlob(ctx, pixelsKey(imageID), pixels); err != nil {
		return nil, err
	}
	if len(thumbnail) > 0 {
		if err := s.store.WriteBlob(ctx, thumbnailKey(imageID), thumbnail); err != nil {
			return nil, err
		}
	}

	err = s.store.Update(ctx, store.EntityImages, func(cur []byte) ([]byte, error) {
		var entries []ArchiveEntry
		if cur != nil {
			if err := json.Unmarshal(cur, &entries); err != nil {
				return nil, fmt.Errorf("decode archive: %w", err)
			}
		}
		for i := range entries {
			if entries[i].ImageID == imageID {
				entries[i].Rotation = rotation
				entries[i].Width = w
				entries[i].Height = h
			}
		}
		return json.Marshal(entries)
	})
	if err != nil {
		return nil, err
	}

	meta := Meta{
		ImageID:         imageID,
		Title:           entry.Title,
		Artist:          entry.Artist,
		Source:          entry.Source,
		Rotation:        rotation,
		Width:           w,
		Height:          h,
		Timestamp:       s.now().UTC(),
		SleepDurationUS: sleepUS,
		AIGenerated:     entry.AIGenerated,
	}
	if err := store.WriteJSON(ctx, s.store, store.EntityCurrent, meta); err != nil {
		return nil, err
	}
	s.log.Info("current image re-rendered",
		"imageId", imageID, "rotation", rotation)
	return &meta, nil
}

// Snapshot returns the current metadata, advancing the playlist first when
// it is due. This is the device's /api/current.json read path.
func (s *Service) Snapshot(ctx context.Context) (*Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta, advanced, err := s.maybeAdvanceLocked(ctx); err != nil {
		s.log.Warn("playlist advance failed", "err", err)
	} else if advanced {
		return meta, nil
	}

	var meta Meta
	err := store.ReadJSON(ctx, s.store, store.EntityCurrent, &meta)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoImage
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// Pixels returns the device buffer for the current image.
func (s *Service) Pixels(ctx context.Context) ([]byte, *Meta, error) {
	var meta Meta
	err := store.ReadJSON(ctx, s.store, store.EntityCurrent, &meta)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNoImage
	}
	if err != nil {
		return nil, nil, err
	}
	pixels, err := s.store.ReadBlob(ctx, pixelsKey(meta.ImageID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNoImage
	}
	if err != nil {
		return nil, nil, err
	}
	return pixels, &meta, nil
}

// History returns newest-first entries for the UI.
func (s *Service) History(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := store.ReadJSON(ctx, s.store, store.EntityHistory, &entries)
	if errors.Is(err, store.ErrNotFound) {
		return []HistoryEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out, nil
}

// ArchiveEntry looks one image up.
func (s *Service) ArchiveEntry(ctx context.Context, imageID string) (*ArchiveEntry, error) {
	entries, err := s.archiveEntries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ImageID == imageID {
			return &entries[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) archiveEntries(ctx context.Context) ([]ArchiveEntry, error) {
	var entries []ArchiveEntry
	err := store.ReadJSON(ctx, s.store, store.EntityImages, &entries)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Original returns the retained source bytes for re-dithering.
func (s *Service) Original(ctx context.Context, imageID string) ([]byte, error) {
	entry, err := s.ArchiveEntry(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if !entry.HasOriginal {
		return nil, ErrNoOriginal
	}
	raw, err := s.store.ReadBlob(ctx, originalKey(imageID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoOriginal
	}
	return raw, err
}

// Thumbnail returns the stored PNG thumbnail for an image.
func (s *Service) Thumbnail(ctx context.Context, imageID string) ([]byte, error) {
	raw, err := s.store.ReadBlob(ctx, thumbnailKey(imageID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return raw, err
}

// SetCurrentFromArchive republishes an archived image as current without
// appending a new history row. Used by the upload "apply" path and the
// playlist advance.
func (s *Service) SetCurrentFromArchive(ctx context.Context, imageID string, sleepUS int64) (*Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setCurrentFromArchiveLocked(ctx, imageID, sleepUS)
}

func (s *Service) setCurrentFromArchiveLocked(ctx context.Context, imageID string, sleepUS int64) (*Meta, error) {
	entry, err := s.ArchiveEntry(ctx, imageID)
	if err != nil {
		return nil, err
	}
	meta := Meta{
		ImageID:         entry.ImageID,
		Title:           entry.Title,
		Artist:          entry.Artist,
		Source:          entry.Source,
		Rotation:        entry.Rotation,
		Width:           entry.Width,
		Height:          entry.Height,
		Timestamp:       s.now().UTC(),
		SleepDurationUS: sleepUS,
		AIGenerated:     entry.AIGenerated,
	}
	if err := store.WriteJSON(ctx, s.store, store.EntityCurrent, meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// maybeAdvanceLocked performs the lazy playlist step. Caller holds s.mu, so
// two polls racing an interval boundary cannot both advance.
func (s *Service) maybeAdvanceLocked(ctx context.Context) (*Meta, bool, error) {
	var pl Playlist
	err := store.ReadJSON(ctx, s.store, store.EntityPlaylist, &pl)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !pl.Active || len(pl.Images) == 0 {
		return nil, false, nil
	}

	// The device firmware compares elapsed milliseconds against
	// interval_us/1000; keep that literal for compatibility.
	elapsedMS := s.now().Sub(pl.LastUpdate).Milliseconds()
	if elapsedMS < pl.IntervalUS/1000 {
		return nil, false, nil
	}

	switch pl.Mode {
	case ModeRandom:
		pl.CurrentIndex = rand.IntN(len(pl.Images))
	default:
		pl.CurrentIndex = (pl.CurrentIndex + 1) % len(pl.Images)
	}

	meta, err := s.setCurrentFromArchiveLocked(ctx, pl.Images[pl.CurrentIndex], pl.IntervalUS)
	if err != nil {
		return nil, false, err
	}

	pl.LastUpdate = s.now().UTC()
	if err := store.WriteJSON(ctx, s.store, store.EntityPlaylist, pl); err != nil {
		return nil, false, err
	}
	s.log.Info("playlist advanced",
		"imageId", meta.ImageID, "index", pl.CurrentIndex, "mode", pl.Mode)
	return meta, true, nil
}
