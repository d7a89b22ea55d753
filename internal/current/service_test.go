package current

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/framehub/artframe/internal/pipeline"
	"github.com/framehub/artframe/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewService(st, slog.New(slog.DiscardHandler)), st
}

func portraitPixels() []byte {
	return make([]byte, pipeline.BaseWidth*pipeline.BaseHeight*3)
}

func TestWrite_SetsCurrentAndHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	meta, err := svc.Write(ctx, WriteRequest{
		Title:     "Water Lilies",
		Artist:    "Claude Monet",
		Source:    "met",
		Pixels:    portraitPixels(),
		Thumbnail: []byte("png"),
		Original:  []byte("jpeg-bytes"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, meta.ImageID)
	require.Equal(t, pipeline.BaseWidth, meta.Width)
	require.Equal(t, pipeline.BaseHeight, meta.Height)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, meta.ImageID, snap.ImageID)

	hist, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "Water Lilies", hist[0].Title)

	pixels, m, err := svc.Pixels(ctx)
	require.NoError(t, err)
	require.Len(t, pixels, pipeline.BaseWidth*pipeline.BaseHeight*3)
	require.Equal(t, meta.ImageID, m.ImageID)

	orig, err := svc.Original(ctx, meta.ImageID)
	require.NoError(t, err)
	require.Equal(t, []byte("jpeg-bytes"), orig)
}

func TestWrite_RejectsWrongBufferLength(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Write(context.Background(), WriteRequest{
		Title:  "bad",
		Pixels: make([]byte, 100),
	})
	require.ErrorIs(t, err, ErrBadBuffer)
}

func TestWrite_LandscapeBufferLength(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Write(context.Background(), WriteRequest{
		Title:    "sideways",
		Rotation: 90,
		Pixels:   portraitPixels(), // same byte count, swapped dims
	})
	require.NoError(t, err)
}

func TestSnapshot_NoImage(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrNoImage)
}

func TestArchiveEviction_RemovesHistoryAndBlobsTogether(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	var firstID string
	for i := 0; i < maxArchived+3; i++ {
		meta, err := svc.Write(ctx, WriteRequest{
			Title:     fmt.Sprintf("img-%d", i),
			Pixels:    portraitPixels(),
			Thumbnail: []byte("png"),
		})
		require.NoError(t, err)
		if i == 0 {
			firstID = meta.ImageID
		}
	}

	entries, err := svc.archiveEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, maxArchived)

	hist, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, maxArchived)

	// Both rows and the blob for the evicted image are gone.
	_, err = svc.ArchiveEntry(ctx, firstID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = st.ReadBlob(ctx, "images/"+firstID+".rgb")
	require.ErrorIs(t, err, store.ErrNotFound)
	for _, h := range hist {
		require.NotEqual(t, firstID, h.ImageID)
	}
}

func TestReplaceCurrent_KeepsIdentity(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	meta, err := svc.Write(ctx, WriteRequest{
		Title:     "Reworked",
		Pixels:    portraitPixels(),
		Thumbnail: []byte("thumb-v1"),
		Original:  []byte("orig"),
	})
	require.NoError(t, err)

	// Re-render rotated; same byte count, swapped dims.
	got, err := svc.ReplaceCurrent(ctx, meta.ImageID, 90, portraitPixels(), []byte("thumb-v2"), 0)
	require.NoError(t, err)
	require.Equal(t, meta.ImageID, got.ImageID)
	require.Equal(t, 90, got.Rotation)
	require.Equal(t, pipeline.BaseHeight, got.Width)

	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, meta.ImageID, snap.ImageID)

	// No extra archive or history rows.
	entries, err := svc.archiveEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 90, entries[0].Rotation)

	hist, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	// Thumbnail blob was overwritten in place.
	thumb, err := st.ReadBlob(ctx, "images/"+meta.ImageID+".thumb.png")
	require.NoError(t, err)
	require.Equal(t, []byte("thumb-v2"), thumb)
}

func TestReplaceCurrent_UnknownImage(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.ReplaceCurrent(context.Background(), "missing", 0, portraitPixels(), nil, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHistory_NewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := svc.Write(ctx, WriteRequest{
			Title:  fmt.Sprintf("img-%d", i),
			Pixels: portraitPixels(),
		})
		require.NoError(t, err)
	}
	hist, err := svc.History(ctx)
	require.NoError(t, err)
	require.Equal(t, "img-2", hist[0].Title)
	require.Equal(t, "img-0", hist[2].Title)
}

func TestPlaylist_AdvancesOnDueRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	var ids []string
	for i := 0; i < 3; i++ {
		meta, err := svc.Write(ctx, WriteRequest{
			Title:  fmt.Sprintf("img-%d", i),
			Pixels: portraitPixels(),
		})
		require.NoError(t, err)
		ids = append(ids, meta.ImageID)
	}

	_, err := svc.SavePlaylist(ctx, Playlist{
		Active:     true,
		Mode:       ModeSequential,
		IntervalUS: 3_600_000_000, // 1 h
		Images:     ids,
		LastUpdate: base,
	})
	require.NoError(t, err)

	// Within the interval: no advance; current stays the last write (img-2).
	snap, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, ids[2], snap.ImageID)

	// Past the boundary: first poll advances to index 1.
	svc.now = func() time.Time { return base.Add(3700 * time.Second) }
	snap, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, ids[1], snap.ImageID)
	require.Equal(t, int64(3_600_000_000), snap.SleepDurationUS)

	pl, err := svc.GetPlaylist(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pl.CurrentIndex)
	require.Equal(t, base.Add(3700*time.Second), pl.LastUpdate)

	// Second poll inside the fresh interval: same image, no advance.
	svc.now = func() time.Time { return base.Add(3701 * time.Second) }
	snap, err = svc.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, ids[1], snap.ImageID)
}

func TestPlaylist_LastUpdateMonotonic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := base
	svc.now = func() time.Time { return now }

	meta, err := svc.Write(ctx, WriteRequest{Title: "a", Pixels: portraitPixels()})
	require.NoError(t, err)
	_, err = svc.SavePlaylist(ctx, Playlist{
		Active: true, Mode: ModeSequential,
		IntervalUS: MinPlaylistIntervalUS,
		Images:     []string{meta.ImageID},
		LastUpdate: base,
	})
	require.NoError(t, err)

	prev := base
	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Minute)
		_, err := svc.Snapshot(ctx)
		require.NoError(t, err)
		pl, err := svc.GetPlaylist(ctx)
		require.NoError(t, err)
		require.True(t, pl.LastUpdate.After(prev) || pl.LastUpdate.Equal(prev))
		require.GreaterOrEqual(t, pl.CurrentIndex, 0)
		require.Less(t, pl.CurrentIndex, len(pl.Images))
		prev = pl.LastUpdate
	}
}

func TestSavePlaylist_RejectsShortInterval(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SavePlaylist(context.Background(), Playlist{
		Mode:       ModeSequential,
		IntervalUS: MinPlaylistIntervalUS - 1,
	})
	require.ErrorIs(t, err, ErrBadInterval)
}

func TestSavePlaylist_RejectsUnknownImage(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SavePlaylist(context.Background(), Playlist{
		Mode:       ModeSequential,
		IntervalUS: MinPlaylistIntervalUS,
		Images:     []string{"no-such-image"},
	})
	require.ErrorIs(t, err, ErrBadPlaylist)
}

func TestSavePlaylist_DeduplicatesImages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	meta, err := svc.Write(ctx, WriteRequest{Title: "a", Pixels: portraitPixels()})
	require.NoError(t, err)

	pl, err := svc.SavePlaylist(ctx, Playlist{
		Mode:       ModeSequential,
		IntervalUS: MinPlaylistIntervalUS,
		Images:     []string{meta.ImageID, meta.ImageID},
	})
	require.NoError(t, err)
	require.Len(t, pl.Images, 1)
}

func TestSettings_Defaults(t *testing.T) {
	svc, _ := newTestService(t)
	st, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3_600_000_000), st.DefaultSleepDurationUS)
	require.Equal(t, OrientationPortrait, st.DefaultOrientation)
}

func TestSaveSettings_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SaveSettings(ctx, Settings{DefaultSleepDurationUS: 0, DefaultOrientation: OrientationPortrait})
	require.ErrorIs(t, err, ErrBadSettings)

	_, err = svc.SaveSettings(ctx, Settings{DefaultSleepDurationUS: 1, DefaultOrientation: "upside-down"})
	require.ErrorIs(t, err, ErrBadSettings)

	_, err = svc.SaveSettings(ctx, Settings{
		DefaultSleepDurationUS: 1, DefaultOrientation: OrientationPortrait, NightSleepStartHour: 24,
	})
	require.ErrorIs(t, err, ErrBadSettings)
}

func TestSleepDuration_NightWindowWrapsMidnight(t *testing.T) {
	st := Settings{
		DefaultSleepDurationUS: 3_600_000_000,
		NightSleepEnabled:      true,
		NightSleepStartHour:    22,
		NightSleepEndHour:      6,
	}

	day := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 1, hour, minute, 0, 0, time.UTC)
	}

	// Outside the window: default cadence.
	require.Equal(t, int64(3_600_000_000), SleepDuration(day(12, 0), st, 0))
	require.Equal(t, int64(3_600_000_000), SleepDuration(day(21, 59), st, 0))

	// 23:00 → 7 h until 06:00.
	require.Equal(t, (7 * time.Hour).Microseconds(), SleepDuration(day(23, 0), st, 0))
	// 22:00 → 8 h.
	require.Equal(t, (8 * time.Hour).Microseconds(), SleepDuration(day(22, 0), st, 0))
	// 01:30 → 4.5 h.
	require.Equal(t, (4*time.Hour + 30*time.Minute).Microseconds(), SleepDuration(day(1, 30), st, 0))
	// 05:59 → 1 min.
	require.Equal(t, time.Minute.Microseconds(), SleepDuration(day(5, 59), st, 0))
	// 06:00 is outside.
	require.Equal(t, int64(3_600_000_000), SleepDuration(day(6, 0), st, 0))
}

func TestSleepDuration_ImageOverride(t *testing.T) {
	st := Settings{DefaultSleepDurationUS: 3_600_000_000}
	require.Equal(t, int64(100), SleepDuration(time.Now(), st, 100))
}
