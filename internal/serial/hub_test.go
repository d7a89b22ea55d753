package serial

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/framehub/artframe/internal/store"
)

func newTestHub(t *testing.T) (*Hub, *store.FileStore) {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewHub(st, slog.New(slog.DiscardHandler)), st
}

func TestPublish_BuffersAndPersists(t *testing.T) {
	h, st := newTestHub(t)
	ctx := context.Background()

	h.Publish(ctx, Frame{DeviceID: "d1", Line: "boot"})
	h.Publish(ctx, Frame{DeviceID: "d1", Line: "wifi up"})
	h.Publish(ctx, Frame{DeviceID: "d2", Line: "other device"})

	recent := h.Recent("d1")
	require.Len(t, recent, 2)
	require.Equal(t, "boot", recent[0].Line)
	require.False(t, recent[0].Timestamp.IsZero())

	raw, err := st.Read(ctx, store.EntitySerialStreams)
	require.NoError(t, err)
	require.Contains(t, string(raw), "wifi up")
	require.Contains(t, string(raw), "other device")
}

func TestPublish_RingBounded(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	for i := 0; i < maxBuffered+50; i++ {
		h.Publish(ctx, Frame{DeviceID: "d1", Line: fmt.Sprintf("line-%d", i)})
	}
	recent := h.Recent("d1")
	require.Len(t, recent, maxBuffered)
	require.Equal(t, fmt.Sprintf("line-%d", 50), recent[0].Line)
}

func TestRecent_UnknownDeviceEmpty(t *testing.T) {
	h, _ := newTestHub(t)
	require.Empty(t, h.Recent("never-seen"))
}
