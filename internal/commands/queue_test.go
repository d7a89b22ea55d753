package commands

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/framehub/artframe/internal/store"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewQueue(st, slog.New(slog.DiscardHandler))
}

func TestEnqueueDrain_InsertionOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "d1", CmdStayAwake, 30000)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "d1", CmdUpdateNow, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "d1", CmdEnableStreaming, 0)
	require.NoError(t, err)

	got, err := q.Drain(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, CmdStayAwake, got[0].Command)
	require.Equal(t, int64(30000), got[0].DurationMS)
	require.Equal(t, CmdUpdateNow, got[1].Command)
	require.Equal(t, CmdEnableStreaming, got[2].Command)
}

func TestDrain_SecondCallEmpty(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "d1", CmdForceUpdate, 0)
	require.NoError(t, err)

	first, err := q.Drain(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := q.Drain(ctx, "d1")
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestDrain_EmptyQueueIsEmptySlice(t *testing.T) {
	q := newTestQueue(t)
	got, err := q.Drain(context.Background(), "never-seen")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestEnqueue_TruncatesToLastTen(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		name := CmdStayAwake
		if i >= 5 {
			name = CmdUpdateNow
		}
		_, err := q.Enqueue(ctx, "d1", name, int64(i))
		require.NoError(t, err)
	}

	got, err := q.Drain(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 10)
	require.Equal(t, int64(5), got[0].DurationMS, "oldest five dropped")
	require.Equal(t, int64(14), got[9].DurationMS)
}

func TestEnqueue_UnknownCommandRejected(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Enqueue(context.Background(), "d1", "reboot", 0)
	require.ErrorIs(t, err, ErrUnknownCommand)
}

func TestQueues_PerDeviceIsolation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "d1", CmdStayAwake, 0)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "d2", CmdUpdateNow, 0)
	require.NoError(t, err)

	got1, err := q.Drain(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got1, 1)

	got2, err := q.Pending(ctx, "d2")
	require.NoError(t, err)
	require.Len(t, got2, 1)
	require.Equal(t, CmdUpdateNow, got2[0].Command)
}
