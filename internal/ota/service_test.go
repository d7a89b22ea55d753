package ota

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/framehub/artframe/internal/store"
)

func newTestService(t *testing.T, binary []byte) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	if binary != nil {
		require.NoError(t, os.WriteFile(filepath.Join(dir, binaryName), binary, 0o644))
	}
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewService(dir, st, "v3", "2026-07-01", slog.New(slog.DiscardHandler)), dir
}

func TestManifest_DigestAndSize(t *testing.T) {
	payload := make([]byte, 200*1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	svc, _ := newTestService(t, payload)

	m, err := svc.Manifest(context.Background())
	require.NoError(t, err)

	want := sha256.Sum256(payload)
	require.Equal(t, hex.EncodeToString(want[:]), m.SHA256)
	require.Equal(t, int64(len(payload)), m.Size)
	require.Equal(t, "v3", m.Version)
	require.Equal(t, "2026-07-01", m.BuildDate)
	require.False(t, m.ForceUpdate)
	require.Greater(t, m.MinBattery, 0.0)
}

func TestManifest_NoBinary(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Manifest(context.Background())
	require.ErrorIs(t, err, ErrNoFirmware)
}

func TestManifest_CacheInvalidatesOnMtimeChange(t *testing.T) {
	svc, dir := newTestService(t, []byte("old-firmware"))
	ctx := context.Background()

	first, err := svc.Manifest(ctx)
	require.NoError(t, err)

	// Swap the binary; bump mtime explicitly so fast filesystems can't fool
	// the cache.
	path := filepath.Join(dir, binaryName)
	require.NoError(t, os.WriteFile(path, []byte("new-firmware-longer"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	second, err := svc.Manifest(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.SHA256, second.SHA256)
	require.Equal(t, int64(len("new-firmware-longer")), second.Size)
}

func TestForceUpdateFlag(t *testing.T) {
	svc, _ := newTestService(t, []byte("fw"))
	ctx := context.Background()

	require.NoError(t, svc.SetForceUpdate(ctx, true))
	m, err := svc.Manifest(ctx)
	require.NoError(t, err)
	require.True(t, m.ForceUpdate)

	require.NoError(t, svc.SetForceUpdate(ctx, false))
	m, err = svc.Manifest(ctx)
	require.NoError(t, err)
	require.False(t, m.ForceUpdate)
}

func TestSetInfo_SidecarUsedWhenEnvEmpty(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, binaryName), []byte("fw"), 0o644))
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	svc := NewService(dir, st, "", "", slog.New(slog.DiscardHandler))
	ctx := context.Background()

	require.NoError(t, svc.SetInfo(ctx, "v7", "2026-06-15", 40))
	m, err := svc.Manifest(ctx)
	require.NoError(t, err)
	require.Equal(t, "v7", m.Version)
	require.Equal(t, "2026-06-15", m.BuildDate)
	require.Equal(t, 40.0, m.MinBattery)
	require.False(t, m.DeployedAt.IsZero())
}

func TestOpen_StreamsBinary(t *testing.T) {
	svc, _ := newTestService(t, []byte("firmware-bytes"))

	rc, size, err := svc.Open()
	require.NoError(t, err)
	defer rc.Close()
	require.Equal(t, int64(len("firmware-bytes")), size)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "firmware-bytes", string(got))
}
