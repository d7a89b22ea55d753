package art

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/framehub/artframe/internal/art/adapters"
)

// ErrTimeout distinguishes upstream deadline expiry so clients can retry.
var ErrTimeout = errors.New("upstream timeout")

// Source images larger than this are rejected before decode.
const maxDownloadBytes = 64 << 20

const downloadTimeout = 15 * time.Second

// Importer fetches source images for /api/art/import.
type Importer struct {
	client *http.Client
}

func NewImporter(client *http.Client) *Importer {
	return &Importer{client: client}
}

// Download fetches url within the import deadline and returns the raw bytes.
func (i *Importer) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapters.ErrUpstream, err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: image download", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: %v", adapters.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d fetching image", adapters.ErrUpstream, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: image download", ErrTimeout)
		}
		return nil, fmt.Errorf("%w: read: %v", adapters.ErrUpstream, err)
	}
	if len(raw) > maxDownloadBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", adapters.ErrUpstream, maxDownloadBytes)
	}
	return raw, nil
}
