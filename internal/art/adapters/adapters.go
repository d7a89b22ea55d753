package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Artwork is the normalized cross-source model. IDs are prefixed with the
// adapter name ("met-436535") and stable within a source's dataset.
type Artwork struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Date         string  `json:"date"`
	ImageURL     string  `json:"imageUrl"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	Source       string  `json:"source"`
	Department   string  `json:"department,omitempty"`
	Score        float64 `json:"score,omitempty"`
}

// Fingerprint is the dedup key: normalized image URL when present, else
// title|artist.
func (a Artwork) Fingerprint() string {
	if a.ImageURL != "" {
		return strings.ToLower(a.ImageURL)
	}
	return strings.ToLower(a.Title) + "|" + strings.ToLower(a.Artist)
}

var (
	ErrUpstream    = errors.New("upstream source error")
	ErrRateLimited = errors.New("upstream rate limited")
)

// Adapter is one museum source. Implementations must honor ctx cancellation,
// return only artworks with retrievable image URLs, and filter to paintings
// where the upstream schema allows it.
type Adapter interface {
	Name() string
	Search(ctx context.Context, query string, limit, offset int) ([]Artwork, error)
}

// RandomSource is implemented by adapters that can serve a random pick.
// Adapters without it are skipped in random fan-out.
type RandomSource interface {
	Random(ctx context.Context) (Artwork, error)
}

// Deps is what a factory gets to build its adapter.
type Deps struct {
	Client *http.Client
}

type Factory func(deps Deps) Adapter

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register adds a factory for a source. Called from adapter init().
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Build instantiates every registered adapter in stable name order.
func Build(deps Deps) []Adapter {
	registryMu.Lock()
	defer registryMu.Unlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, registry[name](deps))
	}
	return out
}

// GetJSON performs a rate-limited GET and decodes the JSON body into v.
// 429 maps to ErrRateLimited so the federator can report it distinctly.
func GetJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, url string, v any) error {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return nil
}
