package art

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/framehub/artframe/internal/art/adapters"
)

// ErrNoSource means every adapter failed; there is nothing to serve.
var ErrNoSource = errors.New("no art source available")

// SourceStatus reports one adapter's contribution to a federated search.
type SourceStatus struct {
	Status string `json:"status"` // ok | rate_limited | error
	Count  int    `json:"count"`
}

// SearchResult is a finished page: deduped, ranked, sliced.
type SearchResult struct {
	Results   []adapters.Artwork      `json:"results"`
	Sources   map[string]SourceStatus `json:"sources"`
	HasMore   bool                    `json:"hasMore"`
	FetchedAt time.Time               `json:"fetchedAt"`
}

// FederatorConfig carries the timeouts; zero values get spec defaults.
type FederatorConfig struct {
	AdapterTimeout time.Duration // per-adapter deadline
	OverallTimeout time.Duration // whole fan-out deadline
	RandomTimeout  time.Duration // per-adapter deadline in Random
}

// Federator fans a query out across every registered source, merges what
// comes back, and caches finished pages by fingerprint.
type Federator struct {
	sources []adapters.Adapter
	cache   SearchCache
	cfg     FederatorConfig
	log     *slog.Logger
	flight  singleflight.Group
}

func NewFederator(sources []adapters.Adapter, cache SearchCache, cfg FederatorConfig, log *slog.Logger) *Federator {
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = 5 * time.Second
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 7 * time.Second
	}
	if cfg.RandomTimeout <= 0 {
		cfg.RandomTimeout = 3 * time.Second
	}
	return &Federator{sources: sources, cache: cache, cfg: cfg, log: log}
}

// Search serves from cache when the fingerprint is fresh, otherwise fans out.
// Concurrent misses for the same fingerprint collapse into one fan-out.
func (f *Federator) Search(ctx context.Context, query string, limit, offset int) (*SearchResult, error) {
	key := CacheKey(query, limit, offset)
	if cached, ok := f.cache.Get(ctx, key); ok {
		return cached, nil
	}

	v, err, _ := f.flight.Do(key, func() (any, error) {
		res, err := f.fanOut(ctx, query, limit, offset)
		if err != nil {
			return nil, err
		}
		f.cache.Set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SearchResult), nil
}

func (f *Federator) fanOut(ctx context.Context, query string, limit, offset int) (*SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.OverallTimeout)
	defer cancel()

	type reply struct {
		name  string
		works []adapters.Artwork
		err   error
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		replies []reply
	)
	// Fan-out is full-width: one in-flight call per source.
	for _, src := range f.sources {
		wg.Add(1)
		go func(src adapters.Adapter) {
			defer wg.Done()
			actx, acancel := context.WithTimeout(ctx, f.cfg.AdapterTimeout)
			defer acancel()
			works, err := src.Search(actx, query, limit+offset, 0)
			mu.Lock()
			replies = append(replies, reply{name: src.Name(), works: works, err: err})
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	sources := make(map[string]SourceStatus, len(replies))
	var merged []adapters.Artwork
	okCount := 0
	for _, r := range replies {
		switch {
		case r.err == nil:
			sources[r.name] = SourceStatus{Status: "ok", Count: len(r.works)}
			merged = append(merged, r.works...)
			okCount++
		case errors.Is(r.err, adapters.ErrRateLimited):
			sources[r.name] = SourceStatus{Status: "rate_limited"}
		default:
			f.log.Warn("art source failed", "source", r.name, "err", r.err)
			sources[r.name] = SourceStatus{Status: "error"}
		}
	}
	if okCount == 0 {
		return nil, ErrNoSource
	}

	ranked := f.rank(dedupe(merged), query)

	hasMore := len(ranked) > offset+limit
	page := ranked[min(offset, len(ranked)):]
	if len(page) > limit {
		page = page[:limit]
	}
	if page == nil {
		page = []adapters.Artwork{}
	}

	return &SearchResult{
		Results:   page,
		Sources:   sources,
		HasMore:   hasMore,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// dedupe collapses artworks sharing a fingerprint, keeping the first seen.
func dedupe(works []adapters.Artwork) []adapters.Artwork {
	seen := make(map[string]struct{}, len(works))
	out := works[:0:0]
	for _, w := range works {
		fp := w.Fingerprint()
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, w)
	}
	return out
}

var yearRe = regexp.MustCompile(`\b(1[0-9]{3})\b`)

// rank scores and stably sorts: descending score, then source order as
// adapters were built (alphabetical, which is stable across runs).
func (f *Federator) rank(works []adapters.Artwork, query string) []adapters.Artwork {
	q := strings.ToLower(strings.TrimSpace(query))

	order := make(map[string]int, len(f.sources))
	for i, s := range f.sources {
		order[s.Name()] = i
	}

	for i := range works {
		w := &works[i]
		score := 0.0
		if q != "" && strings.EqualFold(strings.TrimSpace(w.Artist), q) {
			score += 10
		}
		if q != "" && strings.Contains(strings.ToLower(w.Title), q) {
			score += 5
		}
		if strings.Contains(strings.ToLower(w.Department), "paint") {
			score += 5
		}
		if m := yearRe.FindString(w.Date); m != "" {
			if year, err := strconv.Atoi(m); err == nil && year < 1900 {
				score += 3
			}
		}
		if hiResThumb(w.ThumbnailURL) {
			score += 2
		}
		w.Score = score
	}

	sort.SliceStable(works, func(i, j int) bool {
		if works[i].Score != works[j].Score {
			return works[i].Score > works[j].Score
		}
		return order[works[i].Source] < order[works[j].Source]
	})
	return works
}

var thumbDimRe = regexp.MustCompile(`(\d{3,4})`)

// hiResThumb guesses resolution from the dimension hints museums embed in
// thumbnail URLs ("400px-", "/full/843,/", "?width=400").
func hiResThumb(u string) bool {
	if u == "" {
		return false
	}
	if strings.Contains(u, "full/full") || strings.Contains(strings.ToLower(u), "original") {
		return true
	}
	best := 0
	for _, m := range thumbDimRe.FindAllString(u, -1) {
		if n, err := strconv.Atoi(m); err == nil && n > best && n <= 4096 {
			best = n
		}
	}
	return best >= 600
}

// Random tries sources in shuffled order and returns the first success.
func (f *Federator) Random(ctx context.Context) (adapters.Artwork, error) {
	shuffled := make([]adapters.Adapter, len(f.sources))
	copy(shuffled, f.sources)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	for _, src := range shuffled {
		rs, ok := src.(adapters.RandomSource)
		if !ok {
			continue
		}
		actx, cancel := context.WithTimeout(ctx, f.cfg.RandomTimeout)
		work, err := rs.Random(actx)
		cancel()
		if err == nil && work.ImageURL != "" {
			return work, nil
		}
		if err != nil {
			f.log.Debug("random source failed", "source", src.Name(), "err", err)
		}
	}
	return adapters.Artwork{}, ErrNoSource
}
