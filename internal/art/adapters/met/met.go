// Package met adapts the Metropolitan Museum of Art open-access API.
// The API is two-phase: a search returns object IDs, each object is a
// separate fetch, so we fetch a window of 3×limit IDs in parallel and keep
// at most limit usable objects from it.
package met

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/framehub/artframe/internal/art/adapters"
)

const apiBase = "https://collectionapi.metmuseum.org/public/collection/v1"

// The Met allows ~80 req/s; stay well under it.
const fetchParallelism = 5

type Adapter struct {
	client  *http.Client
	limiter *rate.Limiter
}

func init() {
	adapters.Register("met", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{
			client:  deps.Client,
			limiter: rate.NewLimiter(rate.Limit(20), 20),
		}
	})
}

func (a *Adapter) Name() string { return "met" }

type searchResponse struct {
	ObjectIDs []int `json:"objectIDs"`
}

type objectResponse struct {
	ObjectID       int    `json:"objectID"`
	Title          string `json:"title"`
	ArtistName     string `json:"artistDisplayName"`
	ObjectDate     string `json:"objectDate"`
	PrimaryImage   string `json:"primaryImage"`
	PrimarySmall   string `json:"primaryImageSmall"`
	Department     string `json:"department"`
	Classification string `json:"classification"`
	IsPublicDomain bool   `json:"isPublicDomain"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	u := fmt.Sprintf("%s/search?hasImages=true&isPublicDomain=true&q=%s",
		apiBase, url.QueryEscape(query))

	var sr searchResponse
	if err := a.get(ctx, u, &sr); err != nil {
		return nil, err
	}
	if len(sr.ObjectIDs) == 0 {
		return nil, nil
	}

	// Many objects are filtered out (no image, not a painting), so scan a
	// window past the requested page rather than exactly limit IDs.
	start := offset
	if start >= len(sr.ObjectIDs) {
		return nil, nil
	}
	end := start + limit*3
	if end > len(sr.ObjectIDs) {
		end = len(sr.ObjectIDs)
	}

	var (
		mu  sync.Mutex
		out []adapters.Artwork
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)
	for _, id := range sr.ObjectIDs[start:end] {
		g.Go(func() error {
			aw, err := a.fetchObject(gctx, id)
			if err != nil || aw == nil {
				return nil // skip failures; partial pages beat no pages
			}
			mu.Lock()
			if len(out) < limit {
				out = append(out, *aw)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) fetchObject(ctx context.Context, id int) (*adapters.Artwork, error) {
	var obj objectResponse
	if err := a.get(ctx, fmt.Sprintf("%s/objects/%d", apiBase, id), &obj); err != nil {
		return nil, err
	}
	if obj.PrimaryImage == "" || !obj.IsPublicDomain {
		return nil, nil
	}
	if obj.Classification != "" && !strings.Contains(strings.ToLower(obj.Classification), "painting") {
		return nil, nil
	}
	thumb := obj.PrimarySmall
	if thumb == "" {
		thumb = obj.PrimaryImage
	}
	return &adapters.Artwork{
		ID:           fmt.Sprintf("met-%d", obj.ObjectID),
		Title:        obj.Title,
		Artist:       obj.ArtistName,
		Date:         obj.ObjectDate,
		ImageURL:     obj.PrimaryImage,
		ThumbnailURL: thumb,
		Source:       "met",
		Department:   obj.Department,
	}, nil
}

// Random picks from the museum highlights pool.
func (a *Adapter) Random(ctx context.Context) (adapters.Artwork, error) {
	u := apiBase + "/search?hasImages=true&isPublicDomain=true&isHighlight=true&q=painting"
	var sr searchResponse
	if err := a.get(ctx, u, &sr); err != nil {
		return adapters.Artwork{}, err
	}
	if len(sr.ObjectIDs) == 0 {
		return adapters.Artwork{}, adapters.ErrUpstream
	}
	start := rand.IntN(len(sr.ObjectIDs))
	for i := range sr.ObjectIDs {
		id := sr.ObjectIDs[(start+i)%len(sr.ObjectIDs)]
		aw, err := a.fetchObject(ctx, id)
		if err != nil {
			return adapters.Artwork{}, err
		}
		if aw != nil {
			return *aw, nil
		}
	}
	return adapters.Artwork{}, adapters.ErrUpstream
}

func (a *Adapter) get(ctx context.Context, u string, v any) error {
	return adapters.GetJSON(ctx, a.client, a.limiter, u, v)
}
