// Package harvard adapts the Harvard Art Museums API (key required via
// HARVARD_API_KEY).
package harvard

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"golang.org/x/time/rate"

	"github.com/framehub/artframe/internal/art/adapters"
)

const apiBase = "https://api.harvardartmuseums.org/object"

type Adapter struct {
	client  *http.Client
	limiter *rate.Limiter
	apiKey  string
}

func init() {
	adapters.Register("harvard", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{
			client:  deps.Client,
			limiter: rate.NewLimiter(rate.Limit(5), 5),
			apiKey:  os.Getenv("HARVARD_API_KEY"),
		}
	})
}

func (a *Adapter) Name() string { return "harvard" }

type searchResponse struct {
	Records []struct {
		ID              int    `json:"id"`
		Title           string `json:"title"`
		Dated           string `json:"dated"`
		Department      string `json:"department"`
		PrimaryImageURL string `json:"primaryimageurl"`
		People          []struct {
			Name string `json:"name"`
			Role string `json:"role"`
		} `json:"people"`
	} `json:"records"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("%w: harvard api key not configured", adapters.ErrUpstream)
	}
	page := offset/max(limit, 1) + 1
	u := fmt.Sprintf("%s?apikey=%s&q=%s&size=%d&page=%d&classification=Paintings&hasimage=1",
		apiBase, url.QueryEscape(a.apiKey), url.QueryEscape(query), limit, page)

	var sr searchResponse
	if err := adapters.GetJSON(ctx, a.client, a.limiter, u, &sr); err != nil {
		return nil, err
	}

	out := make([]adapters.Artwork, 0, len(sr.Records))
	for _, r := range sr.Records {
		if r.PrimaryImageURL == "" {
			continue
		}
		artist := ""
		for _, p := range r.People {
			if p.Role == "Artist" {
				artist = p.Name
				break
			}
		}
		out = append(out, adapters.Artwork{
			ID:           fmt.Sprintf("harvard-%d", r.ID),
			Title:        r.Title,
			Artist:       artist,
			Date:         r.Dated,
			ImageURL:     r.PrimaryImageURL,
			ThumbnailURL: r.PrimaryImageURL + "?width=400",
			Source:       "harvard",
			Department:   r.Department,
		})
	}
	return out, nil
}
