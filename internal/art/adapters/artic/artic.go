// Package artic adapts the Art Institute of Chicago API. Single-phase
// search with field selection; images come from the IIIF endpoint.
package artic

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/framehub/artframe/internal/art/adapters"
)

const (
	apiBase  = "https://api.artic.edu/api/v1"
	iiifBase = "https://www.artic.edu/iiif/2"
	fields   = "id,title,artist_display,date_display,image_id,department_title,is_public_domain"
)

type Adapter struct {
	client  *http.Client
	limiter *rate.Limiter
}

func init() {
	adapters.Register("artic", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{
			client:  deps.Client,
			limiter: rate.NewLimiter(rate.Limit(10), 10),
		}
	})
}

func (a *Adapter) Name() string { return "artic" }

type searchResponse struct {
	Data []struct {
		ID              int    `json:"id"`
		Title           string `json:"title"`
		ArtistDisplay   string `json:"artist_display"`
		DateDisplay     string `json:"date_display"`
		ImageID         string `json:"image_id"`
		DepartmentTitle string `json:"department_title"`
		IsPublicDomain  bool   `json:"is_public_domain"`
	} `json:"data"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	page := offset/max(limit, 1) + 1
	u := fmt.Sprintf("%s/artworks/search?q=%s&fields=%s&limit=%d&page=%d&query[term][is_public_domain]=true",
		apiBase, url.QueryEscape(query), fields, limit, page)

	var sr searchResponse
	if err := adapters.GetJSON(ctx, a.client, a.limiter, u, &sr); err != nil {
		return nil, err
	}

	out := make([]adapters.Artwork, 0, len(sr.Data))
	for _, d := range sr.Data {
		if d.ImageID == "" || !d.IsPublicDomain {
			continue
		}
		out = append(out, adapters.Artwork{
			ID:           fmt.Sprintf("artic-%d", d.ID),
			Title:        d.Title,
			Artist:       d.ArtistDisplay,
			Date:         d.DateDisplay,
			ImageURL:     fmt.Sprintf("%s/%s/full/1686,/0/default.jpg", iiifBase, d.ImageID),
			ThumbnailURL: fmt.Sprintf("%s/%s/full/400,/0/default.jpg", iiifBase, d.ImageID),
			Source:       "artic",
			Department:   d.DepartmentTitle,
		})
	}
	return out, nil
}

// Random samples a page of the paintings search.
func (a *Adapter) Random(ctx context.Context) (adapters.Artwork, error) {
	works, err := a.Search(ctx, "painting", 20, 0)
	if err != nil {
		return adapters.Artwork{}, err
	}
	if len(works) == 0 {
		return adapters.Artwork{}, adapters.ErrUpstream
	}
	return works[rand.IntN(len(works))], nil
}
