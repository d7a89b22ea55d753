// Package cleveland adapts the Cleveland Museum of Art open-access API.
package cleveland

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/framehub/artframe/internal/art/adapters"
)

const apiBase = "https://openaccess-api.clevelandart.org/api/artworks"

type Adapter struct {
	client  *http.Client
	limiter *rate.Limiter
}

func init() {
	adapters.Register("cleveland", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{
			client:  deps.Client,
			limiter: rate.NewLimiter(rate.Limit(5), 5),
		}
	})
}

func (a *Adapter) Name() string { return "cleveland" }

type searchResponse struct {
	Data []struct {
		ID           int    `json:"id"`
		Title        string `json:"title"`
		CreationDate string `json:"creation_date"`
		Type         string `json:"type"`
		Department   string `json:"department"`
		Creators     []struct {
			Description string `json:"description"`
		} `json:"creators"`
		Images struct {
			Web struct {
				URL string `json:"url"`
			} `json:"web"`
			Print struct {
				URL string `json:"url"`
			} `json:"print"`
		} `json:"images"`
	} `json:"data"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	u := fmt.Sprintf("%s/?q=%s&limit=%d&skip=%d&has_image=1&cc0=1",
		apiBase, url.QueryEscape(query), limit*2, offset)

	var sr searchResponse
	if err := adapters.GetJSON(ctx, a.client, a.limiter, u, &sr); err != nil {
		return nil, err
	}

	out := make([]adapters.Artwork, 0, limit)
	for _, d := range sr.Data {
		if len(out) >= limit {
			break
		}
		if d.Images.Web.URL == "" {
			continue
		}
		// The type field is a proper classification; keep paintings only.
		if d.Type != "" && !strings.EqualFold(d.Type, "painting") {
			continue
		}
		artist := ""
		if len(d.Creators) > 0 {
			artist = d.Creators[0].Description
		}
		imageURL := d.Images.Print.URL
		if imageURL == "" {
			imageURL = d.Images.Web.URL
		}
		out = append(out, adapters.Artwork{
			ID:           fmt.Sprintf("cleveland-%d", d.ID),
			Title:        d.Title,
			Artist:       artist,
			Date:         d.CreationDate,
			ImageURL:     imageURL,
			ThumbnailURL: d.Images.Web.URL,
			Source:       "cleveland",
			Department:   d.Department,
		})
	}
	return out, nil
}

func (a *Adapter) Random(ctx context.Context) (adapters.Artwork, error) {
	works, err := a.Search(ctx, "painting", 20, rand.IntN(200))
	if err != nil {
		return adapters.Artwork{}, err
	}
	if len(works) == 0 {
		return adapters.Artwork{}, adapters.ErrUpstream
	}
	return works[rand.IntN(len(works))], nil
}
