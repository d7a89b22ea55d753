// Package rijks adapts the Rijksmuseum collection API. The API requires a
// key (RIJKS_API_KEY); without one the adapter registers but reports every
// search as an upstream error, which the federator surfaces per source.
package rijks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"

	"golang.org/x/time/rate"

	"github.com/framehub/artframe/internal/art/adapters"
)

const apiBase = "https://www.rijksmuseum.nl/api/en/collection"

type Adapter struct {
	client  *http.Client
	limiter *rate.Limiter
	apiKey  string
}

func init() {
	adapters.Register("rijks", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{
			client:  deps.Client,
			limiter: rate.NewLimiter(rate.Limit(5), 5),
			apiKey:  os.Getenv("RIJKS_API_KEY"),
		}
	})
}

func (a *Adapter) Name() string { return "rijks" }

type searchResponse struct {
	ArtObjects []struct {
		ObjectNumber    string `json:"objectNumber"`
		Title           string `json:"title"`
		PrincipalMaker  string `json:"principalOrFirstMaker"`
		LongTitle       string `json:"longTitle"`
		PermitDownload  bool   `json:"permitDownload"`
		WebImage        *struct{ URL string `json:"url"` } `json:"webImage"`
		HeaderImage     *struct{ URL string `json:"url"` } `json:"headerImage"`
	} `json:"artObjects"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("%w: rijks api key not configured", adapters.ErrUpstream)
	}
	page := offset/max(limit, 1) + 1
	u := fmt.Sprintf("%s?key=%s&q=%s&ps=%d&p=%d&type=painting&imgonly=true",
		apiBase, url.QueryEscape(a.apiKey), url.QueryEscape(query), limit, page)

	var sr searchResponse
	if err := adapters.GetJSON(ctx, a.client, a.limiter, u, &sr); err != nil {
		return nil, err
	}

	out := make([]adapters.Artwork, 0, len(sr.ArtObjects))
	for _, d := range sr.ArtObjects {
		if d.WebImage == nil || d.WebImage.URL == "" || !d.PermitDownload {
			continue
		}
		out = append(out, adapters.Artwork{
			ID:           "rijks-" + d.ObjectNumber,
			Title:        d.Title,
			Artist:       d.PrincipalMaker,
			Date:         d.LongTitle,
			ImageURL:     d.WebImage.URL,
			ThumbnailURL: d.WebImage.URL,
			Source:       "rijks",
			Department:   "paintings", // the query is already type=painting
		})
	}
	return out, nil
}

func (a *Adapter) Random(ctx context.Context) (adapters.Artwork, error) {
	works, err := a.Search(ctx, "masterpiece", 20, rand.IntN(100))
	if err != nil {
		return adapters.Artwork{}, err
	}
	if len(works) == 0 {
		return adapters.Artwork{}, adapters.ErrUpstream
	}
	return works[rand.IntN(len(works))], nil
}
