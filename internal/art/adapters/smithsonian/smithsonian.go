// Package smithsonian adapts the Smithsonian Open Access API (key required
// via SMITHSONIAN_API_KEY).
package smithsonian

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/time/rate"

	"github.com/framehub/artframe/internal/art/adapters"
)

const apiBase = "https://api.si.edu/openaccess/api/v1.0/search"

type Adapter struct {
	client  *http.Client
	limiter *rate.Limiter
	apiKey  string
}

func init() {
	adapters.Register("smithsonian", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{
			client:  deps.Client,
			limiter: rate.NewLimiter(rate.Limit(5), 5),
			apiKey:  os.Getenv("SMITHSONIAN_API_KEY"),
		}
	})
}

func (a *Adapter) Name() string { return "smithsonian" }

type searchResponse struct {
	Response struct {
		Rows []struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Content struct {
				IndexedStructured struct {
					ObjectType []string `json:"object_type"`
					Date       []string `json:"date"`
					Name       []string `json:"name"`
				} `json:"indexedStructured"`
				DescriptiveNonRepeating struct {
					OnlineMedia struct {
						Media []struct {
							Content   string `json:"content"`
							Thumbnail string `json:"thumbnail"`
							Usage     struct {
								Access string `json:"access"`
							} `json:"usage"`
						} `json:"media"`
					} `json:"online_media"`
				} `json:"descriptiveNonRepeating"`
			} `json:"content"`
		} `json:"rows"`
	} `json:"response"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("%w: smithsonian api key not configured", adapters.ErrUpstream)
	}
	q := fmt.Sprintf(`%s AND object_type:"Paintings" AND online_media_type:"Images"`, query)
	u := fmt.Sprintf("%s?api_key=%s&q=%s&rows=%d&start=%d",
		apiBase, url.QueryEscape(a.apiKey), url.QueryEscape(q), limit, offset)

	var sr searchResponse
	if err := adapters.GetJSON(ctx, a.client, a.limiter, u, &sr); err != nil {
		return nil, err
	}

	out := make([]adapters.Artwork, 0, len(sr.Response.Rows))
	for _, r := range sr.Response.Rows {
		media := r.Content.DescriptiveNonRepeating.OnlineMedia.Media
		if len(media) == 0 || media[0].Content == "" {
			continue
		}
		if !strings.EqualFold(media[0].Usage.Access, "CC0") {
			continue
		}
		artist := ""
		if names := r.Content.IndexedStructured.Name; len(names) > 0 {
			artist = names[0]
		}
		date := ""
		if dates := r.Content.IndexedStructured.Date; len(dates) > 0 {
			date = dates[0]
		}
		thumb := media[0].Thumbnail
		if thumb == "" {
			thumb = media[0].Content
		}
		out = append(out, adapters.Artwork{
			ID:           "smithsonian-" + r.ID,
			Title:        r.Title,
			Artist:       artist,
			Date:         date,
			ImageURL:     media[0].Content,
			ThumbnailURL: thumb,
			Source:       "smithsonian",
			Department:   "Paintings",
		})
	}
	return out, nil
}
