// Package vam adapts the Victoria and Albert Museum API. Images are served
// through the museum's IIIF endpoint.
package vam

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/framehub/artframe/internal/art/adapters"
)

const (
	apiBase  = "https://api.vam.ac.uk/v2/objects/search"
	iiifBase = "https://framemark.vam.ac.uk/collections"
)

type Adapter struct {
	client  *http.Client
	limiter *rate.Limiter
}

func init() {
	adapters.Register("vam", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{
			client:  deps.Client,
			limiter: rate.NewLimiter(rate.Limit(5), 5),
		}
	})
}

func (a *Adapter) Name() string { return "vam" }

type searchResponse struct {
	Records []struct {
		SystemNumber   string `json:"systemNumber"`
		PrimaryTitle   string `json:"_primaryTitle"`
		PrimaryMaker   struct{ Name string `json:"name"` } `json:"_primaryMaker"`
		PrimaryDate    string `json:"_primaryDate"`
		PrimaryImageID string `json:"_primaryImageId"`
		ObjectType     string `json:"objectType"`
	} `json:"records"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	page := offset/max(limit, 1) + 1
	u := fmt.Sprintf("%s?q=%s&page_size=%d&page=%d&images_exist=1&kw_object_type=painting",
		apiBase, url.QueryEscape(query), limit, page)

	var sr searchResponse
	if err := adapters.GetJSON(ctx, a.client, a.limiter, u, &sr); err != nil {
		return nil, err
	}

	out := make([]adapters.Artwork, 0, len(sr.Records))
	for _, r := range sr.Records {
		if r.PrimaryImageID == "" {
			continue
		}
		out = append(out, adapters.Artwork{
			ID:           "vam-" + r.SystemNumber,
			Title:        r.PrimaryTitle,
			Artist:       r.PrimaryMaker.Name,
			Date:         r.PrimaryDate,
			ImageURL:     fmt.Sprintf("%s/%s/full/full/0/default.jpg", iiifBase, r.PrimaryImageID),
			ThumbnailURL: fmt.Sprintf("%s/%s/full/!400,400/0/default.jpg", iiifBase, r.PrimaryImageID),
			Source:       "vam",
			Department:   r.ObjectType,
		})
	}
	return out, nil
}
