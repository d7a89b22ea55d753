// Package wikimedia adapts Wikimedia Commons file search. Commons has no
// painting classification, so results are scoped by search keywords and the
// license check comes from extmetadata.
package wikimedia

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/framehub/artframe/internal/art/adapters"
)

const apiBase = "https://commons.wikimedia.org/w/api.php"

type Adapter struct {
	client  *http.Client
	limiter *rate.Limiter
}

func init() {
	adapters.Register("wikimedia", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{
			client:  deps.Client,
			limiter: rate.NewLimiter(rate.Limit(5), 5),
		}
	})
}

func (a *Adapter) Name() string { return "wikimedia" }

type queryResponse struct {
	Query struct {
		Pages map[string]struct {
			PageID    int    `json:"pageid"`
			Title     string `json:"title"`
			ImageInfo []struct {
				URL         string `json:"url"`
				ThumbURL    string `json:"thumburl"`
				ExtMetadata map[string]struct {
					Value string `json:"value"`
				} `json:"extmetadata"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"generator":     {"search"},
		"gsrsearch":     {query + " painting"},
		"gsrnamespace":  {"6"},
		"gsrlimit":      {fmt.Sprintf("%d", limit)},
		"gsroffset":     {fmt.Sprintf("%d", offset)},
		"prop":          {"imageinfo"},
		"iiprop":        {"url|extmetadata"},
		"iiurlwidth":    {"400"},
	}

	var qr queryResponse
	if err := adapters.GetJSON(ctx, a.client, a.limiter, apiBase+"?"+params.Encode(), &qr); err != nil {
		return nil, err
	}

	out := make([]adapters.Artwork, 0, len(qr.Query.Pages))
	for _, p := range qr.Query.Pages {
		if len(p.ImageInfo) == 0 || p.ImageInfo[0].URL == "" {
			continue
		}
		info := p.ImageInfo[0]
		if !rehostable(info.ExtMetadata["LicenseShortName"].Value) {
			continue
		}
		title := strings.TrimPrefix(p.Title, "File:")
		title = strings.TrimSuffix(title, ".jpg")
		title = strings.TrimSuffix(title, ".png")
		thumb := info.ThumbURL
		if thumb == "" {
			thumb = info.URL
		}
		out = append(out, adapters.Artwork{
			ID:           fmt.Sprintf("wikimedia-%d", p.PageID),
			Title:        title,
			Artist:       strip(info.ExtMetadata["Artist"].Value),
			Date:         strip(info.ExtMetadata["DateTimeOriginal"].Value),
			ImageURL:     info.URL,
			ThumbnailURL: thumb,
			Source:       "wikimedia",
		})
	}
	return out, nil
}

// rehostable accepts public-domain and CC licenses that allow serving
// thumbnails from our server.
func rehostable(license string) bool {
	l := strings.ToLower(license)
	if l == "" {
		return false
	}
	return strings.Contains(l, "public domain") ||
		strings.Contains(l, "pd-") || l == "pd" ||
		strings.Contains(l, "cc0") ||
		strings.Contains(l, "cc by")
}

// strip flattens the HTML fragments Commons puts in metadata values.
func strip(s string) string {
	for {
		open := strings.IndexByte(s, '<')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open:], '>')
		if end < 0 {
			s = s[:open]
			break
		}
		s = s[:open] + s[open+end+1:]
	}
	return strings.TrimSpace(s)
}
