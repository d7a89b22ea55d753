// Package curated is the static in-process source: a hand-picked set of
// public-domain works that always resolves, used for first-boot frames and
// as the random fallback when every remote museum is down.
package curated

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/framehub/artframe/internal/art/adapters"
)

type Adapter struct{}

func init() {
	adapters.Register("curated", func(deps adapters.Deps) adapters.Adapter {
		return &Adapter{}
	})
}

func (a *Adapter) Name() string { return "curated" }

var collection = []adapters.Artwork{
	{
		ID:           "curated-girl-with-a-pearl-earring",
		Title:        "Girl with a Pearl Earring",
		Artist:       "Johannes Vermeer",
		Date:         "c. 1665",
		ImageURL:     "https://upload.wikimedia.org/wikipedia/commons/d/d7/Meisje_met_de_parel.jpg",
		ThumbnailURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/d/d7/Meisje_met_de_parel.jpg/400px-Meisje_met_de_parel.jpg",
		Source:       "curated",
		Department:   "Paintings",
	},
	{
		ID:           "curated-starry-night",
		Title:        "The Starry Night",
		Artist:       "Vincent van Gogh",
		Date:         "1889",
		ImageURL:     "https://upload.wikimedia.org/wikipedia/commons/e/ea/Van_Gogh_-_Starry_Night_-_Google_Art_Project.jpg",
		ThumbnailURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/e/ea/Van_Gogh_-_Starry_Night_-_Google_Art_Project.jpg/400px-Van_Gogh_-_Starry_Night_-_Google_Art_Project.jpg",
		Source:       "curated",
		Department:   "Paintings",
	},
	{
		ID:           "curated-great-wave",
		Title:        "The Great Wave off Kanagawa",
		Artist:       "Katsushika Hokusai",
		Date:         "c. 1831",
		ImageURL:     "https://upload.wikimedia.org/wikipedia/commons/a/a5/Tsunami_by_hokusai_19th_century.jpg",
		ThumbnailURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/a/a5/Tsunami_by_hokusai_19th_century.jpg/400px-Tsunami_by_hokusai_19th_century.jpg",
		Source:       "curated",
		Department:   "Prints",
	},
	{
		ID:           "curated-wanderer-above-the-sea-of-fog",
		Title:        "Wanderer above the Sea of Fog",
		Artist:       "Caspar David Friedrich",
		Date:         "1818",
		ImageURL:     "https://upload.wikimedia.org/wikipedia/commons/b/b9/Caspar_David_Friedrich_-_Wanderer_above_the_sea_of_fog.jpg",
		ThumbnailURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/b/b9/Caspar_David_Friedrich_-_Wanderer_above_the_sea_of_fog.jpg/400px-Caspar_David_Friedrich_-_Wanderer_above_the_sea_of_fog.jpg",
		Source:       "curated",
		Department:   "Paintings",
	},
	{
		ID:           "curated-the-kiss",
		Title:        "The Kiss",
		Artist:       "Gustav Klimt",
		Date:         "1908",
		ImageURL:     "https://upload.wikimedia.org/wikipedia/commons/4/40/The_Kiss_-_Gustav_Klimt_-_Google_Cultural_Institute.jpg",
		ThumbnailURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/4/40/The_Kiss_-_Gustav_Klimt_-_Google_Cultural_Institute.jpg/400px-The_Kiss_-_Gustav_Klimt_-_Google_Cultural_Institute.jpg",
		Source:       "curated",
		Department:   "Paintings",
	},
	{
		ID:           "curated-impression-sunrise",
		Title:        "Impression, Sunrise",
		Artist:       "Claude Monet",
		Date:         "1872",
		ImageURL:     "https://upload.wikimedia.org/wikipedia/commons/5/59/Monet_-_Impression%2C_Sunrise.jpg",
		ThumbnailURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/5/59/Monet_-_Impression%2C_Sunrise.jpg/400px-Monet_-_Impression%2C_Sunrise.jpg",
		Source:       "curated",
		Department:   "Paintings",
	},
	{
		ID:           "curated-fighting-temeraire",
		Title:        "The Fighting Temeraire",
		Artist:       "J. M. W. Turner",
		Date:         "1839",
		ImageURL:     "https://upload.wikimedia.org/wikipedia/commons/9/94/Turner%2C_J._M._W._-_The_Fighting_T%C3%A9m%C3%A9raire_tugged_to_her_last_Berth_to_be_broken.jpg",
		ThumbnailURL: "https://upload.wikimedia.org/wikipedia/commons/thumb/9/94/Turner%2C_J._M._W._-_The_Fighting_T%C3%A9m%C3%A9raire_tugged_to_her_last_Berth_to_be_broken.jpg/400px-Turner%2C_J._M._W._-_The_Fighting_T%C3%A9m%C3%A9raire_tugged_to_her_last_Berth_to_be_broken.jpg",
		Source:       "curated",
		Department:   "Paintings",
	},
}

// Search matches query words against title and artist. Empty query returns
// the whole collection page.
func (a *Adapter) Search(ctx context.Context, query string, limit, offset int) ([]adapters.Artwork, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	var hits []adapters.Artwork
	for _, w := range collection {
		if q == "" ||
			strings.Contains(strings.ToLower(w.Title), q) ||
			strings.Contains(strings.ToLower(w.Artist), q) {
			hits = append(hits, w)
		}
	}
	if offset >= len(hits) {
		return nil, nil
	}
	hits = hits[offset:]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (a *Adapter) Random(ctx context.Context) (adapters.Artwork, error) {
	return collection[rand.IntN(len(collection))], nil
}
