package current

import (
	"context"
	"errors"
	"fmt"

	"github.com/framehub/artframe/internal/store"
)

// GetPlaylist returns the playlist, or an inactive empty one before first
// configuration.
func (s *Service) GetPlaylist(ctx context.Context) (*Playlist, error) {
	var pl Playlist
	err := store.ReadJSON(ctx, s.store, store.EntityPlaylist, &pl)
	if errors.Is(err, store.ErrNotFound) {
		return &Playlist{Mode: ModeSequential, Images: []string{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if pl.Images == nil {
		pl.Images = []string{}
	}
	return &pl, nil
}

// SavePlaylist validates and stores a full playlist definition. Image ids
// must exist in the archive and duplicates (same id) are collapsed.
func (s *Service) SavePlaylist(ctx context.Context, pl Playlist) (*Playlist, error) {
	switch pl.Mode {
	case ModeSequential, ModeRandom:
	case "":
		pl.Mode = ModeSequential
	default:
		return nil, fmt.Errorf("%w: mode %q", ErrBadPlaylist, pl.Mode)
	}
	if pl.IntervalUS < MinPlaylistIntervalUS {
		return nil, fmt.Errorf("%w: %d us", ErrBadInterval, pl.IntervalUS)
	}

	seen := map[string]struct{}{}
	images := make([]string, 0, len(pl.Images))
	for _, id := range pl.Images {
		if _, dup := seen[id]; dup {
			continue
		}
		if _, err := s.ArchiveEntry(ctx, id); err != nil {
			return nil, fmt.Errorf("%w: unknown image %s", ErrBadPlaylist, id)
		}
		seen[id] = struct{}{}
		images = append(images, id)
	}
	pl.Images = images

	if pl.CurrentIndex < 0 || pl.CurrentIndex >= len(pl.Images) {
		pl.CurrentIndex = 0
	}
	if pl.LastUpdate.IsZero() {
		pl.LastUpdate = s.now().UTC()
	}

	if err := store.WriteJSON(ctx, s.store, store.EntityPlaylist, pl); err != nil {
		return nil, err
	}
	return &pl, nil
}

// PatchPlaylist applies a partial update.
type PlaylistPatch struct {
	Active     *bool     `json:"active"`
	Mode       *string   `json:"mode"`
	IntervalUS *int64    `json:"interval_us"`
	Images     *[]string `json:"images"`
}

func (s *Service) PatchPlaylist(ctx context.Context, patch PlaylistPatch) (*Playlist, error) {
	pl, err := s.GetPlaylist(ctx)
	if err != nil {
		return nil, err
	}
	if patch.Active != nil {
		pl.Active = *patch.Active
	}
	if patch.Mode != nil {
		pl.Mode = *patch.Mode
	}
	if patch.IntervalUS != nil {
		pl.IntervalUS = *patch.IntervalUS
	}
	if patch.Images != nil {
		pl.Images = *patch.Images
	}
	if pl.IntervalUS == 0 && !pl.Active {
		// Never-configured playlist being toggled piecemeal; give it the
		// minimum so a later activate is valid.
		pl.IntervalUS = MinPlaylistIntervalUS
	}
	return s.SavePlaylist(ctx, *pl)
}

// DeletePlaylist deactivates and clears the playlist.
func (s *Service) DeletePlaylist(ctx context.Context) error {
	empty := Playlist{Mode: ModeSequential, Images: []string{}, IntervalUS: MinPlaylistIntervalUS}
	empty.LastUpdate = s.now().UTC()
	return store.WriteJSON(ctx, s.store, store.EntityPlaylist, empty)
}
