package current

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/framehub/artframe/internal/store"
)

var ErrBadSettings = errors.New("invalid settings")

// GetSettings returns stored settings or defaults before first save.
func (s *Service) GetSettings(ctx context.Context) (*Settings, error) {
	var st Settings
	err := store.ReadJSON(ctx, s.store, store.EntitySettings, &st)
	if errors.Is(err, store.ErrNotFound) {
		st = DefaultSettings()
		return &st, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveSettings validates and persists the full settings document.
func (s *Service) SaveSettings(ctx context.Context, st Settings) (*Settings, error) {
	if st.DefaultSleepDurationUS <= 0 {
		return nil, fmt.Errorf("%w: defaultSleepDuration must be positive", ErrBadSettings)
	}
	switch st.DefaultOrientation {
	case OrientationPortrait, OrientationLandscape:
	default:
		return nil, fmt.Errorf("%w: orientation %q", ErrBadSettings, st.DefaultOrientation)
	}
	if st.NightSleepStartHour < 0 || st.NightSleepStartHour > 23 ||
		st.NightSleepEndHour < 0 || st.NightSleepEndHour > 23 {
		return nil, fmt.Errorf("%w: night sleep hours out of range", ErrBadSettings)
	}
	if err := store.WriteJSON(ctx, s.store, store.EntitySettings, st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SleepDuration computes what the device should sleep after this poll, in
// microseconds. Inside the night window the frame sleeps straight through to
// the window's end instead of waking on the normal cadence. The window may
// wrap midnight (start 22, end 6).
func SleepDuration(now time.Time, st Settings, imageSleepUS int64) int64 {
	base := st.DefaultSleepDurationUS
	if imageSleepUS > 0 {
		base = imageSleepUS
	}
	if !st.NightSleepEnabled {
		return base
	}

	hour := now.Hour()
	inWindow := false
	if st.NightSleepStartHour <= st.NightSleepEndHour {
		inWindow = hour >= st.NightSleepStartHour && hour < st.NightSleepEndHour
	} else {
		inWindow = hour >= st.NightSleepStartHour || hour < st.NightSleepEndHour
	}
	if !inWindow {
		return base
	}

	end := time.Date(now.Year(), now.Month(), now.Day(),
		st.NightSleepEndHour, 0, 0, 0, now.Location())
	if !end.After(now) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(now).Microseconds()
}
