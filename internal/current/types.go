package current

import (
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("image not found")
	ErrNoImage     = errors.New("no current image")
	ErrBadBuffer   = errors.New("pixel buffer does not match target dimensions")
	ErrBadInterval = errors.New("playlist interval below minimum")
	ErrBadPlaylist = errors.New("invalid playlist")
	ErrNoOriginal  = errors.New("original bytes not retained for image")
)

// Archive and history share one cap; eviction removes both rows and the
// image's blobs together.
const maxArchived = 100

// MinPlaylistIntervalUS is five minutes in microseconds.
const MinPlaylistIntervalUS = 5 * 60 * 1_000_000

// Meta is the "now showing" record the device polls for.
type Meta struct {
	ImageID         string    `json:"imageId"`
	Title           string    `json:"title"`
	Artist          string    `json:"artist,omitempty"`
	Source          string    `json:"source,omitempty"`
	Rotation        int       `json:"rotation"`
	Width           int       `json:"width"`
	Height          int       `json:"height"`
	Timestamp       time.Time `json:"timestamp"`
	SleepDurationUS int64     `json:"sleepDuration"`
	AIGenerated     bool      `json:"aiGenerated,omitempty"`
}

// ArchiveEntry is one stored image. Pixels, thumbnail and (optionally) the
// original source bytes live in blobs keyed by ImageID.
type ArchiveEntry struct {
	ImageID     string    `json:"imageId"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist,omitempty"`
	Source      string    `json:"source,omitempty"`
	Rotation    int       `json:"rotation"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Timestamp   time.Time `json:"timestamp"`
	AIGenerated bool      `json:"aiGenerated,omitempty"`
	HasOriginal bool      `json:"hasOriginal"`
}

// HistoryEntry mirrors the archive row for the UI timeline. The thumbnail is
// served from the image's blob, not embedded here.
type HistoryEntry struct {
	ImageID     string    `json:"imageId"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist,omitempty"`
	Source      string    `json:"source,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	AIGenerated bool      `json:"aiGenerated,omitempty"`
}

// Playlist modes, closed set.
const (
	ModeSequential = "sequential"
	ModeRandom     = "random"
)

type Playlist struct {
	Active       bool      `json:"active"`
	Mode         string    `json:"mode"`
	IntervalUS   int64     `json:"interval_us"`
	Images       []string  `json:"images"`
	CurrentIndex int       `json:"currentIndex"`
	LastUpdate   time.Time `json:"lastUpdate"`
}

// Orientation values for Settings.
const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

type Settings struct {
	DefaultSleepDurationUS int64  `json:"defaultSleepDuration_us"`
	DevMode                bool   `json:"devMode"`
	DevServerHost          string `json:"devServerHost,omitempty"`
	DefaultOrientation     string `json:"defaultOrientation"`
	NightSleepEnabled      bool   `json:"nightSleepEnabled"`
	NightSleepStartHour    int    `json:"nightSleepStartHour"`
	NightSleepEndHour      int    `json:"nightSleepEndHour"`
}

func DefaultSettings() Settings {
	return Settings{
		DefaultSleepDurationUS: 3_600_000_000, // one hour
		DefaultOrientation:     OrientationPortrait,
		NightSleepStartHour:    22,
		NightSleepEndHour:      6,
	}
}

// blob key helpers

func pixelsKey(imageID string) string    { return "images/" + imageID + ".rgb" }
func originalKey(imageID string) string  { return "images/" + imageID + ".orig" }
func thumbnailKey(imageID string) string { return "images/" + imageID + ".thumb.png" }
