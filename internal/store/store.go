package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an entity or blob has never been written.
	ErrNotFound = errors.New("entity not found")
)

// Logical entity names. Each entity is an independently versioned JSON
// document; invariants never span two entities, so per-entity atomicity is
// all the Store guarantees.
const (
	EntityCurrent       = "current"
	EntityImages        = "images"
	EntityHistory       = "history"
	EntityDevices       = "devices"
	EntityCommands      = "commands"
	EntityPlaylist      = "playlist"
	EntitySettings      = "settings"
	EntityForceOTA      = "force-ota"
	EntityFirmwareInfo  = "firmware-info"
	EntityLogs          = "logs"
	EntitySerialStreams = "serial-streams"
)

// UpdateFunc receives the current serialized entity (nil when the entity has
// never been written) and returns the bytes to persist. Returning an error
// aborts the update without touching stored state.
type UpdateFunc func(cur []byte) ([]byte, error)

// Store provides per-entity atomic read/write/update of JSON documents plus
// a flat blob namespace for pixel buffers and thumbnails. Writes are durable
// before they return. Concurrent Updates of the same entity serialize.
type Store interface {
	Read(ctx context.Context, entity string) ([]byte, error)
	Write(ctx context.Context, entity string, data []byte) error
	Update(ctx context.Context, entity string, fn UpdateFunc) error

	ReadBlob(ctx context.Context, key string) ([]byte, error)
	WriteBlob(ctx context.Context, key string, data []byte) error
	DeleteBlob(ctx context.Context, key string) error

	Close() error
}

// ReadJSON reads entity and unmarshals it into v. ErrNotFound passes through
// untouched so callers can fall back to zero values.
func ReadJSON(ctx context.Context, s Store, entity string, v any) error {
	raw, err := s.Read(ctx, entity)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("store: decode %s: %w", entity, err)
	}
	return nil
}

// WriteJSON marshals v and writes it as entity.
func WriteJSON(ctx context.Context, s Store, entity string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", entity, err)
	}
	return s.Write(ctx, entity, raw)
}
