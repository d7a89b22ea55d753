// Package commands is the per-device FIFO the frame drains on each wake.
package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/framehub/artframe/internal/store"
)

// Command names the device understands, closed set.
const (
	CmdStayAwake        = "stay_awake"
	CmdForceUpdate      = "force_update"
	CmdUpdateNow        = "update_now"
	CmdEnableStreaming  = "enable_streaming"
	CmdDisableStreaming = "disable_streaming"
)

var ErrUnknownCommand = errors.New("unknown command")

// Queues deeper than this drop their oldest entries; the device polls every
// wake cycle, so a long backlog means the command is stale anyway.
const maxQueued = 10

type Command struct {
	Command    string    `json:"command"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DeviceID   string    `json:"deviceId"`
}

func validName(name string) bool {
	switch name {
	case CmdStayAwake, CmdForceUpdate, CmdUpdateNow, CmdEnableStreaming, CmdDisableStreaming:
		return true
	}
	return false
}

// Queue stores pending commands per device in a single entity.
type Queue struct {
	store store.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewQueue(st store.Store, log *slog.Logger) *Queue {
	return &Queue{store: st, log: log, now: time.Now}
}

// queues is the persisted shape: deviceId → pending commands in insertion
// order.
type queues map[string][]Command

func decodeQueues(raw []byte) (queues, error) {
	q := queues{}
	if raw == nil {
		return q, nil
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("decode command queues: %w", err)
	}
	return q, nil
}

// Enqueue appends a command and truncates the device's queue to the newest
// maxQueued entries.
func (q *Queue) Enqueue(ctx context.Context, deviceID, name string, durationMS int64) (*Command, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	cmd := Command{
		Command:    name,
		DurationMS: durationMS,
		Timestamp:  q.now().UTC(),
		DeviceID:   deviceID,
	}
	err := q.store.Update(ctx, store.EntityCommands, func(cur []byte) ([]byte, error) {
		all, err := decodeQueues(cur)
		if err != nil {
			return nil, err
		}
		pending := append(all[deviceID], cmd)
		if len(pending) > maxQueued {
			pending = pending[len(pending)-maxQueued:]
		}
		all[deviceID] = pending
		return json.Marshal(all)
	})
	if err != nil {
		return nil, err
	}
	q.log.Info("command queued", "deviceId", deviceID, "command", name)
	return &cmd, nil
}

// Drain returns every pending command in insertion order and clears the
// queue in the same store update. An empty queue drains to an empty slice.
func (q *Queue) Drain(ctx context.Context, deviceID string) ([]Command, error) {
	var drained []Command
	err := q.store.Update(ctx, store.EntityCommands, func(cur []byte) ([]byte, error) {
		all, err := decodeQueues(cur)
		if err != nil {
			return nil, err
		}
		pending := all[deviceID]
		if len(pending) == 0 {
			drained = []Command{}
			return nil, nil // nothing to clear; skip the write
		}
		drained = pending
		delete(all, deviceID)
		return json.Marshal(all)
	})
	if err != nil {
		return nil, err
	}
	return drained, nil
}

// Pending returns the queue without consuming it (UI view).
func (q *Queue) Pending(ctx context.Context, deviceID string) ([]Command, error) {
	raw, err := q.store.Read(ctx, store.EntityCommands)
	if errors.Is(err, store.ErrNotFound) {
		return []Command{}, nil
	}
	if err != nil {
		return nil, err
	}
	all, err := decodeQueues(raw)
	if err != nil {
		return nil, err
	}
	if all[deviceID] == nil {
		return []Command{}, nil
	}
	return all[deviceID], nil
}
