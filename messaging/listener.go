// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/adminbot/lib/ref"
)

// maxSyncRetries is the number of consecutive /sync failures allowed
// before the listener gives up. Each retry uses a 1-second server-side
// timeout so the HTTP round-trip itself provides backoff.
const maxSyncRetries = 5

// longPollTimeout is the server-side long-poll hold time in
// milliseconds for normal /sync calls. The server holds the connection
// for up to this duration, returning immediately when new events
// arrive. 30 seconds matches the Matrix client-server spec
// recommendation.
const longPollTimeout = 30000

// retryTimeout is the server-side timeout in milliseconds used after
// a /sync error. Short so the retry completes quickly and the next
// attempt can proceed.
const retryTimeout = 1000

// EventHandler receives one timeline event. Handlers must not block:
// the listener calls them inline from the sync loop, and a slow handler
// stalls event delivery for every room.
type EventHandler func(ctx context.Context, event Event)

// Listener drives the Matrix /sync long-poll loop and delivers
// m.room.message timeline events to a handler. Events that predate Run
// are never delivered: the initial sync establishes the stream position
// and its backlog is discarded, so a restarted bot does not re-execute
// commands from room history.
type Listener struct {
	session *Session
	handler EventHandler
	logger  *slog.Logger
	filter  string
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// Session is the authenticated session to sync with.
	Session *Session
	// Handler receives each timeline event.
	Handler EventHandler
	// Rooms restricts sync to these rooms. Empty means all joined rooms.
	Rooms []ref.RoomID
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// NewListener creates a Listener. The sync filter is fixed at
// construction: timeline events are restricted to m.room.message, and
// presence and account data are suppressed entirely.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("messaging: listener requires a session")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("messaging: listener requires a handler")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		session: config.Session,
		handler: config.Handler,
		logger:  logger,
		filter:  buildInlineFilter(config.Rooms),
	}, nil
}

// buildInlineFilter constructs the inline JSON filter string for /sync.
// Timeline events are restricted to m.room.message; state, presence,
// and account data are suppressed. When rooms is non-empty the filter
// additionally scopes to those rooms.
func buildInlineFilter(rooms []ref.RoomID) string {
	roomFilter := map[string]any{
		"timeline": map[string]any{"types": []string{"m.room.message"}},
		"state":    map[string]any{"types": []string{}},
	}
	if len(rooms) > 0 {
		ids := make([]string, len(rooms))
		for i, roomID := range rooms {
			ids[i] = roomID.String()
		}
		roomFilter["rooms"] = ids
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}

// Run blocks, delivering timeline events to the handler until ctx is
// cancelled (returns ctx.Err()) or /sync fails maxSyncRetries
// consecutive times (returns the sync error).
//
// The first sync uses timeout=0 to capture the current stream position
// without blocking; its events are discarded.
func (l *Listener) Run(ctx context.Context) error {
	initial, err := l.session.Sync(ctx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     l.filter,
	})
	if err != nil {
		return fmt.Errorf("messaging: initial sync: %w", err)
	}
	nextBatch := initial.NextBatch

	var syncRetries int
	for {
		// On retry after a sync error, use a short server-side
		// timeout (1s) so the HTTP round-trip itself provides
		// backoff. On first attempt or after success, use the
		// normal 30s long-poll hold.
		syncTimeout := longPollTimeout
		if syncRetries > 0 {
			syncTimeout = retryTimeout
		}
		response, err := l.session.Sync(ctx, SyncOptions{
			Since:      nextBatch,
			SetTimeout: true,
			Timeout:    syncTimeout,
			Filter:     l.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			syncRetries++
			// TCP-level errors (connection reset, EOF) often indicate
			// a poisoned connection in Go's HTTP pool. Drop idle
			// connections so the next attempt opens a fresh socket.
			l.session.CloseIdleConnections()
			if syncRetries > maxSyncRetries {
				return fmt.Errorf("messaging: sync failed %d consecutive times: %w", syncRetries, err)
			}
			l.logger.Warn("sync error, retrying",
				"attempt", syncRetries,
				"max_attempts", maxSyncRetries,
				"error", err,
			)
			continue
		}
		syncRetries = 0
		nextBatch = response.NextBatch

		for roomID, joined := range response.Rooms.Join {
			for _, event := range joined.Timeline.Events {
				// /sync omits room_id on timeline events; the room is
				// the map key. Fill it in so handlers see a complete event.
				if event.RoomID.IsZero() {
					event.RoomID = roomID
				}
				l.deliver(ctx, event)
			}
		}
	}
}

// deliver invokes the handler, containing panics so one bad event
// cannot take down the sync loop.
func (l *Listener) deliver(ctx context.Context, event Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.logger.Error("event handler panicked",
				"event_id", event.EventID,
				"room_id", event.RoomID,
				"panic", recovered,
			)
		}
	}()
	l.handler(ctx, event)
}
