// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/adminbot/lib/clock"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/lib/ttlcache"
	"github.com/bureau-foundation/adminbot/messaging"
)

// ErrNotConcerned is returned by a command factory when the event does
// not match its grammar: wrong keyword, the bot's own message, no
// usable arguments. The dispatcher tries the next definition.
var ErrNotConcerned = errors.New("bot: command not concerned by event")

// Factory parses an event into a new command instance, or returns
// ErrNotConcerned. Any other error is logged and treated as
// non-applicability: a bug in one command's parser must not block the
// others.
type Factory func(ctx context.Context, env *Env, event messaging.Event) (Command, error)

// Definition registers one command type with the dispatcher.
type Definition struct {
	// Keyword is the command name: "!<keyword>" triggers it, roles
	// grant it, reports are named after it.
	Keyword string
	// Help is the markdown usage text shown by the help command.
	Help string
	// New is the parse-and-construct factory.
	New Factory
}

// Cache bounds for the event and command correlation caches.
const (
	cacheCapacity = 5120
	cacheTTL      = 24 * time.Hour
)

// maxCorrelationHops bounds the reply-chain walk. The walk is already
// bounded by cache retention; the cap additionally stops cycles in
// crafted reply chains.
const maxCorrelationHops = 32

// Config configures a Bot.
type Config struct {
	// Session is the bot's authenticated Matrix session.
	Session *messaging.Session
	// Definitions are tried in declaration order against fresh events.
	Definitions []Definition
	// Authorizer gates command execution. If nil, everything is allowed.
	Authorizer *Authorizer
	// AllowedRooms restricts processing to these rooms. Empty means all.
	AllowedRooms []ref.RoomID
	// Coordinator marks this instance as the one that prompts, reacts,
	// and reports.
	Coordinator bool
	// ServerName is the bot's homeserver name. Required.
	ServerName string
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Clock drives cache expiry and report timestamps. If nil, the
	// real clock is used.
	Clock clock.Clock
}

// Bot is the command dispatcher: the single inbound-event handler
// wired into the messaging listener.
type Bot struct {
	env          *Env
	definitions  []Definition
	authorizer   *Authorizer
	allowedRooms map[ref.RoomID]bool
	logger       *slog.Logger

	// events stores every observed event so the reply-chain walk can
	// hop through intermediate messages, including the bot's own
	// prompts. commands maps a command's root event to its live
	// instance. Both expire: a command is abandoned implicitly when
	// its entries age out, after which replies simply stop correlating.
	events   *ttlcache.Cache[ref.EventID, messaging.Event]
	commands *ttlcache.Cache[ref.EventID, Command]

	tasks sync.WaitGroup
}

// New creates a Bot.
func New(config Config) (*Bot, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("bot: Session is required")
	}
	if config.ServerName == "" {
		return nil, fmt.Errorf("bot: ServerName is required")
	}
	if len(config.Definitions) == 0 {
		return nil, fmt.Errorf("bot: at least one command definition is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	authorizer := config.Authorizer
	if authorizer == nil {
		authorizer = NewAuthorizer(nil)
	}

	allowedRooms := make(map[ref.RoomID]bool, len(config.AllowedRooms))
	for _, roomID := range config.AllowedRooms {
		allowedRooms[roomID] = true
	}

	return &Bot{
		env: &Env{
			Session:     config.Session,
			Logger:      logger,
			Clock:       clk,
			Coordinator: config.Coordinator,
			ServerName:  config.ServerName,
		},
		definitions:  config.Definitions,
		authorizer:   authorizer,
		allowedRooms: allowedRooms,
		logger:       logger,
		events:       ttlcache.New[ref.EventID, messaging.Event](cacheCapacity, cacheTTL, clk),
		commands:     ttlcache.New[ref.EventID, Command](cacheCapacity, cacheTTL, clk),
	}, nil
}

// Env returns the shared command environment.
func (b *Bot) Env() *Env { return b.env }

// Definitions returns the registered command definitions in order.
func (b *Bot) Definitions() []Definition { return b.definitions }

// Wait blocks until every launched command goroutine has finished.
// Call after the listener has stopped to drain in-flight commands.
func (b *Bot) Wait() {
	b.tasks.Wait()
}

// HandleEvent is the inbound handler for every room message. It never
// blocks on command execution: continuations and fresh commands run on
// their own goroutines so a command awaiting a slow human reply cannot
// stall dispatch of unrelated events.
func (b *Bot) HandleEvent(ctx context.Context, event messaging.Event) {
	if len(b.allowedRooms) > 0 && !b.allowedRooms[event.RoomID] {
		return
	}
	if event.EventID.IsZero() {
		return
	}

	// Store unconditionally: even irrelevant events (and the bot's own
	// messages) may later anchor a reply-chain walk.
	b.events.Set(event.EventID, event)

	// Edits first. An edit of a command-related event updates that
	// command's pending state; edits never spawn new commands nor
	// advance a pipeline by themselves.
	if target := event.Replaces(); !target.IsZero() {
		if cmd := b.commandForEvent(target); cmd != nil {
			b.launch(ctx, cmd, event.EventID, func(ctx context.Context) (bool, error) {
				return cmd.ReplaceReceived(ctx, event)
			})
		}
		return
	}

	// Reply and thread correlation: resume the owning command.
	if cmd := b.correlate(event); cmd != nil {
		b.launch(ctx, cmd, event.EventID, func(ctx context.Context) (bool, error) {
			return cmd.ReplyReceived(ctx, event)
		})
		return
	}

	// Fresh parse: first definition whose factory accepts claims the
	// event; at most one command type ever claims a given event.
	for _, definition := range b.definitions {
		cmd, err := definition.New(ctx, b.env, event)
		if errors.Is(err, ErrNotConcerned) {
			continue
		}
		if err != nil {
			b.logger.Warn("command parse failed",
				"keyword", definition.Keyword,
				"event_id", event.EventID,
				"error", err,
			)
			continue
		}

		if !b.authorizer.CanExecute(event.Sender, definition.Keyword) {
			b.logger.Info("command denied",
				"keyword", definition.Keyword,
				"sender", event.Sender,
				"event_id", event.EventID,
			)
			if b.env.Coordinator {
				relation := messaging.Relation{ReplyTo: event.EventID, ThreadRoot: event.EventID}
				if _, err := b.env.Session.SendText(ctx, event.RoomID,
					"You are not allowed to execute this command.", relation); err != nil {
					b.logger.Error("failed to send denial reply", "error", err)
				}
			}
			return
		}

		b.commands.Set(event.EventID, cmd)
		b.logger.Info("command accepted",
			"keyword", definition.Keyword,
			"sender", event.Sender,
			"event_id", event.EventID,
		)
		b.launch(ctx, cmd, event.EventID, cmd.Execute)
		return
	}
}

// commandForEvent resolves an event ID to the command it belongs to:
// either the command rooted there, or the command correlated to the
// stored event.
func (b *Bot) commandForEvent(eventID ref.EventID) Command {
	if cmd, ok := b.commands.Get(eventID); ok {
		return cmd
	}
	if stored, ok := b.events.Get(eventID); ok {
		return b.correlate(stored)
	}
	return nil
}

// correlate resolves an event to the in-flight command it continues.
// The thread relation is tried first (one lookup); otherwise the
// in-reply-to chain is walked through the event cache until it reaches
// a command root or goes cold. A broken chain (expired or evicted
// entries) silently ends correlation; that false negative is accepted,
// the event just parses as a fresh command or is ignored.
func (b *Bot) correlate(event messaging.Event) Command {
	if root := event.ThreadRoot(); !root.IsZero() {
		if cmd, ok := b.commands.Get(root); ok {
			return cmd
		}
	}

	current := event.ReplyTo()
	for hop := 0; hop < maxCorrelationHops && !current.IsZero(); hop++ {
		if cmd, ok := b.commands.Get(current); ok {
			return cmd
		}
		previous, ok := b.events.Get(current)
		if !ok {
			return nil
		}
		current = previous.ReplyTo()
	}
	return nil
}

// launch runs one command entry point on its own goroutine. The
// wrapper is the last line of defense: panics and errors inside a
// command are caught, logged, and converted to a failure reaction so
// the event loop and other in-flight commands are never harmed.
func (b *Bot) launch(ctx context.Context, cmd Command, eventID ref.EventID, run func(context.Context) (bool, error)) {
	b.tasks.Add(1)
	go func() {
		defer b.tasks.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				b.logger.Error("command panicked",
					"event_id", eventID,
					"panic", recovered,
				)
				b.markFailed(ctx, cmd, eventID)
			}
		}()

		if _, err := run(ctx); err != nil {
			b.logger.Error("command failed",
				"event_id", eventID,
				"error", err,
			)
			b.markFailed(ctx, cmd, eventID)
		}
	}()
}

// markFailed replaces the command's status reaction with the failure
// glyph, best effort.
func (b *Bot) markFailed(ctx context.Context, cmd Command, eventID ref.EventID) {
	if err := cmd.SetStatusReaction(ctx, ReactionFailure); err != nil {
		b.logger.Error("failed to set failure reaction",
			"event_id", eventID,
			"error", err,
		)
	}
}
