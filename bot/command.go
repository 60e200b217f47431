// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/adminbot/lib/clock"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/messaging"
)

// Env carries the shared dependencies handed to every command instance.
type Env struct {
	// Session is the bot's authenticated Matrix session.
	Session *messaging.Session
	// Logger is used for structured logging.
	Logger *slog.Logger
	// Clock supplies timestamps (report filenames, TOTP verification).
	Clock clock.Clock
	// Coordinator marks this instance as the one that prompts, reacts,
	// and reports. Non-coordinator instances execute silently.
	Coordinator bool
	// ServerName is the bot's homeserver name. Recipients on other
	// servers are outside the admin API's reach and are skipped.
	ServerName string
}

// IsLocalUser reports whether the user belongs to the bot's homeserver.
func (e *Env) IsLocalUser(user ref.UserID) bool {
	return user.Server() == e.ServerName
}

// Command is a live command instance as the dispatcher sees it.
// Pipeline implements it; concrete commands embed a Pipeline.
type Command interface {
	// Execute starts the pipeline. Returns the accumulated result so
	// far; an error propagates to the dispatcher's execution wrapper.
	Execute(ctx context.Context) (bool, error)
	// ReplyReceived resumes the pipeline with a correlated reply.
	ReplyReceived(ctx context.Context, reply messaging.Event) (bool, error)
	// ReplaceReceived delivers an edit of a command-related event.
	ReplaceReceived(ctx context.Context, edit messaging.Event) (bool, error)
	// SetStatusReaction replaces the live status reaction on the root
	// message. The dispatcher uses it to flag failed commands.
	SetStatusReaction(ctx context.Context, glyph string) error
}

// Base holds the per-command state shared by every command type: the
// originating event, the live status reaction, and the report payload
// steps assemble for final delivery.
type Base struct {
	env  *Env
	root messaging.Event

	// Report collects structured results keyed by recipient. Delivered
	// as a JSON file attachment by ReportStep when non-empty.
	Report map[string]any

	mu         sync.Mutex
	reactionID ref.EventID
}

// NewBase creates the shared command state for a root event.
func NewBase(env *Env, root messaging.Event) *Base {
	return &Base{
		env:    env,
		root:   root,
		Report: make(map[string]any),
	}
}

// Env returns the shared dependencies.
func (b *Base) Env() *Env { return b.env }

// Root returns the originating event.
func (b *Base) Root() messaging.Event { return b.root }

// Owner returns the actor who issued the command. Only the owner's
// replies advance the pipeline.
func (b *Base) Owner() ref.UserID { return b.root.Sender }

// Room returns the room the command was issued in.
func (b *Base) Room() ref.RoomID { return b.root.RoomID }

// Relation positions an outgoing message as a reply to the root
// message, inside the root's thread when the command was issued in one.
func (b *Base) Relation() messaging.Relation {
	threadRoot := b.root.ThreadRoot()
	if threadRoot.IsZero() {
		threadRoot = b.root.EventID
	}
	return messaging.Relation{ReplyTo: b.root.EventID, ThreadRoot: threadRoot}
}

// Reply sends markdown back into the command's thread. Only the
// coordinator instance speaks; for any other instance this is a no-op.
func (b *Base) Reply(ctx context.Context, markdown string) error {
	if !b.env.Coordinator {
		return nil
	}
	_, err := b.env.Session.SendMarkdown(ctx, b.Room(), markdown, b.Relation())
	return err
}

// SetStatusReaction replaces the command's status reaction: the prior
// reaction (if any) is redacted first so at most one is ever live. An
// empty glyph just clears. Only the coordinator instance reacts.
func (b *Base) SetStatusReaction(ctx context.Context, glyph string) error {
	if !b.env.Coordinator {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.reactionID.IsZero() {
		if _, err := b.env.Session.Redact(ctx, b.Room(), b.reactionID, ""); err != nil {
			return err
		}
		b.reactionID = ref.EventID{}
	}
	if glyph == "" {
		return nil
	}
	reactionID, err := b.env.Session.SendReaction(ctx, b.Room(), b.root.EventID, glyph)
	if err != nil {
		return err
	}
	b.reactionID = reactionID
	return nil
}

// SendReport delivers the report payload as a JSON file attachment in
// the command's thread, named "<YYYY_MM_DD-HH_MM>-<keyword>.json".
// No-op when the report is empty or this instance is not the
// coordinator.
func (b *Base) SendReport(ctx context.Context, keyword string) error {
	if !b.env.Coordinator || len(b.Report) == 0 {
		return nil
	}
	data, err := json.MarshalIndent(b.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("bot: encoding report: %w", err)
	}
	filename := b.env.Clock.Now().Format("2006_01_02-15_04") + "-" + keyword + ".json"
	_, err = b.env.Session.SendFile(ctx, b.Room(), filename, "application/json", data, b.Relation())
	return err
}
