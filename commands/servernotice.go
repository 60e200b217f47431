// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bureau-foundation/adminbot/admin"
	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/messaging"
)

const serverNoticeHelp = "`!server_notice`\n\n" +
	"Sends a server notice to a set of users. The bot asks for the " +
	"recipients (`all`, a server name, or user IDs), then for the notice " +
	"text. The notice message can be edited until you confirm."

// ServerNotice registers the "!server_notice" command: a conversational
// pipeline that collects recipients and notice text across several chat
// turns before fanning out through the admin API.
func ServerNotice(adminClient *admin.Client, validator bot.Validator) bot.Definition {
	return bot.Definition{
		Keyword: "server_notice",
		Help:    serverNoticeHelp,
		New: func(_ context.Context, env *bot.Env, event messaging.Event) (bot.Command, error) {
			args, err := commandArgs(env, event, "server_notice")
			if err != nil {
				return nil, err
			}
			if len(args) == 1 && args[0] == "help" {
				return newHelpReply(env, event, serverNoticeHelp), nil
			}
			if len(args) != 0 {
				return nil, fmt.Errorf("commands: server_notice takes no arguments")
			}
			return newServerNotice(env, event, adminClient, validator), nil
		},
	}
}

// serverNotice carries the state collected across chat turns.
type serverNotice struct {
	*bot.Pipeline
	env         *bot.Env
	adminClient *admin.Client

	mu sync.Mutex
	// recipientSpec is the raw recipient words from the owner's reply.
	recipientSpec []string
	// notice is the pending notice text; noticeEventID identifies the
	// message it came from so later edits of that message can replace it.
	notice        string
	noticeEventID ref.EventID
}

func newServerNotice(env *bot.Env, event messaging.Event, adminClient *admin.Client, validator bot.Validator) *serverNotice {
	base := bot.NewBase(env, event)
	cmd := &serverNotice{env: env, adminClient: adminClient}
	cmd.Pipeline = bot.NewPipeline(base, func(context.Context) ([]bot.Step, error) {
		return []bot.Step{
			bot.ReactionStep{Command: base, Glyph: bot.ReactionInProgress},
			bot.StepFunc(cmd.captureRecipients),
			bot.StepFunc(cmd.captureNotice),
			&bot.ValidateStep{Command: base, Validator: validator},
			bot.StepFunc(cmd.send),
			bot.ReportStep{Command: base, Keyword: "server_notice"},
			bot.ResultReactionStep{Pipeline: cmd.Pipeline},
		}, nil
	})
	// An edit of the notice message swaps the pending text, up to the
	// moment the command completes.
	cmd.Pipeline.OnReplace = func(_ context.Context, edit messaging.Event) error {
		cmd.mu.Lock()
		defer cmd.mu.Unlock()
		if !cmd.noticeEventID.IsZero() && edit.Replaces() == cmd.noticeEventID {
			cmd.notice = edit.NewContentBody()
		}
		return nil
	}
	return cmd
}

// captureRecipients asks for and records the recipient specification.
func (c *serverNotice) captureRecipients(ctx context.Context, reply *messaging.Event) (bool, bot.Action, error) {
	if reply == nil {
		prompt := "Who should receive the notice? Reply with `all`, a server name, or a list of user IDs."
		if err := c.Reply(ctx, prompt); err != nil {
			return false, bot.Continue, err
		}
		return true, bot.WaitForReply, nil
	}

	words := strings.Fields(bot.StripReplyFallback(reply.Body()))
	if len(words) == 0 {
		if err := c.Reply(ctx, "I couldn't read any recipients from that. Try again."); err != nil {
			return false, bot.Continue, err
		}
		return true, bot.WaitForReply, nil
	}
	for _, word := range words {
		if strings.HasPrefix(word, "@") {
			if _, err := ref.ParseUserID(word); err != nil {
				if replyErr := c.Reply(ctx, fmt.Sprintf("`%s` is not a valid user ID. Try again.", word)); replyErr != nil {
					return false, bot.Continue, replyErr
				}
				return true, bot.WaitForReply, nil
			}
		}
	}

	c.mu.Lock()
	c.recipientSpec = words
	c.mu.Unlock()
	return true, bot.Continue, nil
}

// captureNotice asks for and records the notice text.
func (c *serverNotice) captureNotice(ctx context.Context, reply *messaging.Event) (bool, bot.Action, error) {
	if reply == nil {
		prompt := "Reply with the notice text. You can edit that message until you confirm."
		if err := c.Reply(ctx, prompt); err != nil {
			return false, bot.Continue, err
		}
		return true, bot.WaitForReply, nil
	}

	text := strings.TrimSpace(bot.StripReplyFallback(reply.Body()))
	if text == "" {
		if err := c.Reply(ctx, "The notice text is empty. Try again."); err != nil {
			return false, bot.Continue, err
		}
		return true, bot.WaitForReply, nil
	}

	c.mu.Lock()
	c.notice = text
	c.noticeEventID = reply.EventID
	c.mu.Unlock()
	return true, bot.Continue, nil
}

// send resolves the recipient specification and fans the notice out.
// No resolvable recipients is not an error: another instance may serve
// them, so this instance clears its reaction and bows out silently.
func (c *serverNotice) send(ctx context.Context, _ *messaging.Event) (bool, bot.Action, error) {
	c.mu.Lock()
	spec := c.recipientSpec
	notice := c.notice
	c.mu.Unlock()

	recipients, err := c.resolveRecipients(ctx, spec)
	if err != nil {
		return false, bot.Continue, err
	}
	if len(recipients) == 0 {
		if err := c.SetStatusReaction(ctx, ""); err != nil {
			return false, bot.Continue, err
		}
		return true, bot.Abort, nil
	}

	var failed []string
	for _, user := range recipients {
		eventID, err := c.adminClient.SendServerNotice(ctx, user, notice)
		if err != nil {
			c.env.Logger.Error("server notice failed", "user", user, "error", err)
			c.Report[user.String()] = map[string]any{"status": "failed", "error": err.Error()}
			failed = append(failed, user.String())
			continue
		}
		c.Report[user.String()] = map[string]any{"status": "sent", "event_id": eventID.String()}
	}

	if len(failed) > 0 {
		message := fmt.Sprintf("Notice delivery failed for %d of %d users:\n\n- %s",
			len(failed), len(recipients), strings.Join(failed, "\n- "))
		if err := c.Reply(ctx, message); err != nil {
			return false, bot.Continue, err
		}
		return false, bot.Continue, nil
	}
	return true, bot.Continue, nil
}

// resolveRecipients expands the recipient words into local user IDs.
// "all" and this instance's own server name expand to the full local
// user directory minus appservice and deactivated accounts; explicit
// user IDs are kept when local. Everything else is some other
// instance's territory.
func (c *serverNotice) resolveRecipients(ctx context.Context, spec []string) ([]ref.UserID, error) {
	wantDirectory := false
	var explicit []ref.UserID
	for _, word := range spec {
		switch {
		case word == "all" || word == c.env.ServerName:
			wantDirectory = true
		case strings.HasPrefix(word, "@"):
			user, err := ref.ParseUserID(word)
			if err != nil {
				return nil, fmt.Errorf("commands: invalid recipient %q: %w", word, err)
			}
			if c.env.IsLocalUser(user) {
				explicit = append(explicit, user)
			}
		}
	}

	if !wantDirectory {
		return explicit, nil
	}

	users, err := c.adminClient.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	recipients := make([]ref.UserID, 0, len(users))
	for _, user := range users {
		// Appservice puppets (localpart "_...") and special accounts
		// (support, bot) never read notices.
		if user.Deactivated || user.UserType != "" || strings.HasPrefix(user.Name.Localpart(), "_") {
			continue
		}
		recipients = append(recipients, user.Name)
	}
	return recipients, nil
}
