// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/messaging"
)

// commandArgs returns the argument words when the event is a
// "!<keyword>" invocation from someone other than the bot itself.
// Anything else is not this command's business.
func commandArgs(env *bot.Env, event messaging.Event, keyword string) ([]string, error) {
	if event.Sender == env.Session.UserID() {
		return nil, bot.ErrNotConcerned
	}
	fields := strings.Fields(event.Body())
	if len(fields) == 0 || fields[0] != "!"+keyword {
		return nil, bot.ErrNotConcerned
	}
	return fields[1:], nil
}

// parseUserIDs parses every argument as a fully-qualified user ID.
func parseUserIDs(args []string) ([]ref.UserID, error) {
	users := make([]ref.UserID, 0, len(args))
	for _, arg := range args {
		user, err := ref.ParseUserID(arg)
		if err != nil {
			return nil, fmt.Errorf("commands: invalid user ID %q: %w", arg, err)
		}
		users = append(users, user)
	}
	return users, nil
}

// newHelpReply is the pipeline behind "!<keyword> help": a single step
// posting the usage text.
func newHelpReply(env *bot.Env, event messaging.Event, help string) bot.Command {
	base := bot.NewBase(env, event)
	return bot.NewPipeline(base, func(context.Context) ([]bot.Step, error) {
		return []bot.Step{bot.StepFunc(func(ctx context.Context, _ *messaging.Event) (bool, bot.Action, error) {
			if err := base.Reply(ctx, help); err != nil {
				return false, bot.Continue, err
			}
			return true, bot.Continue, nil
		})}, nil
	})
}

// accountActionSpec describes one bulk account command: the
// confirmation wording and the per-user admin operation.
type accountActionSpec struct {
	Keyword string
	Help    string
	// Validator gates the destructive part of the pipeline.
	Validator bot.Validator
	// ConfirmMessage summarizes what is about to happen.
	ConfirmMessage func(recipients []ref.UserID) string
	// Apply performs the admin operation on one local user and returns
	// that user's report entry.
	Apply func(ctx context.Context, env *bot.Env, user ref.UserID) (any, error)
}

// newAccountCommand builds the shared pipeline for commands acting on
// an explicit list of user accounts: progress reaction, validation,
// per-user application, report attachment, final reaction.
func newAccountCommand(env *bot.Env, event messaging.Event, spec accountActionSpec) (bot.Command, error) {
	args, err := commandArgs(env, event, spec.Keyword)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 && args[0] == "help" {
		return newHelpReply(env, event, spec.Help), nil
	}
	if len(args) == 0 {
		return nil, bot.ErrNotConcerned
	}
	recipients, err := parseUserIDs(args)
	if err != nil {
		return nil, err
	}

	base := bot.NewBase(env, event)
	var pipeline *bot.Pipeline
	pipeline = bot.NewPipeline(base, func(context.Context) ([]bot.Step, error) {
		// With no local recipient at all this instance has nothing to
		// do: complete silently and let the recipients' own instances
		// handle the command.
		if !anyLocal(env, recipients) {
			return nil, nil
		}
		return []bot.Step{
			bot.ReactionStep{Command: base, Glyph: bot.ReactionInProgress},
			&bot.ValidateStep{
				Command:   base,
				Validator: spec.Validator,
				Message:   spec.ConfirmMessage(recipients),
			},
			bot.StepFunc(func(ctx context.Context, _ *messaging.Event) (bool, bot.Action, error) {
				return applyToAccounts(ctx, env, base, recipients, spec)
			}),
			bot.ReportStep{Command: base, Keyword: spec.Keyword},
			bot.ResultReactionStep{Pipeline: pipeline},
		}, nil
	})
	return pipeline, nil
}

// anyLocal reports whether at least one recipient belongs to this
// instance's homeserver.
func anyLocal(env *bot.Env, recipients []ref.UserID) bool {
	for _, user := range recipients {
		if env.IsLocalUser(user) {
			return true
		}
	}
	return false
}

// applyToAccounts runs the admin operation on every local recipient.
// Remote users are outside this instance's admin API and are recorded
// as skipped; in a multi-homeserver deployment their own instance picks
// them up. Partial failure fails the command but never stops the loop.
func applyToAccounts(ctx context.Context, env *bot.Env, base *bot.Base, recipients []ref.UserID, spec accountActionSpec) (bool, bot.Action, error) {
	var failed []string
	succeeded := 0
	for _, user := range recipients {
		if !env.IsLocalUser(user) {
			base.Report[user.String()] = map[string]any{"status": "skipped", "reason": "not on this server"}
			continue
		}
		entry, err := spec.Apply(ctx, env, user)
		if err != nil {
			env.Logger.Error("account operation failed",
				"keyword", spec.Keyword,
				"user", user,
				"error", err,
			)
			base.Report[user.String()] = map[string]any{"status": "failed", "error": err.Error()}
			failed = append(failed, user.String())
			continue
		}
		base.Report[user.String()] = entry
		succeeded++
	}
	base.Report["summary"] = map[string]any{
		"succeeded":    succeeded,
		"failed":       len(failed),
		"failed_users": failed,
	}

	if len(failed) > 0 {
		message := fmt.Sprintf("Failed for %d of %d users:\n\n- %s",
			len(failed), len(recipients), strings.Join(failed, "\n- "))
		if err := base.Reply(ctx, message); err != nil {
			return false, bot.Continue, err
		}
		return false, bot.Continue, nil
	}
	return true, bot.Continue, nil
}
