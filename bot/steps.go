// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"

	"github.com/bureau-foundation/adminbot/messaging"
)

// Status reaction glyphs.
const (
	ReactionInProgress = "🚀"
	ReactionSuccess    = "✅"
	ReactionFailure    = "❌"
)

// ReactionStep replaces the command's status reaction with a fixed
// glyph and continues. An empty glyph clears the current reaction.
type ReactionStep struct {
	Command *Base
	Glyph   string
}

func (s ReactionStep) Execute(ctx context.Context, _ *messaging.Event) (bool, Action, error) {
	if err := s.Command.SetStatusReaction(ctx, s.Glyph); err != nil {
		return false, Continue, err
	}
	return true, Continue, nil
}

// ResultReactionStep posts the terminal reaction: success when every
// prior step succeeded, failure otherwise. Place it last in the
// pipeline.
type ResultReactionStep struct {
	Pipeline *Pipeline
}

func (s ResultReactionStep) Execute(ctx context.Context, _ *messaging.Event) (bool, Action, error) {
	glyph := ReactionSuccess
	if !s.Pipeline.Result() {
		glyph = ReactionFailure
	}
	if err := s.Pipeline.SetStatusReaction(ctx, glyph); err != nil {
		return false, Continue, err
	}
	return true, Continue, nil
}

// ReportStep delivers the command's report payload as a JSON file
// attachment in the command's thread.
type ReportStep struct {
	Command *Base
	Keyword string
}

func (s ReportStep) Execute(ctx context.Context, _ *messaging.Event) (bool, Action, error) {
	if err := s.Command.SendReport(ctx, s.Keyword); err != nil {
		return false, Continue, err
	}
	return true, Continue, nil
}

// ValidateStep gates the rest of the pipeline behind a Validator.
//
// Entered fresh (no reply), it prompts: the optional Message followed
// by the validator's prompt, plus the validator's pending reaction,
// then suspends. On each resume it ignores replies from anyone but the
// command's owner, otherwise delegates to the validator: pass advances
// the pipeline, fail suspends again so the owner may retry until the
// command expires from the cache.
type ValidateStep struct {
	Command   *Base
	Validator Validator
	// Message is prepended to the validator's prompt, typically a
	// summary of what is about to be confirmed.
	Message string
}

func (s *ValidateStep) Execute(ctx context.Context, reply *messaging.Event) (bool, Action, error) {
	if reply == nil {
		text := s.Message
		if prompt := s.Validator.Prompt(); prompt != "" {
			if text != "" {
				text += "\n\n"
			}
			text += prompt
		}
		if text != "" {
			if err := s.Command.Reply(ctx, text); err != nil {
				return false, Continue, err
			}
		}
		if glyph := s.Validator.Reaction(); glyph != "" {
			if err := s.Command.SetStatusReaction(ctx, glyph); err != nil {
				return false, Continue, err
			}
		}
		return true, WaitForReply, nil
	}

	if reply.Sender != s.Command.Owner() {
		return true, WaitForReply, nil
	}

	ok, err := s.Validator.Validate(ctx, *reply, s.Command)
	if err != nil {
		return false, Continue, err
	}
	if !ok {
		return true, WaitForReply, nil
	}
	return true, Continue, nil
}
