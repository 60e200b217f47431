// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"strings"

	"github.com/bureau-foundation/adminbot/lib/clock"
	"github.com/bureau-foundation/adminbot/lib/secret"
	"github.com/bureau-foundation/adminbot/lib/totp"
	"github.com/bureau-foundation/adminbot/messaging"
)

// Validator is the pluggable second gate consulted by ValidateStep
// before destructive steps run.
type Validator interface {
	// Prompt is the text asking the user to validate. Empty means no
	// prompt is sent.
	Prompt() string
	// Reaction is the glyph marking the command as pending validation.
	// Empty means the status reaction is left alone.
	Reaction() string
	// Validate checks the owner's reply. A false return suspends the
	// pipeline for another attempt; rejection feedback (if any) is the
	// validator's job. An error propagates to the dispatcher wrapper.
	Validate(ctx context.Context, reply messaging.Event, cmd *Base) (bool, error)
}

// confirmationWords are the accepted confirmation replies.
var confirmationWords = []string{"yes", "ok", "confirm"}

// ConfirmValidator accepts a plain confirmation keyword.
type ConfirmValidator struct{}

func (ConfirmValidator) Prompt() string {
	return "Please reply to this message with `yes`, `ok` or `confirm` to continue."
}

func (ConfirmValidator) Reaction() string { return "✏️" }

// Validate strips the quoted-reply fallback, trims whitespace and
// trailing periods, and checks membership in the confirmation words.
func (ConfirmValidator) Validate(_ context.Context, reply messaging.Event, _ *Base) (bool, error) {
	body := strings.TrimSpace(StripReplyFallback(reply.Body()))
	body = strings.TrimRight(body, ".")
	for _, word := range confirmationWords {
		if body == word {
			return true, nil
		}
	}
	return false, nil
}

// TOTPValidator checks a 6-digit time-based one-time code against the
// command owner's configured seed. Rejections come with a specific
// corrective reply so the owner knows whether the code was malformed,
// no seed is configured for them, or the code was simply wrong.
type TOTPValidator struct {
	// Seeds maps a fully-qualified user ID to that user's base32 TOTP
	// seed. Lookup is by the command OWNER, not the replier; the
	// pipeline already filters non-owner replies.
	Seeds map[string]*secret.Buffer
	// Clock supplies the verification time.
	Clock clock.Clock
}

func (v *TOTPValidator) Prompt() string {
	return "Please reply to this message with a 6-digit authentication code."
}

func (v *TOTPValidator) Reaction() string { return "🔢" }

func (v *TOTPValidator) Validate(ctx context.Context, reply messaging.Event, cmd *Base) (bool, error) {
	code := strings.ReplaceAll(strings.TrimSpace(StripReplyFallback(reply.Body())), " ", "")
	if !isSixDigits(code) {
		if err := cmd.Reply(ctx, "Couldn't parse the authentication code. It should be a 6-digit number."); err != nil {
			return false, err
		}
		return false, nil
	}

	seed, ok := v.Seeds[cmd.Owner().String()]
	if !ok {
		if err := cmd.Reply(ctx, "You are not allowed to use this authentication method."); err != nil {
			return false, err
		}
		return false, nil
	}

	if !totp.Verify(seed.String(), code, v.Clock.Now()) {
		if err := cmd.Reply(ctx, "Wrong authentication code."); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func isSixDigits(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
