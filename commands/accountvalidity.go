// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/adminbot/admin"
	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/messaging"
)

// validityExtension is how far into the future accounts are revalidated.
const validityExtension = 180 * 24 * time.Hour

const accountValidityHelp = "`!account_validity <user_id>...`\n\n" +
	"Extends each listed account's validity by 180 days from now. " +
	"Renewal emails stay enabled."

// AccountValidity registers the "!account_validity" command for
// homeservers running with account expiration enabled.
func AccountValidity(adminClient *admin.Client, validator bot.Validator) bot.Definition {
	spec := accountActionSpec{
		Keyword:   "account_validity",
		Help:      accountValidityHelp,
		Validator: validator,
		ConfirmMessage: func(recipients []ref.UserID) string {
			return fmt.Sprintf(
				"You are about to extend the account validity of **%d** user(s) by 180 days.",
				len(recipients))
		},
		Apply: func(ctx context.Context, env *bot.Env, user ref.UserID) (any, error) {
			expiration := env.Clock.Now().Add(validityExtension)
			if err := adminClient.SetAccountValidity(ctx, user, expiration, true); err != nil {
				return nil, fmt.Errorf("setting account validity: %w", err)
			}
			return map[string]any{
				"status":     "extended",
				"expires_at": expiration.UTC().Format(time.RFC3339),
			}, nil
		},
	}
	return bot.Definition{
		Keyword: spec.Keyword,
		Help:    spec.Help,
		New: func(_ context.Context, env *bot.Env, event messaging.Event) (bot.Command, error) {
			return newAccountCommand(env, event, spec)
		},
	}
}
