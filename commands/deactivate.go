// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/adminbot/admin"
	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/messaging"
)

const deactivateHelp = "`!deactivate <user_id>...`\n\n" +
	"Deactivates each listed account: the user is logged out everywhere " +
	"and can no longer log in. This cannot be undone."

// Deactivate registers the "!deactivate" command. Account data is kept
// (no erasure); Synapse deactivation is irreversible either way, which
// is why the confirmation wording is blunt.
func Deactivate(adminClient *admin.Client, validator bot.Validator) bot.Definition {
	spec := accountActionSpec{
		Keyword:   "deactivate",
		Help:      deactivateHelp,
		Validator: validator,
		ConfirmMessage: func(recipients []ref.UserID) string {
			return fmt.Sprintf(
				"You are about to **permanently deactivate %d account(s)**. This cannot be undone.",
				len(recipients))
		},
		Apply: func(ctx context.Context, env *bot.Env, user ref.UserID) (any, error) {
			// Inventory the devices before they are gone; the report is
			// the last record of what was logged in where.
			devices, err := adminClient.ListDevices(ctx, user)
			if err != nil {
				return nil, fmt.Errorf("listing devices: %w", err)
			}
			if err := adminClient.DeactivateAccount(ctx, user, false); err != nil {
				return nil, fmt.Errorf("deactivating account: %w", err)
			}
			deviceIDs := make([]string, len(devices))
			for i, device := range devices {
				deviceIDs[i] = device.DeviceID
			}
			return map[string]any{"status": "deactivated", "devices": deviceIDs}, nil
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
