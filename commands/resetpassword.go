// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/bureau-foundation/adminbot/admin"
	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/lib/secret"
	"github.com/bureau-foundation/adminbot/messaging"
)

const (
	passwordLength   = 32
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

const resetPasswordHelp = "`!reset_password <user_id>...`\n\n" +
	"Resets the password of each listed user to a random value and logs " +
	"out all their devices. The new passwords are attached as a JSON report."

// ResetPassword registers the "!reset_password" command. Each target
// user's devices are inventoried, a random password is set, and every
// session is logged out. The new credentials travel only in the report
// attachment.
func ResetPassword(adminClient *admin.Client, validator bot.Validator) bot.Definition {
	spec := accountActionSpec{
		Keyword:   "reset_password",
		Help:      resetPasswordHelp,
		Validator: validator,
		ConfirmMessage: func(recipients []ref.UserID) string {
			return fmt.Sprintf(
				"You are about to reset the password of **%d** user(s) and log out all their devices.",
				len(recipients))
		},
		Apply: func(ctx context.Context, env *bot.Env, user ref.UserID) (any, error) {
			devices, err := adminClient.ListDevices(ctx, user)
			if err != nil {
				return nil, fmt.Errorf("listing devices: %w", err)
			}

			password, err := randomPassword()
			if err != nil {
				return nil, err
			}
			buffer, err := secret.NewFromString(password)
			if err != nil {
				return nil, fmt.Errorf("protecting password: %w", err)
			}
			defer buffer.Close()

			if err := adminClient.ResetPassword(ctx, user, buffer, true); err != nil {
				return nil, fmt.Errorf("resetting password: %w", err)
			}

			deviceIDs := make([]string, len(devices))
			for i, device := range devices {
				deviceIDs[i] = device.DeviceID
			}
			return map[string]any{
				"status":             "reset",
				"password":           password,
				"logged_out_devices": deviceIDs,
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

// randomPassword draws a uniformly random password from the alphabet.
func randomPassword() (string, error) {
	password := make([]byte, passwordLength)
	alphabetSize := big.NewInt(int64(len(passwordAlphabet)))
	for i := range password {
		index, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("commands: generating password: %w", err)
		}
		password[i] = passwordAlphabet[index.Int64()]
	}
	return string(password), nil
}
