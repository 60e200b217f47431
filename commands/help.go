// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"strings"

	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/messaging"
)

// Help registers the "!help" command, listing the given definitions
// with their usage text. Register it last so it can describe the
// others.
func Help(definitions ...bot.Definition) bot.Definition {
	var sections []string
	for _, definition := range definitions {
		if definition.Help == "" {
			continue
		}
		sections = append(sections, definition.Help)
	}
	text := "Available commands:\n\n" + strings.Join(sections, "\n\n")

	return bot.Definition{
		Keyword: "help",
		Help:    "`!help`\n\nShows this text.",
		New: func(_ context.Context, env *bot.Env, event messaging.Event) (bot.Command, error) {
			if _, err := commandArgs(env, event, "help"); err != nil {
				return nil, err
			}
			return newHelpReply(env, event, text), nil
		},
	}
}
