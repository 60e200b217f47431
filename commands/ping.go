// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/messaging"
)

const pingHelp = "`!ping [server|all]`\n\n" +
	"Checks that the bot is alive. With a server name, only the instance " +
	"serving that homeserver answers."

// Ping registers the "!ping" liveness command. When addressed to a
// different server the pipeline is empty: this instance completes
// silently and the addressed one answers.
func Ping() bot.Definition {
	return bot.Definition{
		Keyword: "ping",
		Help:    pingHelp,
		New: func(_ context.Context, env *bot.Env, event messaging.Event) (bot.Command, error) {
			args, err := commandArgs(env, event, "ping")
			if err != nil {
				return nil, err
			}
			if len(args) == 1 && args[0] == "help" {
				return newHelpReply(env, event, pingHelp), nil
			}

			base := bot.NewBase(env, event)
			addressed := len(args) == 0 || args[0] == "all" || args[0] == env.ServerName
			return bot.NewPipeline(base, func(context.Context) ([]bot.Step, error) {
				if !addressed {
					return nil, nil
				}
				return []bot.Step{bot.StepFunc(func(ctx context.Context, _ *messaging.Event) (bool, bot.Action, error) {
					pong := fmt.Sprintf("pong from `%s`", env.ServerName)
					if err := base.Reply(ctx, pong); err != nil {
						return false, bot.Continue, err
					}
					return true, bot.Continue, nil
				})}, nil
			}), nil
		},
	}
}
