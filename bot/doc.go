// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot is the multi-step command execution engine behind the
// admin bot: it turns an interruption-prone, multi-turn chat
// conversation into a resumable command lifecycle.
//
// A Bot receives every room message from the messaging listener. Each
// event is either an edit or reply continuing an in-flight command
// (resolved through two TTL caches: recent events and live commands
// keyed by their root event), or a fresh "!keyword" message matched
// against the registered command definitions. Accepted commands are
// authorized against the role configuration, registered, and executed
// on their own goroutine so a command waiting on a human reply never
// stalls dispatch of unrelated commands.
//
// A command is a Pipeline: an ordered list of Steps walked with a
// cursor. A Step reports an Action (Continue, Retry, Abort,
// WaitForReply); WaitForReply suspends the pipeline until the next
// correlated reply from the command's owner arrives, at which point the
// dispatcher resumes it where it left off. ValidateStep gates
// destructive steps behind a Validator (confirmation keyword or TOTP
// code); ReactionStep and ResultReactionStep maintain the single live
// status reaction on the root message.
package bot
