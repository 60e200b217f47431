// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"

	"github.com/bureau-foundation/adminbot/messaging"
)

// Action is a step's verdict on how the pipeline proceeds.
type Action int

const (
	// Continue records the step's success flag and advances the cursor.
	Continue Action = iota
	// Retry re-invokes the same step without a reply. Only return
	// Retry to re-display a prompt; a validation failure must return
	// WaitForReply or the pipeline spins.
	Retry
	// Abort halts the pipeline immediately. The accumulated result is
	// final and no further steps run.
	Abort
	// WaitForReply suspends the pipeline. The command stays registered
	// in the correlation cache and resumes when the owner's next
	// correlated reply arrives.
	WaitForReply
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case Retry:
		return "retry"
	case Abort:
		return "abort"
	case WaitForReply:
		return "wait_for_reply"
	default:
		return "unknown"
	}
}

// Step is one stage of a command's pipeline. Execute receives the
// correlated reply when the pipeline is resuming at this step, and nil
// when the step is entered fresh. The success flag is ANDed into the
// command's accumulated result. Errors are not handled by the
// pipeline; they propagate to the dispatcher's execution wrapper.
type Step interface {
	Execute(ctx context.Context, reply *messaging.Event) (bool, Action, error)
}

// StepFunc adapts a function to the Step interface.
type StepFunc func(ctx context.Context, reply *messaging.Event) (bool, Action, error)

// Execute calls f.
func (f StepFunc) Execute(ctx context.Context, reply *messaging.Event) (bool, Action, error) {
	return f(ctx, reply)
}
