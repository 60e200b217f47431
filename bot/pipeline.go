// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"sync"

	"github.com/bureau-foundation/adminbot/messaging"
)

// Pipeline is the command state machine: an ordered step list walked
// with a cursor that survives suspension across chat turns.
//
// Steps are built lazily by the CreateSteps hook on first Execute, not
// re-created across resumes, so step-local state (captured recipients,
// pending notice content) persists between turns. A mutex serializes
// Execute and the resume entry points: a reply arriving while a step is
// still running waits its turn, and the cursor never regresses.
type Pipeline struct {
	*Base

	// createSteps builds the step list once, at first execution. An
	// empty list is the mechanism for "silently not applicable": the
	// pipeline completes with the default true result and no visible
	// side effects.
	createSteps func(ctx context.Context) ([]Step, error)

	// OnReplace, when set, receives edits of command-related events.
	// Commands that capture message content (the server notice text)
	// use it to swap the pending content. Called under the pipeline
	// mutex.
	OnReplace func(ctx context.Context, edit messaging.Event) error

	mu     sync.Mutex
	steps  []Step
	built  bool
	cursor int
	result bool
	done   bool
}

// NewPipeline creates a pipeline over the shared command state.
func NewPipeline(base *Base, createSteps func(ctx context.Context) ([]Step, error)) *Pipeline {
	return &Pipeline{
		Base:        base,
		createSteps: createSteps,
		result:      true,
	}
}

// Execute builds the step list and runs the pipeline from the start.
func (p *Pipeline) Execute(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.built {
		steps, err := p.createSteps(ctx)
		if err != nil {
			return false, err
		}
		p.steps = steps
		p.built = true
	}
	return p.run(ctx, nil)
}

// ReplyReceived resumes the pipeline with a correlated reply. Replies
// from anyone but the command's owner never advance the cursor; they
// are ignored, not rejected.
func (p *Pipeline) ReplyReceived(ctx context.Context, reply messaging.Event) (bool, error) {
	if reply.Sender != p.Owner() {
		return true, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.built || p.done {
		return p.result, nil
	}
	return p.run(ctx, &reply)
}

// ReplaceReceived delivers an edit of a command-related event. Edits
// never advance the pipeline; they only update pending state via the
// OnReplace hook, and only when sent by the owner.
func (p *Pipeline) ReplaceReceived(ctx context.Context, edit messaging.Event) (bool, error) {
	if edit.Sender != p.Owner() {
		return true, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.OnReplace == nil || p.done {
		return true, nil
	}
	if err := p.OnReplace(ctx, edit); err != nil {
		return false, err
	}
	return true, nil
}

// run walks steps from the cursor. The reply is delivered only to the
// step at the cursor; steps entered afterwards within the same call are
// fresh and receive nil. Callers hold p.mu.
func (p *Pipeline) run(ctx context.Context, reply *messaging.Event) (bool, error) {
	for p.cursor < len(p.steps) {
		success, action, err := p.steps[p.cursor].Execute(ctx, reply)
		reply = nil
		if err != nil {
			return false, err
		}
		p.result = p.result && success

		switch action {
		case Abort:
			p.done = true
			return p.result, nil
		case WaitForReply:
			// Suspended, not yet failed. The command holds no live
			// goroutine while waiting; the next correlated reply
			// triggers a fresh resume.
			return true, nil
		case Continue:
			p.cursor++
		case Retry:
			// Same step again, without a reply.
		}
	}
	p.done = true
	return p.result, nil
}

// Result returns the accumulated result: the AND of every completed
// step's success flag. Steps may read it mid-pipeline (the result
// reaction step does) since they run under the pipeline mutex.
func (p *Pipeline) Result() bool {
	return p.result
}
