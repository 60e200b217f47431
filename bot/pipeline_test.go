// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/bureau-foundation/adminbot/messaging"
)

// recordingStep logs each invocation and returns a scripted verdict.
type recordingStep struct {
	calls   int
	replies []*messaging.Event
	verdict func(call int, reply *messaging.Event) (bool, Action, error)
}

func (s *recordingStep) Execute(_ context.Context, reply *messaging.Event) (bool, Action, error) {
	s.calls++
	s.replies = append(s.replies, reply)
	return s.verdict(s.calls, reply)
}

func always(success bool, action Action) func(int, *messaging.Event) (bool, Action, error) {
	return func(int, *messaging.Event) (bool, Action, error) {
		return success, action, nil
	}
}

func newTestPipeline(t *testing.T, owner string, steps ...Step) *Pipeline {
	t.Helper()
	f := newFakeMatrix(t)
	base := NewBase(testEnv(f, nil), rootEvent("$root", owner, "!cmd"))
	return NewPipeline(base, func(context.Context) ([]Step, error) {
		return steps, nil
	})
}

func TestPipelineEmptyStepsCompletesSilently(t *testing.T) {
	pipeline := newTestPipeline(t, "@user1:test.local")

	result, err := pipeline.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result {
		t.Error("empty pipeline should complete with a true result")
	}
	// A completed pipeline ignores later replies.
	result, err = pipeline.ReplyReceived(context.Background(), threadReply("$r1", "@user1:test.local", "yes", "$root"))
	if err != nil || !result {
		t.Errorf("reply after completion: got (%v, %v), want (true, nil)", result, err)
	}
}

func TestPipelineRunsStepsInOrder(t *testing.T) {
	var order []int
	step := func(n int) Step {
		return StepFunc(func(context.Context, *messaging.Event) (bool, Action, error) {
			order = append(order, n)
			return true, Continue, nil
		})
	}
	pipeline := newTestPipeline(t, "@user1:test.local", step(1), step(2), step(3))

	result, err := pipeline.Execute(context.Background())
	if err != nil || !result {
		t.Fatalf("Execute: got (%v, %v)", result, err)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("steps ran in order %v", order)
	}
}

func TestPipelineResultIsConjunction(t *testing.T) {
	failing := &recordingStep{verdict: always(false, Continue)}
	passing := &recordingStep{verdict: always(true, Continue)}
	pipeline := newTestPipeline(t, "@user1:test.local", passing, failing)

	result, err := pipeline.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result {
		t.Error("one failed step should make the accumulated result false")
	}
}

func TestPipelineAbortStopsRemainingSteps(t *testing.T) {
	after := &recordingStep{verdict: always(true, Continue)}
	pipeline := newTestPipeline(t, "@user1:test.local",
		&recordingStep{verdict: always(true, Abort)},
		after,
	)

	if _, err := pipeline.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if after.calls != 0 {
		t.Errorf("step after Abort ran %d times", after.calls)
	}
}

func TestPipelineStepErrorPropagates(t *testing.T) {
	stepErr := errors.New("boom")
	after := &recordingStep{verdict: always(true, Continue)}
	pipeline := newTestPipeline(t, "@user1:test.local",
		StepFunc(func(context.Context, *messaging.Event) (bool, Action, error) {
			return false, Continue, stepErr
		}),
		after,
	)

	_, err := pipeline.Execute(context.Background())
	if !errors.Is(err, stepErr) {
		t.Fatalf("Execute error = %v, want %v", err, stepErr)
	}
	if after.calls != 0 {
		t.Errorf("step after error ran %d times", after.calls)
	}
}

func TestPipelineRetryReinvokesWithoutReply(t *testing.T) {
	step := &recordingStep{verdict: func(call int, _ *messaging.Event) (bool, Action, error) {
		if call == 1 {
			return true, Retry, nil
		}
		return true, Continue, nil
	}}
	pipeline := newTestPipeline(t, "@user1:test.local", step)

	if _, err := pipeline.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if step.calls != 2 {
		t.Fatalf("step ran %d times, want 2", step.calls)
	}
	if step.replies[1] != nil {
		t.Error("retried invocation should not carry a reply")
	}
}

func TestPipelineReplyDeliveredOnlyToCursorStep(t *testing.T) {
	waiting := &recordingStep{verdict: func(call int, reply *messaging.Event) (bool, Action, error) {
		if reply == nil {
			return true, WaitForReply, nil
		}
		return true, Continue, nil
	}}
	next := &recordingStep{verdict: always(true, Continue)}
	pipeline := newTestPipeline(t, "@user1:test.local", waiting, next)

	if _, err := pipeline.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if next.calls != 0 {
		t.Fatal("pipeline should have suspended before the second step")
	}

	reply := threadReply("$r1", "@user1:test.local", "go on", "$root")
	if _, err := pipeline.ReplyReceived(context.Background(), reply); err != nil {
		t.Fatalf("ReplyReceived: %v", err)
	}
	if waiting.replies[1] == nil || waiting.replies[1].Body() != "go on" {
		t.Error("suspended step did not receive the reply")
	}
	if next.calls != 1 {
		t.Fatalf("next step ran %d times, want 1", next.calls)
	}
	if next.replies[0] != nil {
		t.Error("reply leaked past the step at the cursor")
	}
}

func TestPipelineIgnoresRepliesFromNonOwner(t *testing.T) {
	waiting := &recordingStep{verdict: func(_ int, reply *messaging.Event) (bool, Action, error) {
		if reply == nil {
			return true, WaitForReply, nil
		}
		return true, Continue, nil
	}}
	pipeline := newTestPipeline(t, "@user1:test.local", waiting)

	if _, err := pipeline.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// A perfectly valid confirmation from someone else must not move
	// the cursor.
	intruder := threadReply("$r1", "@user2:test.local", "yes", "$root")
	result, err := pipeline.ReplyReceived(context.Background(), intruder)
	if err != nil || !result {
		t.Fatalf("non-owner reply: got (%v, %v)", result, err)
	}
	if waiting.calls != 1 {
		t.Fatalf("non-owner reply reached the step (%d calls)", waiting.calls)
	}

	owner := threadReply("$r2", "@user1:test.local", "yes", "$root")
	if _, err := pipeline.ReplyReceived(context.Background(), owner); err != nil {
		t.Fatalf("owner reply: %v", err)
	}
	if waiting.calls != 2 {
		t.Fatalf("owner reply did not advance the pipeline (%d calls)", waiting.calls)
	}
}

func TestPipelineReplaceHook(t *testing.T) {
	var edits []string
	pipeline := newTestPipeline(t, "@user1:test.local",
		&recordingStep{verdict: always(true, WaitForReply)},
	)
	pipeline.OnReplace = func(_ context.Context, edit messaging.Event) error {
		edits = append(edits, edit.NewContentBody())
		return nil
	}

	if _, err := pipeline.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	t.Run("owner edit reaches the hook", func(t *testing.T) {
		edit := editOf("$e1", "@user1:test.local", "corrected text", "$root")
		if _, err := pipeline.ReplaceReceived(context.Background(), edit); err != nil {
			t.Fatalf("ReplaceReceived: %v", err)
		}
		if len(edits) != 1 || edits[0] != "corrected text" {
			t.Errorf("edits = %v", edits)
		}
	})

	t.Run("non-owner edit is ignored", func(t *testing.T) {
		edit := editOf("$e2", "@user2:test.local", "hijacked", "$root")
		if _, err := pipeline.ReplaceReceived(context.Background(), edit); err != nil {
			t.Fatalf("ReplaceReceived: %v", err)
		}
		if len(edits) != 1 {
			t.Errorf("non-owner edit reached the hook: %v", edits)
		}
	})
}

func TestPipelineCreateStepsErrorPropagates(t *testing.T) {
	f := newFakeMatrix(t)
	base := NewBase(testEnv(f, nil), rootEvent("$root", "@user1:test.local", "!cmd"))
	buildErr := errors.New("cannot build")
	pipeline := NewPipeline(base, func(context.Context) ([]Step, error) {
		return nil, buildErr
	})

	if _, err := pipeline.Execute(context.Background()); !errors.Is(err, buildErr) {
		t.Fatalf("Execute error = %v, want %v", err, buildErr)
	}
}
