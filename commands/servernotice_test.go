// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/bureau-foundation/adminbot/admin"
	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/lib/ref"
)

func reply(t *testing.T, cmd bot.Command, eventID, sender, body string) {
	t.Helper()
	if _, err := cmd.ReplyReceived(context.Background(), threadReply(eventID, sender, body, "$root")); err != nil {
		t.Fatalf("ReplyReceived(%s): %v", eventID, err)
	}
}

func TestServerNoticeConversation(t *testing.T) {
	b := newBackend(t)
	env := testEnv(b)
	definition := ServerNotice(b.adminClient, bot.ConfirmValidator{})

	cmd := startCommand(t, definition, env, rootEvent("$root", "@operator:test.local", "!server_notice"))
	if !strings.Contains(b.lastMessageBody(), "Who should receive the notice?") {
		t.Fatalf("first prompt = %q", b.lastMessageBody())
	}

	reply(t, cmd, "$recipients", "@operator:test.local", "@alice:test.local @bob:test.local")
	if !strings.Contains(b.lastMessageBody(), "Reply with the notice text") {
		t.Fatalf("second prompt = %q", b.lastMessageBody())
	}

	reply(t, cmd, "$draft", "@operator:test.local", "Maintenance tonight at 22:00.")

	// The notice message is edited before confirming: the edit, not the
	// draft, must be delivered.
	edit := editOf("$edit", "@operator:test.local", "Maintenance tonight at 23:00.", "$draft")
	if _, err := cmd.ReplaceReceived(context.Background(), edit); err != nil {
		t.Fatalf("ReplaceReceived: %v", err)
	}

	if calls := b.recordedAdminCalls(); len(calls) != 0 {
		t.Fatalf("admin API touched before confirmation: %v", calls)
	}
	reply(t, cmd, "$confirm", "@operator:test.local", "yes")

	notices := b.adminCallsTo("/send_server_notice")
	if len(notices) != 2 {
		t.Fatalf("got %d notices, want 2", len(notices))
	}
	recipients := map[string]bool{}
	for _, call := range notices {
		recipients[call.Body["user_id"].(string)] = true
		content := call.Body["content"].(map[string]any)
		if content["body"] != "Maintenance tonight at 23:00." {
			t.Errorf("notice body = %v", content["body"])
		}
	}
	if !recipients["@alice:test.local"] || !recipients["@bob:test.local"] {
		t.Errorf("recipients = %v", recipients)
	}

	keys := b.reactionKeys()
	if keys[len(keys)-1] != bot.ReactionSuccess {
		t.Errorf("final reaction = %v", keys)
	}
	if len(b.uploadedReports()) != 1 {
		t.Errorf("got %d reports, want 1", len(b.uploadedReports()))
	}
}

func TestServerNoticeAllResolvesDirectory(t *testing.T) {
	b := newBackend(t)
	b.setDirectory(
		admin.User{Name: ref.MustParseUserID("@alice:test.local")},
		admin.User{Name: ref.MustParseUserID("@gone:test.local"), Deactivated: true},
		admin.User{Name: ref.MustParseUserID("@_bridge_irc:test.local")},
		admin.User{Name: ref.MustParseUserID("@bob:test.local")},
	)
	env := testEnv(b)
	definition := ServerNotice(b.adminClient, bot.ConfirmValidator{})

	cmd := startCommand(t, definition, env, rootEvent("$root", "@operator:test.local", "!server_notice"))
	reply(t, cmd, "$recipients", "@operator:test.local", "all")
	reply(t, cmd, "$draft", "@operator:test.local", "Hello everyone.")
	reply(t, cmd, "$confirm", "@operator:test.local", "yes")

	notices := b.adminCallsTo("/send_server_notice")
	if len(notices) != 2 {
		t.Fatalf("got %d notices, want 2 (deactivated and appservice users skipped)", len(notices))
	}
	for _, call := range notices {
		user := call.Body["user_id"].(string)
		if user != "@alice:test.local" && user != "@bob:test.local" {
			t.Errorf("unexpected recipient %s", user)
		}
	}
}

func TestServerNoticeNoLocalRecipientsAbortsSilently(t *testing.T) {
	b := newBackend(t)
	env := testEnv(b)
	definition := ServerNotice(b.adminClient, bot.ConfirmValidator{})

	cmd := startCommand(t, definition, env, rootEvent("$root", "@operator:test.local", "!server_notice"))
	reply(t, cmd, "$recipients", "@operator:test.local", "@remote:other.org")
	reply(t, cmd, "$draft", "@operator:test.local", "Hello.")
	reply(t, cmd, "$confirm", "@operator:test.local", "yes")

	if notices := b.adminCallsTo("/send_server_notice"); len(notices) != 0 {
		t.Fatalf("sent %d notices for a fully remote recipient list", len(notices))
	}
	// The command bows out without a verdict: the status reaction is
	// cleared, not replaced.
	keys := b.reactionKeys()
	if keys[len(keys)-1] == bot.ReactionSuccess || keys[len(keys)-1] == bot.ReactionFailure {
		t.Errorf("reactions = %v, want no terminal verdict", keys)
	}
	if len(b.uploadedReports()) != 0 {
		t.Errorf("silent abort produced a report")
	}
}

func TestServerNoticeRejectsBadRecipientReply(t *testing.T) {
	b := newBackend(t)
	env := testEnv(b)
	definition := ServerNotice(b.adminClient, bot.ConfirmValidator{})

	cmd := startCommand(t, definition, env, rootEvent("$root", "@operator:test.local", "!server_notice"))
	reply(t, cmd, "$bad", "@operator:test.local", "@not a valid@@id")
	if !strings.Contains(b.lastMessageBody(), "not a valid user ID") {
		t.Errorf("feedback = %q", b.lastMessageBody())
	}

	// The step is still waiting; a corrected reply proceeds.
	reply(t, cmd, "$good", "@operator:test.local", "@alice:test.local")
	if !strings.Contains(b.lastMessageBody(), "Reply with the notice text") {
		t.Errorf("prompt after correction = %q", b.lastMessageBody())
	}
}
