// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/adminbot/lib/clock"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/messaging"
)

// sentEvent is one event the fake homeserver accepted.
type sentEvent struct {
	Type    string
	RoomID  string
	EventID string
	Content map[string]any
}

// fakeMatrix is an in-process homeserver recording everything the bot
// sends. Event IDs are "$sent-<n>" in acceptance order.
type fakeMatrix struct {
	t       *testing.T
	server  *httptest.Server
	session *messaging.Session

	mu        sync.Mutex
	sent      []sentEvent
	redacted  []string
	uploads   map[string][]byte
	idCounter int
}

func newFakeMatrix(t *testing.T) *fakeMatrix {
	t.Helper()
	f := &fakeMatrix{t: t, uploads: make(map[string][]byte)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: f.server.URL,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@bot:test.local"), "syt_test_token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	f.session = session
	return f
}

// handle routes the few endpoints the bot package touches. Note that
// request.URL.Path is the decoded path.
func (f *fakeMatrix) handle(writer http.ResponseWriter, request *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := request.URL.Path
	switch {
	case strings.HasPrefix(path, "/_matrix/client/v3/rooms/") && strings.Contains(path, "/send/"):
		segments := strings.Split(strings.TrimPrefix(path, "/_matrix/client/v3/rooms/"), "/send/")
		roomID := segments[0]
		eventType := strings.SplitN(segments[1], "/", 2)[0]

		var content map[string]any
		body, _ := io.ReadAll(request.Body)
		if err := json.Unmarshal(body, &content); err != nil {
			f.t.Errorf("malformed send body: %v", err)
		}
		f.idCounter++
		eventID := fmt.Sprintf("$sent-%d", f.idCounter)
		f.sent = append(f.sent, sentEvent{Type: eventType, RoomID: roomID, EventID: eventID, Content: content})
		fmt.Fprintf(writer, `{"event_id": %q}`, eventID)

	case strings.HasPrefix(path, "/_matrix/client/v3/rooms/") && strings.Contains(path, "/redact/"):
		segments := strings.Split(path, "/redact/")
		redactedID := strings.SplitN(segments[1], "/", 2)[0]
		f.redacted = append(f.redacted, redactedID)
		f.idCounter++
		fmt.Fprintf(writer, `{"event_id": "$sent-%d"}`, f.idCounter)

	case path == "/_matrix/media/v3/upload":
		data, _ := io.ReadAll(request.Body)
		uri := fmt.Sprintf("mxc://test.local/media-%d", len(f.uploads)+1)
		f.uploads[uri] = data
		fmt.Fprintf(writer, `{"content_uri": %q}`, uri)

	default:
		f.t.Errorf("unexpected request: %s %s", request.Method, path)
		http.NotFound(writer, request)
	}
}

// sentEvents returns a snapshot of accepted events.
func (f *fakeMatrix) sentEvents() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentEvent(nil), f.sent...)
}

// sentOfType filters accepted events by type.
func (f *fakeMatrix) sentOfType(eventType string) []sentEvent {
	var matched []sentEvent
	for _, event := range f.sentEvents() {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func (f *fakeMatrix) redactedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.redacted...)
}

func (f *fakeMatrix) uploadedFiles() map[string][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	files := make(map[string][]byte, len(f.uploads))
	for uri, data := range f.uploads {
		files[uri] = data
	}
	return files
}

// testEnv builds a coordinator Env on the fake homeserver.
func testEnv(f *fakeMatrix, clk clock.Clock) *Env {
	if clk == nil {
		clk = clock.Real()
	}
	return &Env{
		Session:     f.session,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:       clk,
		Coordinator: true,
		ServerName:  "test.local",
	}
}

// rootEvent builds a plain command message from the given sender.
func rootEvent(eventID, sender, body string) messaging.Event {
	return messaging.Event{
		EventID: ref.MustParseEventID(eventID),
		Type:    "m.room.message",
		Sender:  ref.MustParseUserID(sender),
		RoomID:  ref.MustParseRoomID("!ops:test.local"),
		Content: map[string]any{
			"msgtype": "m.text",
			"body":    body,
		},
	}
}

// threadReply builds a reply inside the thread rooted at threadRoot.
func threadReply(eventID, sender, body, threadRoot string) messaging.Event {
	event := rootEvent(eventID, sender, body)
	event.Content["m.relates_to"] = map[string]any{
		"rel_type":        "m.thread",
		"event_id":        threadRoot,
		"is_falling_back": true,
		"m.in_reply_to":   map[string]any{"event_id": threadRoot},
	}
	return event
}

// plainReply builds a rich reply (in_reply_to only, no thread).
func plainReply(eventID, sender, body, inReplyTo string) messaging.Event {
	event := rootEvent(eventID, sender, body)
	event.Content["m.relates_to"] = map[string]any{
		"m.in_reply_to": map[string]any{"event_id": inReplyTo},
	}
	return event
}

// editOf builds an m.replace edit of target with the new body.
func editOf(eventID, sender, newBody, target string) messaging.Event {
	event := rootEvent(eventID, sender, "* "+newBody)
	event.Content["m.relates_to"] = map[string]any{
		"rel_type": "m.replace",
		"event_id": target,
	}
	event.Content["m.new_content"] = map[string]any{
		"msgtype": "m.text",
		"body":    newBody,
	}
	return event
}
