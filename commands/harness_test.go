// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

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
	"time"

	"github.com/bureau-foundation/adminbot/admin"
	"github.com/bureau-foundation/adminbot/bot"
	"github.com/bureau-foundation/adminbot/lib/clock"
	"github.com/bureau-foundation/adminbot/lib/ref"
	"github.com/bureau-foundation/adminbot/lib/secret"
	"github.com/bureau-foundation/adminbot/messaging"
)

// adminCall is one recorded Synapse admin API request.
type adminCall struct {
	Method string
	Path   string
	Body   map[string]any
}

// backend fakes both the Matrix client API and the Synapse admin API on
// one server, recording everything the command under test does.
type backend struct {
	t      *testing.T
	server *httptest.Server

	session     *messaging.Session
	adminClient *admin.Client

	mu         sync.Mutex
	sent       []map[string]any // m.room.message / m.reaction contents with "type" injected
	redacted   []string
	uploads    [][]byte
	adminCalls []adminCall
	idCounter  int

	// directoryUsers is served by the user directory endpoint.
	directoryUsers []admin.User
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{t: t}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.server.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: b.server.URL,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@bot:test.local"), "syt_bot_token")
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	b.session = session

	token, err := secret.NewFromString("syt_admin_token")
	if err != nil {
		t.Fatalf("NewFromString: %v", err)
	}
	t.Cleanup(func() { token.Close() })
	adminClient, err := admin.NewClient(admin.ClientConfig{
		HomeserverURL: b.server.URL,
		AccessToken:   token,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("admin.NewClient: %v", err)
	}
	b.adminClient = adminClient
	return b
}

func (b *backend) handle(writer http.ResponseWriter, request *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := request.URL.Path
	switch {
	case strings.HasPrefix(path, "/_synapse/"):
		b.handleAdmin(writer, request, path)

	case strings.Contains(path, "/send/"):
		segments := strings.Split(path, "/send/")
		eventType := strings.SplitN(segments[1], "/", 2)[0]
		var content map[string]any
		data, _ := io.ReadAll(request.Body)
		json.Unmarshal(data, &content)
		content["type"] = eventType
		b.sent = append(b.sent, content)
		b.idCounter++
		fmt.Fprintf(writer, `{"event_id": "$sent-%d"}`, b.idCounter)

	case strings.Contains(path, "/redact/"):
		segments := strings.Split(path, "/redact/")
		b.redacted = append(b.redacted, strings.SplitN(segments[1], "/", 2)[0])
		b.idCounter++
		fmt.Fprintf(writer, `{"event_id": "$sent-%d"}`, b.idCounter)

	case path == "/_matrix/media/v3/upload":
		data, _ := io.ReadAll(request.Body)
		b.uploads = append(b.uploads, data)
		fmt.Fprintf(writer, `{"content_uri": "mxc://test.local/media-%d"}`, len(b.uploads))

	default:
		b.t.Errorf("unexpected request: %s %s", request.Method, path)
		http.NotFound(writer, request)
	}
}

func (b *backend) handleAdmin(writer http.ResponseWriter, request *http.Request, path string) {
	call := adminCall{Method: request.Method, Path: path}
	if data, _ := io.ReadAll(request.Body); len(data) > 0 {
		json.Unmarshal(data, &call.Body)
	}
	b.adminCalls = append(b.adminCalls, call)

	switch {
	case strings.HasSuffix(path, "/devices"):
		fmt.Fprint(writer, `{"devices": [{"device_id": "DEVICE1"}, {"device_id": "DEVICE2"}], "total": 2}`)
	case path == "/_synapse/admin/v2/users":
		page := map[string]any{"users": b.directoryUsers, "total": len(b.directoryUsers)}
		json.NewEncoder(writer).Encode(page)
	case path == "/_synapse/admin/v1/send_server_notice":
		b.idCounter++
		fmt.Fprintf(writer, `{"event_id": "$notice-%d"}`, b.idCounter)
	default:
		fmt.Fprint(writer, `{}`)
	}
}

func (b *backend) sentMessages() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.sent...)
}

// lastMessageBody returns the body of the most recent m.room.message.
func (b *backend) lastMessageBody() string {
	var body string
	for _, content := range b.sentMessages() {
		if content["type"] == "m.room.message" {
			body, _ = content["body"].(string)
		}
	}
	return body
}

// reactionKeys returns the keys of all m.reaction events in order.
func (b *backend) reactionKeys() []string {
	var keys []string
	for _, content := range b.sentMessages() {
		if content["type"] != "m.reaction" {
			continue
		}
		if relates, ok := content["m.relates_to"].(map[string]any); ok {
			keys = append(keys, relates["key"].(string))
		}
	}
	return keys
}

func (b *backend) recordedAdminCalls() []adminCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]adminCall(nil), b.adminCalls...)
}

// adminCallsTo filters recorded admin calls by path substring.
func (b *backend) adminCallsTo(fragment string) []adminCall {
	var matched []adminCall
	for _, call := range b.recordedAdminCalls() {
		if strings.Contains(call.Path, fragment) {
			matched = append(matched, call)
		}
	}
	return matched
}

func (b *backend) uploadedReports() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.uploads...)
}

func (b *backend) setDirectory(users ...admin.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.directoryUsers = users
}

// testEnv builds a coordinator Env on the fake backend with a fixed
// clock.
func testEnv(b *backend) *bot.Env {
	return &bot.Env{
		Session:     b.session,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:       clock.Fake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)),
		Coordinator: true,
		ServerName:  "test.local",
	}
}

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
