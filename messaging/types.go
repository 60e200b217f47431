// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/adminbot/lib/ref"
)

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	DeviceID                 string `json:"device_id,omitempty"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// MessageContent is the content body of a Matrix message event
// (m.room.message). FormattedBody carries the HTML rendering when the
// message was composed as markdown; plain-text clients fall back to Body.
type MessageContent struct {
	MsgType       string          `json:"msgtype"`
	Body          string          `json:"body"`
	Format        string          `json:"format,omitempty"`
	FormattedBody string          `json:"formatted_body,omitempty"`
	URL           string          `json:"url,omitempty"`      // mxc:// URI for m.file
	Filename      string          `json:"filename,omitempty"` // original filename for m.file
	Info          *FileInfo       `json:"info,omitempty"`
	RelatesTo     *RelatesTo      `json:"m.relates_to,omitempty"`
	NewContent    *MessageContent `json:"m.new_content,omitempty"` // replacement content for edits
}

// FileInfo describes an uploaded file attachment.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// RelatesTo expresses relationships between events. For threads,
// RelType is "m.thread" and EventID is the thread root. For edits,
// RelType is "m.replace" and EventID is the edited event. For
// reactions, RelType is "m.annotation" and Key is the emoji. A rich
// reply sets only InReplyTo.
type RelatesTo struct {
	RelType       string      `json:"rel_type,omitempty"`
	EventID       ref.EventID `json:"event_id,omitempty"`
	Key           string      `json:"key,omitempty"`
	IsFallingBack bool        `json:"is_falling_back,omitempty"`
	InReplyTo     *InReplyTo  `json:"m.in_reply_to,omitempty"`
}

// InReplyTo references the event being replied to.
type InReplyTo struct {
	EventID ref.EventID `json:"event_id"`
}

// Relation positions an outgoing message relative to earlier events.
// The zero value sends a free-standing message. When ThreadRoot is set
// the message joins that thread; ReplyTo additionally points the reply
// fallback at a specific event (defaulting to the thread root).
type Relation struct {
	ReplyTo    ref.EventID
	ThreadRoot ref.EventID
}

// relatesTo converts the relation to the wire structure, or nil for
// the zero relation.
func (r Relation) relatesTo() *RelatesTo {
	switch {
	case !r.ThreadRoot.IsZero():
		replyTo := r.ReplyTo
		if replyTo.IsZero() {
			replyTo = r.ThreadRoot
		}
		return &RelatesTo{
			RelType:       "m.thread",
			EventID:       r.ThreadRoot,
			IsFallingBack: true,
			InReplyTo:     &InReplyTo{EventID: replyTo},
		}
	case !r.ReplyTo.IsZero():
		return &RelatesTo{InReplyTo: &InReplyTo{EventID: r.ReplyTo}}
	default:
		return nil
	}
}

// NewTextMessage creates a plain text message with the given relation.
func NewTextMessage(body string, relation Relation) MessageContent {
	return MessageContent{
		MsgType:   "m.text",
		Body:      body,
		RelatesTo: relation.relatesTo(),
	}
}

// NewNoticeMessage creates an m.notice message. Notices are rendered
// less prominently by clients and are never re-processed by bots,
// which prevents two bots from replying to each other in a loop.
func NewNoticeMessage(body string, relation Relation) MessageContent {
	return MessageContent{
		MsgType:   "m.notice",
		Body:      body,
		RelatesTo: relation.relatesTo(),
	}
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Body returns the plain-text body of a message event, or "" when the
// event has no body (redacted events, reactions, non-message types).
func (e Event) Body() string {
	body, _ := e.Content["body"].(string)
	return body
}

// relatesTo returns the m.relates_to map, or nil.
func (e Event) relatesTo() map[string]any {
	relates, _ := e.Content["m.relates_to"].(map[string]any)
	return relates
}

// relationEventID extracts a validated event ID from a relation map
// field. Returns the zero EventID for missing or malformed values.
func relationEventID(m map[string]any, key string) ref.EventID {
	raw, _ := m[key].(string)
	id, err := ref.ParseEventID(raw)
	if err != nil {
		return ref.EventID{}
	}
	return id
}

// ReplyTo returns the event ID this event replies to (the
// m.in_reply_to reference), or the zero EventID when the event is not
// a reply.
func (e Event) ReplyTo() ref.EventID {
	relates := e.relatesTo()
	if relates == nil {
		return ref.EventID{}
	}
	inReplyTo, _ := relates["m.in_reply_to"].(map[string]any)
	if inReplyTo == nil {
		return ref.EventID{}
	}
	return relationEventID(inReplyTo, "event_id")
}

// ThreadRoot returns the thread root event ID when this event was sent
// inside a thread (rel_type "m.thread"), or the zero EventID.
func (e Event) ThreadRoot() ref.EventID {
	relates := e.relatesTo()
	if relates == nil {
		return ref.EventID{}
	}
	if relType, _ := relates["rel_type"].(string); relType != "m.thread" {
		return ref.EventID{}
	}
	return relationEventID(relates, "event_id")
}

// Replaces returns the event ID this event edits (rel_type
// "m.replace"), or the zero EventID when the event is not an edit.
func (e Event) Replaces() ref.EventID {
	relates := e.relatesTo()
	if relates == nil {
		return ref.EventID{}
	}
	if relType, _ := relates["rel_type"].(string); relType != "m.replace" {
		return ref.EventID{}
	}
	return relationEventID(relates, "event_id")
}

// NewContentBody returns the replacement body carried by an edit event
// (the m.new_content field). Falls back to the top-level body, which by
// convention is the replacement prefixed with "* ".
func (e Event) NewContentBody() string {
	newContent, _ := e.Content["m.new_content"].(map[string]any)
	if newContent != nil {
		if body, ok := newContent["body"].(string); ok {
			return body
		}
	}
	return e.Body()
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data for joined rooms. Map keys
// are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler for
// automatic validation at deserialization.
type RoomsSection struct {
	Join map[ref.RoomID]JoinedRoom `json:"join,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// SendEventResponse is returned by the event send and redact endpoints.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// UploadResponse is returned by UploadMedia.
type UploadResponse struct {
	ContentURI string `json:"content_uri"`
}

// JoinedRoomsResponse is returned by JoinedRooms.
type JoinedRoomsResponse struct {
	JoinedRooms []ref.RoomID `json:"joined_rooms"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}
