// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated Matrix identifier types.
//
// Raw strings from configuration files, chat messages, and homeserver
// responses are parsed into these types at the boundary, so the rest
// of the code never handles an unvalidated user, room, or event ID.
// All types are immutable value types; the zero value is "unset" and
// reports true from IsZero.
//
// UserID and RoomID validate the sigil and the ':server' suffix.
// EventID is treated as opaque beyond its '$' sigil, matching room
// version 4+ where event IDs carry no server name.
package ref
