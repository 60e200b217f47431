// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"github.com/bureau-foundation/adminbot/lib/ref"
)

// Device is one entry from the device list endpoint.
type Device struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name,omitempty"`
	LastSeenIP  string `json:"last_seen_ip,omitempty"`
	LastSeenTS  int64  `json:"last_seen_ts,omitempty"`
}

// devicesResponse is returned by GET /_synapse/admin/v2/users/{user_id}/devices.
type devicesResponse struct {
	Devices []Device `json:"devices"`
	Total   int      `json:"total"`
}

// User is one entry from the user directory endpoint.
type User struct {
	Name        ref.UserID `json:"name"`
	DisplayName string     `json:"displayname,omitempty"`
	Admin       bool       `json:"admin"`
	Deactivated bool       `json:"deactivated"`
	UserType    string     `json:"user_type,omitempty"`
}

// usersPage is one page from GET /_synapse/admin/v2/users.
type usersPage struct {
	Users     []User `json:"users"`
	NextToken string `json:"next_token,omitempty"`
	Total     int    `json:"total"`
}

// serverNoticeResponse is returned by the server notice endpoint.
type serverNoticeResponse struct {
	EventID ref.EventID `json:"event_id"`
}
