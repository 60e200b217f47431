// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"testing"

	"github.com/bureau-foundation/adminbot/lib/ref"
)

func TestAuthorizer(t *testing.T) {
	roles := []Role{
		{
			Name:        "admins",
			AllCommands: true,
			UserIDs:     []ref.UserID{ref.MustParseUserID("@root:test.local")},
		},
		{
			Name:            "helpdesk",
			AllowedCommands: []string{"reset_password", "help"},
			UserIDs: []ref.UserID{
				ref.MustParseUserID("@alex:test.local"),
				ref.MustParseUserID("@sam:test.local"),
			},
		},
		{
			Name:            "notifier",
			AllowedCommands: []string{"server_notice"},
			UserIDs:         []ref.UserID{ref.MustParseUserID("@alex:test.local")},
		},
	}
	authorizer := NewAuthorizer(roles)

	tests := []struct {
		user    string
		keyword string
		want    bool
	}{
		{"@root:test.local", "deactivate", true},
		{"@root:test.local", "reset_password", true},
		{"@alex:test.local", "reset_password", true},
		{"@alex:test.local", "server_notice", true},
		{"@alex:test.local", "deactivate", false},
		{"@sam:test.local", "server_notice", false},
		{"@stranger:test.local", "help", false},
	}
	for _, test := range tests {
		t.Run(test.user+" "+test.keyword, func(t *testing.T) {
			got := authorizer.CanExecute(ref.MustParseUserID(test.user), test.keyword)
			if got != test.want {
				t.Errorf("CanExecute(%s, %s) = %v, want %v", test.user, test.keyword, got, test.want)
			}
		})
	}
}

func TestAuthorizerUnconfiguredAllowsEveryone(t *testing.T) {
	authorizer := NewAuthorizer(nil)
	if !authorizer.CanExecute(ref.MustParseUserID("@anyone:test.local"), "deactivate") {
		t.Error("authorizer without roles should allow everything")
	}
}
