// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"slices"

	"github.com/bureau-foundation/adminbot/lib/ref"
)

// Role grants a set of users access to commands, either all of them or
// an explicit keyword list.
type Role struct {
	Name            string
	AllCommands     bool
	AllowedCommands []string
	UserIDs         []ref.UserID
}

// Authorizer answers "may this user run this command keyword".
// Evaluated once per command, before the first step runs; a role change
// mid-conversation does not abort an in-flight command.
type Authorizer struct {
	byUser     map[string][]*Role
	configured bool
}

// NewAuthorizer builds an authorizer from the configured roles. With no
// roles at all, everything is allowed: single-operator deployments need
// no access control.
func NewAuthorizer(roles []Role) *Authorizer {
	a := &Authorizer{
		byUser:     make(map[string][]*Role),
		configured: len(roles) > 0,
	}
	for i := range roles {
		role := &roles[i]
		for _, user := range role.UserIDs {
			a.byUser[user.String()] = append(a.byUser[user.String()], role)
		}
	}
	return a
}

// CanExecute reports whether the user may run the command keyword.
func (a *Authorizer) CanExecute(user ref.UserID, keyword string) bool {
	if !a.configured {
		return true
	}
	for _, role := range a.byUser[user.String()] {
		if role.AllCommands || slices.Contains(role.AllowedCommands, keyword) {
			return true
		}
	}
	return false
}
