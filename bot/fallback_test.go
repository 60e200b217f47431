// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import "testing"

func TestStripReplyFallback(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fallback", "yes", "yes"},
		{
			"single quoted line",
			"> <@user1:test.local> do the thing\n\nyes",
			"yes",
		},
		{
			"multi-line quote",
			"> <@user1:test.local> first\n> second\n\nconfirm",
			"confirm",
		},
		{
			"reply body keeps its own newlines",
			"> <@user1:test.local> prompt\n\nline one\nline two",
			"line one\nline two",
		},
		{
			"quote character mid-body is untouched",
			"the answer is > 42",
			"the answer is > 42",
		},
		{"empty", "", ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := StripReplyFallback(test.in); got != test.want {
				t.Errorf("StripReplyFallback(%q) = %q, want %q", test.in, got, test.want)
			}
		})
	}
}
