// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import "strings"

// StripReplyFallback removes the quoted-reply fallback that chat
// clients prepend to a reply body: lines starting with "> " up to the
// first blank line. The quoted rendering of the replied-to message must
// not be mistaken for what the user typed.
func StripReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> ") {
		return body
	}
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], "> ") {
		i++
	}
	// The fallback block is terminated by one blank line.
	if i < len(lines) && lines[i] == "" {
		i++
	}
	return strings.Join(lines[i:], "\n")
}
