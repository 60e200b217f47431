// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// markdownInstance is initialized once and reused. The converter
// configuration (extensions, options) never changes and the goldmark
// Markdown is safe to share; actual conversion creates per-call state.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
			),
		)
	})
	return markdownInstance
}

// renderMarkdown converts markdown to the HTML fragment carried in a
// message's formatted_body. Trailing whitespace is trimmed; Matrix
// clients supply their own block spacing.
func renderMarkdown(input string) (string, error) {
	var out bytes.Buffer
	if err := getMarkdown().Convert([]byte(input), &out); err != nil {
		return "", err
	}
	return strings.TrimRight(out.String(), "\n"), nil
}
