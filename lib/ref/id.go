// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// splitSigilID validates a "<sigil>localpart:server" identifier and
// returns the localpart and server name.
func splitSigilID(raw string, sigil byte, kind string) (localpart, server string, err error) {
	if raw == "" {
		return "", "", fmt.Errorf("empty %s", kind)
	}
	if raw[0] != sigil {
		return "", "", fmt.Errorf("%s must start with %q: %q", kind, string(sigil), raw)
	}
	rest := raw[1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", "", fmt.Errorf("%s missing ':server' suffix: %q", kind, raw)
	}
	localpart = rest[:colon]
	server = rest[colon+1:]
	if localpart == "" {
		return "", "", fmt.Errorf("%s has empty localpart: %q", kind, raw)
	}
	if server == "" {
		return "", "", fmt.Errorf("%s has empty server name: %q", kind, raw)
	}
	return localpart, server, nil
}
