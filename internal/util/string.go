// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers for string handling and
// crash-safe file writes.
package util

// Rune-aware truncation preserves multi-byte characters. Counting
// runes instead of bytes prevents mid-character truncation that would
// corrupt UTF-8 strings.

// TruncateRunesNoEllipsis truncates a string to a maximum number of
// runes without appending an ellipsis. Ellipsis policy is the
// caller's; title derivation and display truncation disagree on it.
func TruncateRunesNoEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// RuneLen returns the number of runes in a string. This is safer than
// len() for UTF-8 strings.
func RuneLen(s string) int {
	return len([]rune(s))
}
