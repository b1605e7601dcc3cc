// Package jsonx provides helpers for handling streamed tool-call argument
// payloads.
//
// Models do not always emit tidy JSON: a call with no parameters may stream
// zero fragments or bare whitespace, and error messages should quote
// payloads without dumping kilobytes into logs.
package jsonx

import (
	"encoding/json"
	"strings"
)

// NormalizeArguments prepares a reassembled argument payload for parsing.
// An empty or whitespace-only payload becomes the empty object, which is
// what every vendor API substitutes for "no arguments".
func NormalizeArguments(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(trimmed)
}

// Preview truncates s for inclusion in an error message.
func Preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
