// Package content extracts plain text from the chat API's weakly-typed
// message part payloads. Normalize is total: malformed or unrecognized
// input yields a string (possibly empty), never an error.
package content

import (
	"encoding/json"
	"strings"
)

// part models the closed set of shapes a single content part can take.
// The "text" field is itself polymorphic: either a nested object with a
// "content" string or a bare string.
type part struct {
	Text    json.RawMessage `json:"text"`
	Content string          `json:"content"`
}

type nestedText struct {
	Content string `json:"content"`
}

// Normalize converts a raw message content payload into a single plain-text
// string. The payload may be an ordered array of heterogeneous parts, a
// single part object, a bare JSON string, or any other scalar. Parts that
// yield only whitespace are dropped; surviving parts are joined with a
// single space.
func Normalize(raw json.RawMessage) string {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err == nil {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(extractPart(p)); t != "" {
				texts = append(texts, t)
			}
		}
		return strings.Join(texts, " ")
	}

	return strings.TrimSpace(extractPart(raw))
}

// extractPart applies the shape priority to a single part: nested
// text.content, then flat content, then flat text string, then a bare
// string, then a direct coercion of whatever is left.
func extractPart(raw json.RawMessage) string {
	var p part
	if err := json.Unmarshal(raw, &p); err == nil {
		if len(p.Text) > 0 {
			var nested nestedText
			if err := json.Unmarshal(p.Text, &nested); err == nil && nested.Content != "" {
				return nested.Content
			}
			var flat string
			if err := json.Unmarshal(p.Text, &flat); err == nil {
				return flat
			}
		}
		if p.Content != "" {
			return p.Content
		}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		switch v.(type) {
		case map[string]any, []any:
			// Recognized as JSON but carries no extractable text.
			return ""
		}
	}

	return string(raw)
}
