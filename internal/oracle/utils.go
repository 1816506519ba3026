package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON strips markdown fences and chatter around a JSON object and
// returns the object bytes. Content that still is not JSON yields ErrFormat.
func extractJSON(content string) ([]byte, error) {
	s := strings.TrimSpace(content)
	if s == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrFormat)
	}

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	if !json.Valid([]byte(s)) {
		obj, ok := firstObject(s)
		if !ok {
			return nil, fmt.Errorf("%w: no JSON object in completion (%d bytes)", ErrFormat, len(content))
		}
		s = obj
	}

	return bytes.TrimSpace([]byte(s)), nil
}

// firstObject picks the first complete JSON object embedded in prose. When
// stray quotes in the prose confuse the scanner, the span from the first
// '{' to the last '}' is tried as a last resort.
func firstObject(s string) (string, bool) {
	for _, c := range findJSONCandidates(s) {
		if json.Valid([]byte(c)) {
			return c, true
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	if span := s[start : end+1]; json.Valid([]byte(span)) {
		return span, true
	}
	return "", false
}
