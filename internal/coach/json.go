package coach

import (
	"encoding/json"
	"strings"
)

// extractJSONObject pulls the first balanced JSON object out of a model reply.
// Models frequently wrap JSON in markdown fences or surround it with prose, so
// the scan ignores everything outside the first brace-balanced span.
func extractJSONObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// decodeJSONObject extracts and unmarshals the first JSON object in raw.
func decodeJSONObject(raw string, v any) bool {
	obj, ok := extractJSONObject(raw)
	if !ok {
		return false
	}
	return json.Unmarshal([]byte(obj), v) == nil
}
