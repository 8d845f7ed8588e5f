package pitch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// repairJSON coaxes model output toward parseable JSON: code fences are
// stripped, everything outside the outermost braces is dropped, and
// trailing commas before a closing brace or bracket are removed. The input
// is never mutated.
func repairJSON(raw []byte) []byte {
	s := strings.TrimSpace(string(raw))

	// Fenced blocks: ```json ... ``` or plain ``` ... ```.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}

	// Keep only the outermost object; models sometimes add prose around it.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}

	s = trailingComma.ReplaceAllString(s, "$1")
	return []byte(s)
}

// decodePitch repairs then strictly unmarshals model output.
func decodePitch(raw json.RawMessage) (*Pitch, error) {
	var p Pitch
	if err := json.Unmarshal(repairJSON(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &p, nil
}
