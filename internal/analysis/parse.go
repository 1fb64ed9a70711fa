package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes markdown code fences the model wraps around JSON
// despite being told not to.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}

// decodeInto parses a model response into v after fence stripping.
func decodeInto(text string, v any) error {
	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("parsing model response: %w", err)
	}
	return nil
}

// normalizeEnum lowercases an enum value and joins internal spaces with
// underscores, so "Strong Buy" and "strong_buy" both parse.
func normalizeEnum(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
