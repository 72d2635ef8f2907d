// internal/common/llm/extract.go
package llm

import (
	"errors"
	"strings"
)

var ErrNoJSON = errors.New("no JSON object found in model response")

// ExtractJSON pulls the JSON payload out of a model response. Models wrap
// answers in markdown fences or surrounding prose; all of that repair
// lives here so callers can json.Unmarshal the result directly.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)

	// Strip a fenced block if present, with or without a language tag.
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine == "json" || firstLine == "" {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	// Cut leading/trailing prose around the outermost object.
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", ErrNoJSON
	}

	return s[start : end+1], nil
}
