// internal/common/llm/extract_test.go
package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"confidence": 0.9}`,
			want:  `{"confidence": 0.9}`,
		},
		{
			name:  "fenced with language tag",
			input: "```json\n{\"confidence\": 0.85, \"reasoning\": \"exact match\"}\n```",
			want:  `{"confidence": 0.85, "reasoning": "exact match"}`,
		},
		{
			name:  "fenced without language tag",
			input: "```\n{\"index\": 2}\n```",
			want:  `{"index": 2}`,
		},
		{
			name:  "surrounding prose",
			input: "Sure, here is the result:\n{\"index\": 0, \"confidence\": 1.0}\nLet me know if you need anything else.",
			want:  `{"index": 0, "confidence": 1.0}`,
		},
		{
			name:  "fence plus prose inside",
			input: "```json\nHere you go: {\"aliases\": [\"2x4\", \"stud\"]}\n```",
			want:  `{"aliases": ["2x4", "stud"]}`,
		},
		{
			name:  "nested braces survive",
			input: `{"matches": {"homedepot": {"price": 3.98}}}`,
			want:  `{"matches": {"homedepot": {"price": 3.98}}}`,
		},
		{
			name:    "no object at all",
			input:   "I could not determine a match.",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "unterminated fence with no object",
			input:   "```json\nnot json",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)), "extracted payload must be valid JSON")
		})
	}
}
