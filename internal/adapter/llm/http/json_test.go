package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONFromMarkdown(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"no fence", `  {"a": 1}  `, `{"a": 1}`},
		{"nested fence", "```json\n{\"fix\": \"```go\\ncode\\n```\"}\n```", "{\"fix\": \"```go\\ncode\\n```\"}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSONFromMarkdown(tc.input))
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	out, ok := ExtractJSONArray("Here are the findings:\n[{\"title\": \"x\"}]\nHope that helps!")
	assert.True(t, ok)
	assert.Equal(t, `[{"title": "x"}]`, out)
}

func TestExtractJSONArray_Fenced(t *testing.T) {
	out, ok := ExtractJSONArray("```json\n[]\n```")
	assert.True(t, ok)
	assert.Equal(t, "[]", out)
}

func TestExtractJSONArray_NoArray(t *testing.T) {
	_, ok := ExtractJSONArray("I found no issues in this change.")
	assert.False(t, ok)
}
