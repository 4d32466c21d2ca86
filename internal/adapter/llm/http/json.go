package http

import (
	"regexp"
	"strings"
)

// Matches from the opening fence to the LAST closing fence. Greedy on
// purpose: model suggestions often embed fenced example code, and the
// outermost fences are the ones delimiting the JSON payload.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*)```")

// ExtractJSONFromMarkdown strips a markdown code fence from a model
// response. Returns the trimmed original text when no fence is present,
// since many responses are already raw JSON.
func ExtractJSONFromMarkdown(text string) string {
	matches := jsonBlockRegex.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return strings.TrimSpace(text)
}

// ExtractJSONArray returns the slice of text from the first '[' through
// the last ']', after fence stripping. Models reliably bracket their
// array output but frequently surround it with prose; this recovers the
// payload without attempting to parse the chatter. Returns false when no
// bracketed region exists.
func ExtractJSONArray(text string) (string, bool) {
	cleaned := ExtractJSONFromMarkdown(text)
	start := strings.IndexByte(cleaned, '[')
	end := strings.LastIndexByte(cleaned, ']')
	if start < 0 || end < start {
		return "", false
	}
	return cleaned[start : end+1], true
}
