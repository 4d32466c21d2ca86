// Package redaction strips credential material from text before it is
// persisted in run records or posted back to a pull request. Provider
// errors can echo request headers, and diffs under analysis may contain
// committed secrets.
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Sanitizer replaces detected secrets with stable placeholders. The same
// secret always maps to the same placeholder, so repeated occurrences
// stay correlatable without exposing the value.
type Sanitizer struct {
	patterns []*regexp.Regexp
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{patterns: secretPatterns()}
}

// Sanitize returns input with every detected secret replaced.
func (s *Sanitizer) Sanitize(input string) string {
	placeholders := make(map[string]string)

	for _, pattern := range s.patterns {
		for _, match := range pattern.FindAllString(input, -1) {
			if _, seen := placeholders[match]; seen {
				continue
			}
			placeholders[match] = placeholder(match)
		}
	}

	result := input
	for secret, replacement := range placeholders {
		result = strings.ReplaceAll(result, secret, replacement)
	}
	return result
}

// ContainsPlaceholder reports whether text has already been sanitized.
func (s *Sanitizer) ContainsPlaceholder(text string) bool {
	return strings.Contains(text, "<REDACTED:")
}

func placeholder(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("<REDACTED:%s>", hex.EncodeToString(hash[:])[:8])
}

func secretPatterns() []*regexp.Regexp {
	patterns := []string{
		// Anthropic keys before the generic sk- form so they redact whole
		`sk-ant-[a-zA-Z0-9\-]{20,}`,
		// OpenAI and Groq style keys
		`sk-[a-zA-Z0-9]{20,}`,
		`gsk_[a-zA-Z0-9]{20,}`,
		// GitHub tokens
		`gh[posr]_[a-zA-Z0-9]{20,}`,
		`github_pat_[a-zA-Z0-9_]{20,}`,
		// AWS access key IDs
		`AKIA[0-9A-Z]{16}`,
		// Google API keys
		`AIza[0-9A-Za-z\-_]{35}`,
		// JWTs
		`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
		// PEM private keys
		`-----BEGIN\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----[\s\S]*?-----END\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----`,
		// Slack tokens
		`xox[baprs]-[a-zA-Z0-9\-]{10,}`,
		// Bearer headers echoed in HTTP errors
		`Bearer\s+[a-zA-Z0-9_\-\.]+`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return compiled
}
