package http

import (
	"fmt"
	"regexp"
)

// MaxLoggedResponseLength caps how much raw model output appears in
// logs. Responses carry user source code, so the rest is elided.
const MaxLoggedResponseLength = 200

// TruncateForLogging shortens a model response for safe logging.
func TruncateForLogging(response string) string {
	if len(response) <= MaxLoggedResponseLength {
		return response
	}
	return response[:MaxLoggedResponseLength] + fmt.Sprintf("... [truncated, total length=%d bytes]", len(response))
}

var secretQueryParams = []*regexp.Regexp{
	regexp.MustCompile(`(api_key)=[^&"\s]+`),
	regexp.MustCompile(`(apiKey)=[^&"\s]+`),
	regexp.MustCompile(`(access_token)=[^&"\s]+`),
	regexp.MustCompile(`(token)=[^&"\s]+`),
	regexp.MustCompile(`(key)=[^&"\s]+`),
}

// RedactURLSecrets masks key/token query parameters in text destined for
// logs or error messages. Some provider APIs put the API key in the URL,
// which otherwise leaks through wrapped transport errors.
func RedactURLSecrets(text string) string {
	if text == "" {
		return text
	}
	result := text
	for _, re := range secretQueryParams {
		result = re.ReplaceAllString(result, "$1=[REDACTED]")
	}
	return result
}
