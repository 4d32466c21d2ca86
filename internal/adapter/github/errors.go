package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	llmhttp "github.com/sentinelci/pr-sentinel/internal/adapter/llm/http"
)

const providerName = "github"

// mapHTTPError converts GitHub API status codes into the shared typed error
// taxonomy so the retry layer can decide what to do with them.
func mapHTTPError(statusCode int, body []byte) *llmhttp.Error {
	message := parseErrorMessage(statusCode, body)

	errType := llmhttp.ErrTypeUnknown
	retryable := false

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = llmhttp.ErrTypeAuthentication
	case http.StatusTooManyRequests:
		errType = llmhttp.ErrTypeRateLimit
		retryable = true
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		errType = llmhttp.ErrTypeInvalidRequest
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		errType = llmhttp.ErrTypeServiceUnavailable
		retryable = true
	}

	return &llmhttp.Error{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Provider:   providerName,
	}
}

// parseErrorMessage extracts a readable message from GitHub's error body.
func parseErrorMessage(statusCode int, body []byte) string {
	var decoded errorResponse
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Message == "" {
		preview := string(body)
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		if preview == "" {
			return fmt.Sprintf("HTTP %d", statusCode)
		}
		return fmt.Sprintf("HTTP %d: %s", statusCode, preview)
	}

	if len(decoded.Errors) == 0 {
		return decoded.Message
	}

	var details []string
	for _, e := range decoded.Errors {
		switch {
		case e.Message != "":
			details = append(details, e.Message)
		case e.Field != "":
			details = append(details, fmt.Sprintf("%s: %s", e.Field, e.Code))
		}
	}
	if len(details) == 0 {
		return decoded.Message
	}
	return fmt.Sprintf("%s: %s", decoded.Message, strings.Join(details, "; "))
}
