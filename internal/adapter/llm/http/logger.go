package http

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Logger records provider API traffic. Implementations must never emit
// full prompts, responses, or unredacted credentials.
type Logger interface {
	LogRequest(ctx context.Context, req RequestLog)
	LogResponse(ctx context.Context, resp ResponseLog)
	LogError(ctx context.Context, err ErrorLog)
}

// RequestLog describes an outgoing API request.
type RequestLog struct {
	Provider    string
	Model       string
	Timestamp   time.Time
	PromptChars int
	APIKey      string // redacted before logging
}

// ResponseLog describes a completed API call.
type ResponseLog struct {
	Provider     string
	Model        string
	Timestamp    time.Time
	Duration     time.Duration
	TokensIn     int
	TokensOut    int
	Cost         float64
	StatusCode   int
	FinishReason string
}

// ErrorLog describes a failed API call.
type ErrorLog struct {
	Provider   string
	Model      string
	Timestamp  time.Time
	Duration   time.Duration
	Error      error
	ErrorType  ErrorType
	StatusCode int
	Retryable  bool
}

// HCLogger adapts hclog to the Logger interface.
type HCLogger struct {
	logger hclog.Logger
}

func NewHCLogger(logger hclog.Logger) *HCLogger {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HCLogger{logger: logger}
}

func (l *HCLogger) LogRequest(ctx context.Context, req RequestLog) {
	l.logger.Debug("llm request",
		"provider", req.Provider,
		"model", req.Model,
		"prompt_chars", req.PromptChars,
		"api_key", RedactAPIKey(req.APIKey),
	)
}

func (l *HCLogger) LogResponse(ctx context.Context, resp ResponseLog) {
	l.logger.Info("llm response",
		"provider", resp.Provider,
		"model", resp.Model,
		"duration_ms", resp.Duration.Milliseconds(),
		"tokens_in", resp.TokensIn,
		"tokens_out", resp.TokensOut,
		"cost_usd", fmt.Sprintf("%.6f", resp.Cost),
		"status_code", resp.StatusCode,
		"finish_reason", resp.FinishReason,
	)
}

func (l *HCLogger) LogError(ctx context.Context, errLog ErrorLog) {
	l.logger.Error("llm call failed",
		"provider", errLog.Provider,
		"model", errLog.Model,
		"duration_ms", errLog.Duration.Milliseconds(),
		"error", RedactURLSecrets(errLog.Error.Error()),
		"error_type", errLog.ErrorType.String(),
		"status_code", errLog.StatusCode,
		"retryable", errLog.Retryable,
	)
}

// RedactAPIKey keeps only the last 4 characters of a key.
func RedactAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "[REDACTED]"
	}
	return fmt.Sprintf("[REDACTED-%s]", key[len(key)-4:])
}
