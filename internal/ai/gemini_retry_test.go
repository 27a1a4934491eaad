package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestCategorizeGeminiError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCategory  string
		wantRetryable bool
	}{
		{"http 429 is a retryable rate limit", &googleapi.Error{Code: 429}, "rate_limit", true},
		{"http 503 is a retryable server error", &googleapi.Error{Code: 503}, "server_error", true},
		{"http 400 is not retryable", &googleapi.Error{Code: 400}, "bad_request", false},
		{"http 401 is not retryable", &googleapi.Error{Code: 401}, "unauthorized", false},
		{"http 413 is not retryable", &googleapi.Error{Code: 413}, "payload_too_large", false},
		{"deadline exceeded is a retryable timeout", context.DeadlineExceeded, "timeout", true},
		{"cancellation is not retryable", context.Canceled, "canceled", false},
		{"quota text is not retryable", errors.New("quota exhausted for project"), "quota_exceeded", false},
		{"network text is retryable", errors.New("network unreachable"), "network_error", true},
		{"anything else is unknown", errors.New("something odd"), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := categorizeGeminiError(tt.err)
			if got.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", got.Category, tt.wantCategory)
			}
			if got.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestUserFacingMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantPart string
	}{
		{"rate limit", &GeminiError{Category: "rate_limit"}, "over its request limit"},
		{"quota", &GeminiError{Category: "quota_exceeded"}, "over its request limit"},
		{"auth", &GeminiError{Category: "unauthorized"}, "authentication failed"},
		{"payload", &GeminiError{Category: "payload_too_large"}, "smaller or clearer photo"},
		{"timeout", &GeminiError{Category: "timeout"}, "took too long"},
		{"server", &GeminiError{Category: "server_error"}, "temporarily unavailable"},
		{"unknown category", &GeminiError{Category: "unknown"}, "Please try again."},
		{"plain error", errors.New("boom"), "Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserFacingMessage(tt.err)
			if !strings.Contains(got, tt.wantPart) {
				t.Errorf("UserFacingMessage() = %q, want it to contain %q", got, tt.wantPart)
			}
		})
	}
}

func TestUserFacingMessageUnwrapsRetryExhaustion(t *testing.T) {
	last := &GeminiError{Category: "rate_limit", Retryable: true, StatusCode: 429}
	wrapped := fmt.Errorf("gemini API call failed after 3 attempts: %w", last)

	direct := UserFacingMessage(last)
	viaWrap := UserFacingMessage(wrapped)

	if viaWrap != direct {
		t.Fatalf("wrapped error message = %q, direct = %q; category must survive wrapping", viaWrap, direct)
	}
	if !strings.Contains(viaWrap, "over its request limit") {
		t.Errorf("wrapped rate-limit error lost its message: %q", viaWrap)
	}
}
