// gemini_retry.go - Retry logic and error handling for Gemini API calls

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/common"
	"google.golang.org/api/googleapi"
)

// RetryConfig defines retry behavior for Gemini API calls
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults for the first extraction
// call, where there is no usable base result to degrade from
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    1 * time.Second,
	MaxDelay:        8 * time.Second,
	BackoffMultiple: 2.0,
}

// SingleAttempt disables retry; chunk and verification calls use this so
// a failure degrades into a warning instead of blocking the run
var SingleAttempt = RetryConfig{
	MaxAttempts:     1,
	InitialDelay:    1 * time.Second,
	MaxDelay:        1 * time.Second,
	BackoffMultiple: 1.0,
}

// GeminiError represents a categorized Gemini API error
type GeminiError struct {
	OriginalError error
	Category      string
	StatusCode    int
	Message       string
	Retryable     bool
}

func (e *GeminiError) Error() string {
	return fmt.Sprintf("[%s] %s (status: %d, retryable: %v)", e.Category, e.Message, e.StatusCode, e.Retryable)
}

// categorizeGeminiError analyzes error and determines retry strategy
func categorizeGeminiError(err error) *GeminiError {
	if err == nil {
		return nil
	}

	geminiErr := &GeminiError{
		OriginalError: err,
		Category:      "unknown",
		Message:       err.Error(),
		Retryable:     false,
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		geminiErr.StatusCode = apiErr.Code

		switch apiErr.Code {
		case 400:
			geminiErr.Category = "bad_request"
			geminiErr.Message = "Invalid request format or parameters"
			geminiErr.Retryable = false

		case 401:
			geminiErr.Category = "unauthorized"
			geminiErr.Message = "Invalid API key or authentication failed"
			geminiErr.Retryable = false

		case 403:
			geminiErr.Category = "forbidden"
			geminiErr.Message = "API key lacks required permissions"
			geminiErr.Retryable = false

		case 404:
			geminiErr.Category = "not_found"
			geminiErr.Message = "Model not found or invalid endpoint"
			geminiErr.Retryable = false

		case 413:
			geminiErr.Category = "payload_too_large"
			geminiErr.Message = "Request size exceeds limit (reduce image size)"
			geminiErr.Retryable = false

		case 429:
			geminiErr.Category = "rate_limit"
			geminiErr.Message = "Rate limit exceeded - too many requests"
			geminiErr.Retryable = true

		case 500, 502, 503, 504:
			geminiErr.Category = "server_error"
			geminiErr.Message = fmt.Sprintf("Gemini server error (%d)", apiErr.Code)
			geminiErr.Retryable = true

		default:
			geminiErr.Category = "unknown_api_error"
			geminiErr.Message = fmt.Sprintf("API error: %s", apiErr.Message)
			geminiErr.Retryable = apiErr.Code >= 500
		}

		return geminiErr
	}

	if err == context.DeadlineExceeded {
		geminiErr.Category = "timeout"
		geminiErr.Message = "Request timeout - processing took too long"
		geminiErr.Retryable = true
		return geminiErr
	}

	if err == context.Canceled {
		geminiErr.Category = "canceled"
		geminiErr.Message = "Request was canceled"
		geminiErr.Retryable = false
		return geminiErr
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "limit") {
		geminiErr.Category = "quota_exceeded"
		geminiErr.Message = "API quota exceeded - daily or monthly limit reached"
		geminiErr.Retryable = false
		return geminiErr
	}

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline") {
		geminiErr.Category = "timeout"
		geminiErr.Message = "Request timeout"
		geminiErr.Retryable = true
		return geminiErr
	}

	if strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "network") {
		geminiErr.Category = "network_error"
		geminiErr.Message = "Network connection error"
		geminiErr.Retryable = true
		return geminiErr
	}

	geminiErr.Category = "unknown"
	geminiErr.Retryable = false
	return geminiErr
}

// callGeminiWithRetry executes a Gemini API call with retry logic
func callGeminiWithRetry(
	ctx context.Context,
	model *genai.GenerativeModel,
	prompt genai.Part,
	image genai.Part,
	reqCtx *common.RequestContext,
	config RetryConfig,
) (*genai.GenerateContentResponse, error) {

	var lastGeminiErr *GeminiError

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if attempt > 1 {
			reqCtx.LogInfo("Retry attempt %d/%d", attempt, config.MaxAttempts)
		}

		resp, err := model.GenerateContent(ctx, prompt, image)

		if err == nil {
			if attempt > 1 {
				reqCtx.LogInfo("Retry succeeded on attempt %d", attempt)
			}
			return resp, nil
		}

		lastGeminiErr = categorizeGeminiError(err)

		reqCtx.LogError("API call failed (attempt %d/%d): %s", attempt, config.MaxAttempts, lastGeminiErr.Error())

		if !lastGeminiErr.Retryable {
			reqCtx.LogError("Non-retryable error detected, aborting")
			return nil, lastGeminiErr
		}

		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateBackoff(attempt, config)

		// Rate limit gets a longer breather
		if lastGeminiErr.Category == "rate_limit" {
			delay = delay * 2
			reqCtx.LogWarning("Rate limit hit, waiting %v before retry", delay)
		} else {
			reqCtx.LogInfo("Waiting %v before retry", delay)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry wait: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	if config.MaxAttempts == 1 {
		return nil, lastGeminiErr
	}

	reqCtx.LogError("All %d attempts failed, last error: %s", config.MaxAttempts, lastGeminiErr.Error())
	return nil, fmt.Errorf("gemini API call failed after %d attempts: %w", config.MaxAttempts, lastGeminiErr)
}

// calculateBackoff computes exponential backoff delay
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= config.BackoffMultiple
	}

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	return time.Duration(delay)
}

// UserFacingMessage converts a categorized error into the message surfaced
// in a success:false scan result. The retry path wraps the last GeminiError,
// so unwrap rather than type-assert.
func UserFacingMessage(err error) string {
	var geminiErr *GeminiError
	if !errors.As(err, &geminiErr) {
		return "Receipt extraction failed. Please try again."
	}

	switch geminiErr.Category {
	case "rate_limit", "quota_exceeded":
		return "The extraction service is over its request limit. Please wait a moment and try again."
	case "unauthorized", "forbidden":
		return "Extraction service authentication failed. Please contact support."
	case "payload_too_large", "bad_request":
		return "The receipt image could not be processed. Try a smaller or clearer photo."
	case "timeout":
		return "Extraction took too long. Please try again with a clearer photo."
	case "server_error", "network_error":
		return "The extraction service is temporarily unavailable. Please try again in a few minutes."
	default:
		return "Receipt extraction failed. Please try again."
	}
}
