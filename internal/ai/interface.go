// interface.go - Provider interfaces for the vision and OCR collaborators

package ai

import (
	"context"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/common"
)

// ExtractionRequest is one vision-model call: an image plus the prompt
// describing the expected output schema. MaxAttempts controls provider-level
// retry; the orchestrator passes 1 for chunk and verification calls so a
// failed sub-call degrades instead of retrying.
type ExtractionRequest struct {
	ImageData   []byte
	MIMEType    string
	Prompt      string
	MaxAttempts int
}

// ExtractionResponse carries the raw response text and token accounting.
// The text is expected to contain a JSON object, optionally fenced.
type ExtractionResponse struct {
	Text   string
	Tokens *common.TokenUsage
}

// VisionProvider is the opaque extraction capability: submit image and
// prompt, receive text
type VisionProvider interface {
	ExtractReceipt(ctx context.Context, req ExtractionRequest, reqCtx *common.RequestContext) (*ExtractionResponse, error)

	// ProviderName returns the provider identifier (e.g. "gemini")
	ProviderName() string
}

// OCRLine is one positioned text line from the OCR pre-pass
type OCRLine struct {
	Text       string  `json:"text"`
	YPercent   float64 `json:"y_percent"`
	Confidence float64 `json:"confidence"`
}

// OCRResult is the positioned-text output of the optional OCR pre-pass,
// consumed only for prompt context and item-count estimation
type OCRResult struct {
	Lines  []OCRLine
	Tokens *common.TokenUsage
}

// OCRProvider is the optional positioned-text capability. Never required
// for correctness; failure falls back to the non-OCR path.
type OCRProvider interface {
	RecognizeLines(ctx context.Context, imagePath string, reqCtx *common.RequestContext) (*OCRResult, error)

	// ProviderName returns the provider identifier (e.g. "mistral")
	ProviderName() string
}
