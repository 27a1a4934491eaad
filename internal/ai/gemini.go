// gemini.go - Gemini vision provider for receipt extraction calls

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pantrysnap/receipt_ocr_gemini/configs"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/common"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/ratelimit"
	"google.golang.org/api/option"
)

// CostFunc converts token counts into a priced TokenUsage; extraction and
// verification calls bill at different per-million rates
type CostFunc func(inputTokens, outputTokens int) common.TokenUsage

// GeminiProvider implements VisionProvider over the Gemini API
type GeminiProvider struct {
	apiKey    string
	modelName string
	costFn    CostFunc
}

// NewGeminiProvider creates a Gemini vision provider for one model/pricing pair
func NewGeminiProvider(apiKey, modelName string, costFn CostFunc) *GeminiProvider {
	return &GeminiProvider{
		apiKey:    apiKey,
		modelName: modelName,
		costFn:    costFn,
	}
}

// ProviderName returns "gemini"
func (g *GeminiProvider) ProviderName() string {
	return "gemini"
}

// ExtractReceipt submits the image plus prompt and returns the raw
// response text with token accounting. Retry behavior follows
// req.MaxAttempts; 0 means the default policy.
func (g *GeminiProvider) ExtractReceipt(ctx context.Context, req ExtractionRequest, reqCtx *common.RequestContext) (*ExtractionResponse, error) {
	reqCtx.StartSubStep("init_gemini_client")
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		reqCtx.EndSubStep("failed")
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.modelName)

	// Explicit MaxOutputTokens prevents silent truncation on long receipts
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: ptr(int32(8192)),
	}
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)

	reqCtx.LogInfo("Extraction model: %s (MaxOutputTokens: 8192)", g.modelName)
	reqCtx.EndSubStep("")

	retryConfig := DefaultRetryConfig
	switch {
	case req.MaxAttempts == 1:
		retryConfig = SingleAttempt
	case req.MaxAttempts > 1:
		retryConfig.MaxAttempts = req.MaxAttempts
	}

	reqCtx.StartSubStep("call_gemini_api")
	ratelimit.WaitForRateLimit()
	resp, err := callGeminiWithRetry(ctx, model,
		genai.Text(req.Prompt),
		genai.Blob{
			MIMEType: req.MIMEType,
			Data:     req.ImageData,
		},
		reqCtx,
		retryConfig,
	)
	if err != nil {
		reqCtx.EndSubStep("failed")
		return nil, err
	}
	reqCtx.EndSubStep("")

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from Gemini API")
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text = string(t)
			break
		}
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty response from Gemini API (FinishReason: %v)", resp.Candidates[0].FinishReason)
	}

	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		reqCtx.LogWarning("Response truncated at token limit; receipt may be incomplete")
	}

	result := &ExtractionResponse{Text: text}
	if resp.UsageMetadata != nil {
		tokens := g.costFn(
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
		)
		result.Tokens = &tokens
		reqCtx.LogInfo("Response: %d chars | tokens: %din + %dout | cost: $%.4f",
			len(text), tokens.InputTokens, tokens.OutputTokens, tokens.CostUSD)
	}

	return result, nil
}

// NewExtractionProvider builds the Gemini provider used for the first pass
// and chunk calls, priced at extraction rates
func NewExtractionProvider() *GeminiProvider {
	return NewGeminiProvider(configs.GEMINI_API_KEY, configs.EXTRACTION_MODEL_NAME, common.CalculateExtractionTokenCost)
}

// NewVerificationProvider builds the cheaper Gemini provider used for the
// gap verification pass
func NewVerificationProvider() *GeminiProvider {
	return NewGeminiProvider(configs.GEMINI_API_KEY, configs.VERIFICATION_MODEL_NAME, common.CalculateVerificationTokenCost)
}

// ptr is a helper function to get a pointer to an int32 value
func ptr(i int32) *int32 {
	return &i
}
