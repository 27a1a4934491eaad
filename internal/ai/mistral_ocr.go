// mistral_ocr.go - Mistral OCR client for the positioned-text pre-pass

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/common"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/processor"
)

// MistralProvider implements OCRProvider over the Mistral OCR HTTP API
type MistralProvider struct {
	apiKey    string
	modelName string
	client    *http.Client
}

// NewMistralProvider creates a new Mistral OCR provider
func NewMistralProvider(apiKey, modelName string) *MistralProvider {
	return &MistralProvider{
		apiKey:    apiKey,
		modelName: modelName,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// ProviderName returns "mistral"
func (m *MistralProvider) ProviderName() string {
	return "mistral"
}

// Mistral OCR API request/response structures
type mistralOCRDocument struct {
	Type     string `json:"type"`                // "image_url"
	ImageURL string `json:"image_url,omitempty"` // base64 data URL
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

type mistralOCRUsageInfo struct {
	PagesProcessed int `json:"pages_processed"`
}

type mistralOCRResponse struct {
	Model     string              `json:"model"`
	Pages     []mistralOCRPage    `json:"pages"`
	UsageInfo mistralOCRUsageInfo `json:"usage_info"`
}

type mistralErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Mistral OCR: $2 per 1,000 pages
const mistralCostPerPage = 0.002

// RecognizeLines runs the receipt image through Mistral OCR and returns
// positioned text lines. Line positions are derived from line index over
// total line count, which is precise enough for item-count estimation and
// prompt context.
func (m *MistralProvider) RecognizeLines(ctx context.Context, imagePath string, reqCtx *common.RequestContext) (*OCRResult, error) {
	reqCtx.LogInfo("OCR pre-pass via Mistral (model: %s)", m.modelName)

	reqCtx.StartSubStep("image_preprocessing")
	imageData, mimeType, err := processor.PreprocessImage(imagePath)
	reqCtx.EndSubStep("")
	if err != nil {
		reqCtx.LogInfo("Preprocessing failed, using original file: %v", err)
		imageData, err = os.ReadFile(imagePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		mimeType = mimeTypeFromExt(imagePath)
	}

	base64Image := base64.StdEncoding.EncodeToString(imageData)
	request := mistralOCRRequest{
		Model: m.modelName,
		Document: mistralOCRDocument{
			Type:     "image_url",
			ImageURL: fmt.Sprintf("data:%s;base64,%s", mimeType, base64Image),
		},
	}

	reqCtx.StartSubStep("mistral_ocr_call")
	response, err := m.callMistralOCRAPI(ctx, request)
	reqCtx.EndSubStep("")
	if err != nil {
		return nil, fmt.Errorf("mistral OCR API call failed: %w", err)
	}

	if len(response.Pages) == 0 {
		return nil, fmt.Errorf("no pages returned from Mistral OCR API")
	}

	var rawLines []string
	for _, page := range response.Pages {
		for _, line := range strings.Split(page.Markdown, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				rawLines = append(rawLines, line)
			}
		}
	}

	total := len(rawLines)
	lines := make([]OCRLine, 0, total)
	for i, text := range rawLines {
		yPercent := 0.0
		if total > 1 {
			yPercent = float64(i) / float64(total-1) * 100
		}
		lines = append(lines, OCRLine{
			Text:     text,
			YPercent: yPercent,
			// The OCR endpoint reports no per-line confidence; treat
			// returned lines as trusted context
			Confidence: 1.0,
		})
	}

	pagesProcessed := response.UsageInfo.PagesProcessed
	tokens := &common.TokenUsage{
		InputTokens: pagesProcessed, // pages stand in for tokens in the accounting
		TotalTokens: pagesProcessed,
		CostUSD:     float64(pagesProcessed) * mistralCostPerPage,
	}

	reqCtx.LogInfo("OCR pre-pass: %d line(s) from %d page(s), cost $%.4f",
		len(lines), pagesProcessed, tokens.CostUSD)

	return &OCRResult{Lines: lines, Tokens: tokens}, nil
}

// callMistralOCRAPI makes the HTTP request to the Mistral OCR endpoint
func (m *MistralProvider) callMistralOCRAPI(ctx context.Context, request mistralOCRRequest) (*mistralOCRResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		"POST",
		"https://api.mistral.ai/v1/ocr",
		bytes.NewBuffer(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiKey))

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errorResp mistralErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return nil, fmt.Errorf("mistral OCR API error (%d): %s", resp.StatusCode, errorResp.Error.Message)
		}
		return nil, fmt.Errorf("mistral OCR API error (%d): %s", resp.StatusCode, string(body))
	}

	var response mistralOCRResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse OCR response: %w", err)
	}

	return &response, nil
}

func mimeTypeFromExt(imagePath string) string {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
