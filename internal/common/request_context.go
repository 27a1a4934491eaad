// request_context.go - Request tracking and logging system

package common

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pantrysnap/receipt_ocr_gemini/configs"
)

// RequestContext tracks the entire scan lifecycle with timing and costs
type RequestContext struct {
	RequestID           string
	HouseholdID         string
	StartTime           time.Time
	Steps               []StepLog
	TotalTokens         TokenUsage
	CurrentStep         string
	CurrentStepStart    time.Time
	CurrentSubSteps     []SubStepLog
	CurrentSubStep      string
	CurrentSubStepStart time.Time
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string       `json:"name"`
	StartTime time.Time    `json:"start_time"`
	Duration  int64        `json:"duration_ms"`
	Status    string       `json:"status"` // "success", "failed", "skipped"
	Tokens    *TokenUsage  `json:"tokens,omitempty"`
	Error     string       `json:"error,omitempty"`
	SubSteps  []SubStepLog `json:"sub_steps,omitempty"`
}

// SubStepLog represents a detailed sub-operation within a step
type SubStepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Details   string    `json:"details,omitempty"`
}

// TokenUsage tracks API token consumption
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// NewRequestContext creates a new request tracking context
func NewRequestContext(householdID string) *RequestContext {
	reqID := uuid.New().String()
	now := time.Now()

	log.Printf("[%s] New scan request | Household: %s | Time: %s", reqID, householdID, now.Format("15:04:05"))

	return &RequestContext{
		RequestID:   reqID,
		HouseholdID: householdID,
		StartTime:   now,
		Steps:       []StepLog{},
		TotalTokens: TokenUsage{},
	}
}

// NewWorkerContext creates a context for a concurrent sub-call (chunk or
// metadata worker). Each worker logs under its own id because the parent
// context's step tracking is not safe for concurrent use.
func NewWorkerContext(label string) *RequestContext {
	return &RequestContext{
		RequestID:   label + "-" + uuid.New().String()[:8],
		StartTime:   time.Now(),
		Steps:       []StepLog{},
		TotalTokens: TokenUsage{},
	}
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.CurrentStep = stepName
	rc.CurrentStepStart = time.Now()

	stepDescriptions := map[string]string{
		"ocr_prepass":        "OCR pre-pass (positioned text lines)",
		"first_extraction":   "First extraction (vision model)",
		"chunked_extraction": "Chunked extraction (parallel bands)",
		"gap_detection":      "Gap detection",
		"verification_pass":  "Verification pass (gap recovery)",
		"consolidation":      "Consolidation sanity check",
		"calibration":        "Position calibration",
		"persist_session":    "Persist scan session",
	}

	desc := stepDescriptions[stepName]
	if desc == "" {
		desc = stepName
	}

	log.Printf("[%s] \n┌── %s", rc.RequestID, desc)
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	duration := time.Since(rc.CurrentStepStart).Milliseconds()

	stepLog := StepLog{
		Name:      rc.CurrentStep,
		StartTime: rc.CurrentStepStart,
		Duration:  duration,
		Status:    status,
		Tokens:    tokens,
		SubSteps:  rc.CurrentSubSteps,
	}

	// Tokens were spent whether or not the step succeeded; a failed parse
	// after a billed model call still counts toward the run's totals
	if tokens != nil {
		rc.TotalTokens.InputTokens += tokens.InputTokens
		rc.TotalTokens.OutputTokens += tokens.OutputTokens
		rc.TotalTokens.TotalTokens += tokens.TotalTokens
		rc.TotalTokens.CostUSD += tokens.CostUSD
	}

	if err != nil {
		stepLog.Error = err.Error()
		log.Printf("[%s] └── FAILED - %s (%.2fs) - Error: %v",
			rc.RequestID, rc.CurrentStep, float64(duration)/1000, err)
	} else {
		logMsg := fmt.Sprintf("[%s] └── done: %.2fs", rc.RequestID, float64(duration)/1000)

		if tokens != nil {
			logMsg += fmt.Sprintf(" | Tokens: %din + %dout = %d | Cost: $%.4f",
				tokens.InputTokens, tokens.OutputTokens, tokens.TotalTokens, tokens.CostUSD)
		}

		if len(rc.CurrentSubSteps) > 0 {
			logMsg += fmt.Sprintf(" | sub-steps: %d", len(rc.CurrentSubSteps))
		}

		log.Print(logMsg)
	}

	rc.Steps = append(rc.Steps, stepLog)
	rc.CurrentStep = ""
	rc.CurrentSubSteps = []SubStepLog{}
}

// AddTokens accumulates usage outside a step boundary (e.g., parallel chunk calls
// whose per-call usage is collected after the step already ended)
func (rc *RequestContext) AddTokens(tokens *TokenUsage) {
	if tokens == nil {
		return
	}
	rc.TotalTokens.InputTokens += tokens.InputTokens
	rc.TotalTokens.OutputTokens += tokens.OutputTokens
	rc.TotalTokens.TotalTokens += tokens.TotalTokens
	rc.TotalTokens.CostUSD += tokens.CostUSD
}

// CalculateExtractionTokenCost computes cost for extraction calls (first pass and chunks)
func CalculateExtractionTokenCost(inputTokens, outputTokens int) TokenUsage {
	return calculateTokenCost(inputTokens, outputTokens,
		configs.EXTRACTION_INPUT_PRICE_PER_MILLION, configs.EXTRACTION_OUTPUT_PRICE_PER_MILLION)
}

// CalculateVerificationTokenCost computes cost for the verification pass
func CalculateVerificationTokenCost(inputTokens, outputTokens int) TokenUsage {
	return calculateTokenCost(inputTokens, outputTokens,
		configs.VERIFICATION_INPUT_PRICE_PER_MILLION, configs.VERIFICATION_OUTPUT_PRICE_PER_MILLION)
}

func calculateTokenCost(inputTokens, outputTokens int, inputRate, outputRate float64) TokenUsage {
	inputCost := float64(inputTokens) * inputRate / 1_000_000
	outputCost := float64(outputTokens) * outputRate / 1_000_000

	return TokenUsage{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		CostUSD:      inputCost + outputCost,
	}
}

// GetSummary returns a final summary of the entire request
func (rc *RequestContext) GetSummary() map[string]interface{} {
	totalDuration := time.Since(rc.StartTime).Milliseconds()

	stepBreakdown := make(map[string]int64)
	for _, step := range rc.Steps {
		stepBreakdown[step.Name] = step.Duration
	}

	summary := map[string]interface{}{
		"request_id":         rc.RequestID,
		"household_id":       rc.HouseholdID,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        len(rc.Steps),
		"token_usage": map[string]interface{}{
			"input_tokens":  rc.TotalTokens.InputTokens,
			"output_tokens": rc.TotalTokens.OutputTokens,
			"total_tokens":  rc.TotalTokens.TotalTokens,
			"cost_usd":      fmt.Sprintf("$%.4f", rc.TotalTokens.CostUSD),
		},
	}

	log.Printf("[%s] ═══ Scan summary ═══", rc.RequestID)
	log.Printf("[%s] Total: %.2fs | Steps: %d | Tokens: %sin + %sout = %s | Cost: $%.4f",
		rc.RequestID,
		float64(totalDuration)/1000,
		len(rc.Steps),
		formatNumber(rc.TotalTokens.InputTokens),
		formatNumber(rc.TotalTokens.OutputTokens),
		formatNumber(rc.TotalTokens.TotalTokens),
		rc.TotalTokens.CostUSD)
	log.Printf("[%s] ═══════════════════\n", rc.RequestID)

	return summary
}

// StartSubStep begins tracking a detailed sub-operation
func (rc *RequestContext) StartSubStep(subStepName string) {
	rc.CurrentSubStep = subStepName
	rc.CurrentSubStepStart = time.Now()

	subStepDesc := map[string]string{
		"image_preprocessing": "preprocess image",
		"crop_chunk_band":     "crop chunk band",
		"init_gemini_client":  "connect Gemini client",
		"create_json_schema":  "build response schema",
		"configure_model":     "configure model",
		"build_prompt":        "build prompt",
		"call_gemini_api":     "call Gemini API",
		"parse_json_response": "parse response",
		"extract_metadata":    "extract metadata",
		"mistral_ocr_call":    "call Mistral OCR API",
	}

	desc := subStepDesc[subStepName]
	if desc == "" {
		desc = subStepName
	}

	log.Printf("[%s]    ├─ %s...", rc.RequestID, desc)
}

// EndSubStep completes the current sub-step and records timing
func (rc *RequestContext) EndSubStep(details string) {
	if rc.CurrentSubStep == "" {
		return
	}

	duration := time.Since(rc.CurrentSubStepStart).Milliseconds()

	subStepLog := SubStepLog{
		Name:      rc.CurrentSubStep,
		StartTime: rc.CurrentSubStepStart,
		Duration:  duration,
		Details:   details,
	}

	rc.CurrentSubSteps = append(rc.CurrentSubSteps, subStepLog)

	detailsMsg := ""
	if details != "" {
		detailsMsg = " | " + details
	}
	log.Printf("[%s]    └─ %.2fs%s", rc.RequestID, float64(duration)/1000, detailsMsg)

	rc.CurrentSubStep = ""
}

// LogInfo logs info-level message with request ID prefix
func (rc *RequestContext) LogInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] INFO  %s", rc.RequestID, msg)
}

// LogWarning logs warning-level message with request ID prefix
func (rc *RequestContext) LogWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] WARN  %s", rc.RequestID, msg)
}

// LogError logs error-level message with request ID prefix
func (rc *RequestContext) LogError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[%s] ERROR %s", rc.RequestID, msg)
}

// formatNumber adds comma separators to numbers
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n%1000000)/1000, n%1000)
}
