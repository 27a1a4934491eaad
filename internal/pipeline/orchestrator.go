// orchestrator.go - Scan pipeline sequencing and degrade-don't-abort policy

package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pantrysnap/receipt_ocr_gemini/configs"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/ai"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/common"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/processor"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/storage"
)

// arithmeticTolerance is the allowed absolute gap between the item price
// sum and the printed subtotal before a quality warning is raised
const arithmeticTolerance = 0.02

// Orchestrator wires the extraction providers and reference tables into
// one scan pipeline. Stateless across scans; every request builds its own
// ExtractedReceipt.
type Orchestrator struct {
	Extraction   ai.VisionProvider
	Verification ai.VisionProvider
	OCR          ai.OCRProvider // nil disables the pre-pass
	Tables       processor.LookupTables

	// PersistSessions controls the best-effort scan session write
	PersistSessions bool
}

// NewOrchestrator builds the production pipeline from configuration
func NewOrchestrator() *Orchestrator {
	extraction, verification := ai.NewVisionProviders()
	return &Orchestrator{
		Extraction:      extraction,
		Verification:    verification,
		OCR:             ai.NewOCRProvider(),
		Tables:          processor.DefaultLookupTables(),
		PersistSessions: true,
	}
}

// ScanRequest describes one receipt scan
type ScanRequest struct {
	ImagePath      string
	StoreHint      string
	EstimatedItems int
	HouseholdID    string
}

// Scan runs the full pipeline: optional OCR pre-pass, single or chunked
// extraction, normalization, gap detection, verification, consolidation
// check, calibration, confidence scoring, best-effort persistence.
//
// Only a failed or unparseable first extraction is fatal. Every other
// sub-step failure degrades into a quality warning on a successful result.
func (o *Orchestrator) Scan(ctx context.Context, req ScanRequest, reqCtx *common.RequestContext) receipt.ScanResult {
	correctionLines := o.loadCorrectionLines(req.StoreHint, reqCtx)

	ocrLines, ocrEstimate := o.runOCRPrePass(ctx, req.ImagePath, reqCtx)

	estimate := req.EstimatedItems
	if ocrEstimate > 0 {
		estimate = ocrEstimate
	}

	var rec *receipt.ExtractedReceipt
	var stats processor.ScanStats

	chunks := processor.PlanChunks(estimate, configs.CHUNK_ITEM_THRESHOLD, configs.CHUNK_OVERLAP_PERCENT)
	if len(chunks) == 0 {
		var fatal *receipt.ScanResult
		rec, fatal = o.singlePassExtraction(ctx, req, ocrLines, correctionLines, reqCtx)
		if fatal != nil {
			return *fatal
		}
	} else {
		var fatal *receipt.ScanResult
		rec, fatal = o.chunkedExtraction(ctx, req, chunks, &stats, reqCtx)
		if fatal != nil {
			return *fatal
		}
	}

	o.normalizeItems(rec.Items)

	reqCtx.StartStep("gap_detection")
	gaps := processor.DetectGaps(rec.Items)
	reqCtx.LogInfo("Detected %d gap(s) in the line sequence", len(gaps))
	reqCtx.EndStep("success", nil, nil)

	stats.UnresolvedGaps = len(gaps)
	if len(gaps) > 0 && len(rec.Items) > 0 {
		o.runVerificationPass(ctx, req, rec, gaps, &stats, reqCtx)
	}

	reqCtx.StartStep("consolidation")
	items, consolidationWarnings := processor.ValidateConsolidations(rec.Items)
	rec.Items = items
	for _, w := range consolidationWarnings {
		rec.AddWarning("%s", w)
	}
	reqCtx.EndStep("success", nil, nil)

	reqCtx.StartStep("calibration")
	processor.RenumberItems(rec.Items)
	processor.CalibratePositions(rec.Items)
	reqCtx.EndStep("success", nil, nil)

	o.checkArithmetic(rec)

	confidence := processor.CalculateConfidence(rec, stats, reqCtx)
	rec.Confidence = confidence

	result := receipt.ScanResult{
		Success:    true,
		Receipt:    rec,
		Confidence: confidence,
		TokensUsed: reqCtx.TotalTokens.TotalTokens,
		CostUSD:    reqCtx.TotalTokens.CostUSD,
	}

	o.persistSession(req, rec, result, reqCtx)

	return result
}

// loadCorrectionLines fetches the store's recent corrections as few-shot
// prompt lines. Best-effort: a storage failure just skips the bias.
func (o *Orchestrator) loadCorrectionLines(storeHint string, reqCtx *common.RequestContext) string {
	corrections, err := storage.GetOrLoadCorrections(storeHint)
	if err != nil {
		reqCtx.LogWarning("Correction lookup failed, extracting without few-shot bias: %v", err)
		return ""
	}
	if len(corrections) == 0 {
		return ""
	}

	lines := ai.FormatCorrectionLines(corrections)
	if lines != "" {
		reqCtx.LogInfo("Injecting %d past correction(s) as few-shot context", len(corrections))
	}
	return lines
}

// runOCRPrePass returns positioned text lines plus an item count estimate.
// Failure is non-fatal: the pipeline just proceeds without the context.
func (o *Orchestrator) runOCRPrePass(ctx context.Context, imagePath string, reqCtx *common.RequestContext) ([]ai.OCRLine, int) {
	if o.OCR == nil {
		return nil, 0
	}

	reqCtx.StartStep("ocr_prepass")
	result, err := o.OCR.RecognizeLines(ctx, imagePath, reqCtx)
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		reqCtx.LogWarning("OCR pre-pass failed, continuing without positioned text: %v", err)
		return nil, 0
	}
	reqCtx.EndStep("success", result.Tokens, nil)

	estimate := estimateItemCount(result.Lines)
	reqCtx.LogInfo("OCR pre-pass estimates %d item line(s)", estimate)
	return result.Lines, estimate
}

// priceLineRe matches receipt lines ending in a price, the signature of an
// item line as opposed to header/footer text
var priceLineRe = regexp.MustCompile(`\d+\.\d{2}\s*[A-Z]?\s*$`)

// estimateItemCount counts OCR lines that look like priced item lines,
// excluding the subtotal/tax/total block
func estimateItemCount(lines []ai.OCRLine) int {
	count := 0
	for _, line := range lines {
		text := strings.ToLower(line.Text)
		if strings.Contains(text, "subtotal") || strings.Contains(text, "total") ||
			strings.Contains(text, "tax") || strings.Contains(text, "change") ||
			strings.Contains(text, "tender") || strings.Contains(text, "cash") ||
			strings.Contains(text, "credit") || strings.Contains(text, "debit") {
			continue
		}
		if priceLineRe.MatchString(line.Text) {
			count++
		}
	}
	return count
}

// singlePassExtraction runs the one-call strategy for short receipts.
// Returns a fatal ScanResult when the call fails or the response carries
// no parseable JSON.
func (o *Orchestrator) singlePassExtraction(ctx context.Context, req ScanRequest, ocrLines []ai.OCRLine, correctionLines string, reqCtx *common.RequestContext) (*receipt.ExtractedReceipt, *receipt.ScanResult) {
	reqCtx.StartStep("first_extraction")

	imageData, mimeType := o.loadImage(req.ImagePath, processor.HighQualityMode, reqCtx)
	prompt := ai.BuildExtractionPrompt(req.StoreHint, ocrLines, correctionLines)

	resp, err := o.Extraction.ExtractReceipt(ctx, ai.ExtractionRequest{
		ImageData: imageData,
		MIMEType:  mimeType,
		Prompt:    prompt,
	}, reqCtx)
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		return nil, &receipt.ScanResult{Success: false, Error: ai.UserFacingMessage(err)}
	}

	rec, err := receipt.ParseExtractionResponse(resp.Text)
	if err != nil {
		reqCtx.EndStep("failed", resp.Tokens, err)
		return nil, &receipt.ScanResult{
			Success: false,
			Error:   "The extraction service returned an unreadable result. Please try again.",
		}
	}

	reqCtx.LogInfo("First extraction: %d item(s)", len(rec.Items))
	reqCtx.EndStep("success", resp.Tokens, nil)
	return rec, nil
}

// chunkedExtraction fans the chunk calls out concurrently, with a parallel
// metadata call reading the store header and totals from the full image.
// Individual chunk failures degrade; only all chunks failing is fatal.
func (o *Orchestrator) chunkedExtraction(ctx context.Context, req ScanRequest, chunks []receipt.Chunk, stats *processor.ScanStats, reqCtx *common.RequestContext) (*receipt.ExtractedReceipt, *receipt.ScanResult) {
	reqCtx.StartStep("chunked_extraction")
	reqCtx.LogInfo("Chunked strategy: %d band(s)", len(chunks))

	results := make([]processor.ChunkResult, len(chunks))
	chunkTokens := make([]*common.TokenUsage, len(chunks))

	var metaReceipt *receipt.ExtractedReceipt
	var metaTokens *common.TokenUsage

	g, gctx := errgroup.WithContext(ctx)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			items, tokens, err := o.extractChunk(gctx, req, chunk)
			results[i] = processor.ChunkResult{Chunk: chunk, Items: items, Err: err}
			chunkTokens[i] = tokens
			return nil // chunk errors degrade, never cancel siblings
		})
	}

	g.Go(func() error {
		metaReceipt, metaTokens = o.extractMetadata(gctx, req)
		return nil
	})

	_ = g.Wait() // workers never return errors; failures ride in results

	for _, tokens := range chunkTokens {
		reqCtx.AddTokens(tokens)
	}
	reqCtx.AddTokens(metaTokens)

	failed := 0
	var firstErr error
	for _, res := range results {
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = res.Err
			}
			reqCtx.LogWarning("Chunk %d (%s) failed: %v", res.Chunk.ID, res.Chunk.Section, res.Err)
		}
	}
	stats.TotalChunks = len(chunks)
	stats.FailedChunks = failed

	if failed == len(chunks) {
		reqCtx.EndStep("failed", nil, firstErr)
		return nil, &receipt.ScanResult{Success: false, Error: ai.UserFacingMessage(firstErr)}
	}

	merged, warnings := processor.MergeChunkResults(results, configs.SIMILARITY_THRESHOLD)

	rec := metaReceipt
	if rec == nil {
		rec = &receipt.ExtractedReceipt{}
		rec.AddWarning("receipt header could not be read; store name and totals are missing")
	}
	rec.Items = merged
	for _, w := range warnings {
		rec.AddWarning("%s", w)
	}

	reqCtx.LogInfo("Chunked extraction: %d item(s) merged from %d/%d band(s)",
		len(merged), len(chunks)-failed, len(chunks))
	reqCtx.EndStep("success", nil, nil)
	return rec, nil
}

// extractChunk runs one single-shot extraction call on a cropped band
func (o *Orchestrator) extractChunk(ctx context.Context, req ScanRequest, chunk receipt.Chunk) ([]receipt.ReceiptItem, *common.TokenUsage, error) {
	imageData, mimeType, err := processor.CropVerticalBand(req.ImagePath, chunk.YStartPercent, chunk.YEndPercent)
	if err != nil {
		return nil, nil, fmt.Errorf("crop failed: %w", err)
	}

	chunkCtx := common.NewWorkerContext(fmt.Sprintf("chunk-%d", chunk.ID))
	resp, err := o.Extraction.ExtractReceipt(ctx, ai.ExtractionRequest{
		ImageData:   imageData,
		MIMEType:    mimeType,
		Prompt:      ai.BuildChunkPrompt(chunk, req.StoreHint),
		MaxAttempts: 1,
	}, chunkCtx)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := receipt.ParseExtractionResponse(resp.Text)
	if err != nil {
		return nil, resp.Tokens, err
	}

	return parsed.Items, resp.Tokens, nil
}

// extractMetadata reads store header and totals from the full image.
// Failure returns nil; the chunked path degrades to an item-only receipt.
func (o *Orchestrator) extractMetadata(ctx context.Context, req ScanRequest) (*receipt.ExtractedReceipt, *common.TokenUsage) {
	metaCtx := common.NewWorkerContext("metadata")

	imageData, mimeType := o.loadImage(req.ImagePath, processor.FastMode, metaCtx)
	resp, err := o.Extraction.ExtractReceipt(ctx, ai.ExtractionRequest{
		ImageData:   imageData,
		MIMEType:    mimeType,
		Prompt:      ai.BuildMetadataPrompt(req.StoreHint),
		MaxAttempts: 1,
	}, metaCtx)
	if err != nil {
		return nil, nil
	}

	rec, err := receipt.ParseExtractionResponse(resp.Text)
	if err != nil {
		return nil, resp.Tokens
	}
	rec.Items = nil
	return rec, resp.Tokens
}

// runVerificationPass issues the gap-scoped second look and splices any
// recoveries. Strictly non-fatal.
func (o *Orchestrator) runVerificationPass(ctx context.Context, req ScanRequest, rec *receipt.ExtractedReceipt, gaps []receipt.Gap, stats *processor.ScanStats, reqCtx *common.RequestContext) {
	reqCtx.StartStep("verification_pass")
	stats.VerificationRan = true

	imageData, mimeType := o.loadImage(req.ImagePath, processor.BalancedMode, reqCtx)
	resp, err := o.Verification.ExtractReceipt(ctx, ai.ExtractionRequest{
		ImageData:   imageData,
		MIMEType:    mimeType,
		Prompt:      ai.BuildVerificationPrompt(rec.Items, gaps),
		MaxAttempts: 1,
	}, reqCtx)
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		reqCtx.LogWarning("Verification pass failed, keeping first-pass result: %v", err)
		return
	}

	result, err := processor.ParseVerificationResponse(resp.Text)
	if err != nil {
		reqCtx.EndStep("failed", resp.Tokens, err)
		reqCtx.LogWarning("Verification response unparseable, keeping first-pass result: %v", err)
		return
	}

	if len(result.MissedItems) > 0 {
		o.normalizeItems(result.MissedItems)
		rec.Items = processor.SpliceRecoveredItems(rec.Items, result.MissedItems)
		rec.AddWarning("%d item(s) recovered by a verification pass; review them for accuracy", len(result.MissedItems))
		stats.RecoveredItems = len(result.MissedItems)
	}
	stats.UnresolvedGaps = len(processor.DetectGaps(rec.Items))

	if result.TotalVisibleItems > 0 && result.TotalVisibleItems != len(rec.Items) {
		rec.AddWarning("verification counted %d visible item(s) but the sequence has %d", result.TotalVisibleItems, len(rec.Items))
	}

	reqCtx.LogInfo("Verification: %d recovered, %d gap(s) remain", stats.RecoveredItems, stats.UnresolvedGaps)
	reqCtx.EndStep("success", resp.Tokens, nil)
}

func (o *Orchestrator) normalizeItems(items []receipt.ReceiptItem) {
	for i := range items {
		items[i].Name = processor.NormalizeItemName(items[i].Name, o.Tables)
	}
}

// loadImage preprocesses the receipt photo for a model call, falling back
// to the raw file bytes when preprocessing fails or is disabled
func (o *Orchestrator) loadImage(imagePath string, mode processor.PreprocessMode, reqCtx *common.RequestContext) ([]byte, string) {
	if configs.ENABLE_IMAGE_PREPROCESSING {
		var data []byte
		var mimeType string
		var err error
		switch mode {
		case processor.HighQualityMode:
			data, mimeType, err = processor.PreprocessImageHighQuality(imagePath)
		case processor.FastMode:
			data, mimeType, err = processor.PreprocessImageFast(imagePath)
		default:
			data, mimeType, err = processor.PreprocessImage(imagePath)
		}
		if err == nil {
			return data, mimeType
		}
		reqCtx.LogWarning("Image preprocessing failed, using original file: %v", err)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		reqCtx.LogError("Failed to read image file: %v", err)
		return nil, ""
	}
	return data, rawMIMEType(imagePath)
}

func rawMIMEType(imagePath string) string {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// checkArithmetic compares the item price sum against the printed subtotal
// (or total when neither subtotal nor tax is present)
func (o *Orchestrator) checkArithmetic(rec *receipt.ExtractedReceipt) {
	reference := rec.Subtotal
	label := "subtotal"
	if reference == nil && rec.Tax == nil {
		reference = rec.Total
		label = "total"
	}
	if reference == nil || len(rec.Items) == 0 {
		return
	}

	var sum float64
	for _, item := range rec.Items {
		sum += item.Price
	}

	if math.Abs(sum-*reference) > arithmeticTolerance {
		rec.AddWarning("item prices sum to $%.2f but the printed %s is $%.2f", sum, label, *reference)
	}
}

// persistSession writes the scan session best-effort; a failed save is a
// warning, never a failed scan
func (o *Orchestrator) persistSession(req ScanRequest, rec *receipt.ExtractedReceipt, result receipt.ScanResult, reqCtx *common.RequestContext) {
	if !o.PersistSessions {
		return
	}

	reqCtx.StartStep("persist_session")
	err := storage.SaveScanSession(storage.ScanSession{
		SessionID:   reqCtx.RequestID,
		HouseholdID: req.HouseholdID,
		StoreName:   rec.StoreName,
		Receipt:     rec,
		Confidence:  result.Confidence,
		TokensUsed:  result.TokensUsed,
		CostUSD:     result.CostUSD,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		reqCtx.EndStep("failed", nil, err)
		reqCtx.LogWarning("Scan session not persisted: %v", err)
		return
	}
	reqCtx.EndStep("success", nil, nil)
}
