package ai

import (
	"strings"
	"testing"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

func TestBuildExtractionPrompt(t *testing.T) {
	prompt := BuildExtractionPrompt("", nil, "")

	for _, want := range []string{"line_number", "position_percent", "is_anchor", "consolidated_count", "store_name", "purchase_date"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("base prompt missing %q", want)
		}
	}
	for _, absent := range []string{"STORE HINT", "OCR REFERENCE", "PAST CORRECTIONS"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("base prompt contains optional block %q", absent)
		}
	}
}

func TestBuildExtractionPromptOptionalBlocks(t *testing.T) {
	ocrLines := []OCRLine{{Text: "BANANAS 1.18", YPercent: 42.0}}
	corrections := "  - model saw \"Chkn Brst\" -> shopper corrected to \"Chicken Breast\"\n"

	prompt := BuildExtractionPrompt("Test Mart", ocrLines, corrections)

	if !strings.Contains(prompt, "STORE HINT") || !strings.Contains(prompt, "Test Mart") {
		t.Error("store hint block missing")
	}
	if !strings.Contains(prompt, "OCR REFERENCE") || !strings.Contains(prompt, "BANANAS 1.18") {
		t.Error("OCR reference block missing")
	}
	if !strings.Contains(prompt, "PAST CORRECTIONS") || !strings.Contains(prompt, "Chicken Breast") {
		t.Error("past corrections block missing")
	}
}

func TestBuildChunkPrompt(t *testing.T) {
	chunk := receipt.Chunk{
		ID:                2,
		Section:           "middle",
		YStartPercent:     27.3,
		YEndPercent:       72.7,
		ExpectedFirstLine: 16,
		ExpectedLastLine:  30,
	}

	prompt := BuildChunkPrompt(chunk, "")

	if !strings.Contains(prompt, "middle section") {
		t.Error("chunk prompt does not name its section")
	}
	if !strings.Contains(prompt, "lines 16 through 30") {
		t.Error("chunk prompt does not carry the full-receipt line range")
	}
	if !strings.Contains(prompt, "CHUNK RULES") {
		t.Error("chunk prompt missing the chunk-specific rules")
	}
}

func TestBuildMetadataPrompt(t *testing.T) {
	prompt := BuildMetadataPrompt("Test Mart")

	if !strings.Contains(prompt, "do not list the purchased items") {
		t.Error("metadata prompt must exclude item listing")
	}
	if !strings.Contains(prompt, "quality_warnings") {
		t.Error("metadata prompt missing quality_warnings field")
	}
	if !strings.Contains(prompt, "Test Mart") {
		t.Error("metadata prompt missing store hint")
	}
}

func TestBuildVerificationPrompt(t *testing.T) {
	items := []receipt.ReceiptItem{
		{Name: "Milk", Price: 2.99, LineNumber: 1, PositionPercent: 10},
		{Name: "Eggs", Price: 3.49, LineNumber: 2, PositionPercent: 25},
		{Name: "Bread", Price: 2.49, LineNumber: 4, PositionPercent: 55},
	}
	gaps := []receipt.Gap{
		{AfterLineNumber: 2, BeforeLineNumber: 4, ExpectedCount: 1, Confidence: "high"},
	}

	prompt := BuildVerificationPrompt(items, gaps)

	if !strings.Contains(prompt, "ALREADY EXTRACTED") {
		t.Error("verification prompt missing the extracted item list")
	}
	if !strings.Contains(prompt, `between "Eggs" (line 2) and "Bread" (line 4)`) {
		t.Errorf("gap description wrong:\n%s", prompt)
	}
	if !strings.Contains(prompt, "high confidence") {
		t.Error("gap description missing the confidence tier")
	}
	if !strings.Contains(prompt, "missed_items") || !strings.Contains(prompt, "total_visible_items") {
		t.Error("verification prompt missing the response schema")
	}
}

func TestBuildVerificationPromptBoundaryGap(t *testing.T) {
	items := []receipt.ReceiptItem{
		{Name: "Eggs", Price: 3.49, LineNumber: 2, PositionPercent: 25},
	}
	gaps := []receipt.Gap{
		{AfterLineNumber: 0, BeforeLineNumber: 2, ExpectedCount: 1, Confidence: "medium"},
	}

	prompt := BuildVerificationPrompt(items, gaps)

	if !strings.Contains(prompt, `above "Eggs" (line 2)`) {
		t.Errorf("head-boundary gap not described as above the first item:\n%s", prompt)
	}
}

func TestFormatCorrectionLines(t *testing.T) {
	corrections := []receipt.CorrectionRecord{
		{AIExtractedName: "Chkn Brst", CorrectedName: "Chicken Breast"},
		{AIExtractedName: "Milk", CorrectedName: "Milk"},   // unchanged, skipped
		{AIExtractedName: "", CorrectedName: "Something"},  // empty side, skipped
		{AIExtractedName: "Orphan", CorrectedName: ""},     // empty side, skipped
		{AIExtractedName: "Grn Ppr", CorrectedName: "Green Bell Pepper"},
	}

	lines := FormatCorrectionLines(corrections)

	if !strings.Contains(lines, `"Chkn Brst" -> shopper corrected to "Chicken Breast"`) {
		t.Errorf("missing first correction:\n%s", lines)
	}
	if !strings.Contains(lines, "Green Bell Pepper") {
		t.Errorf("missing second correction:\n%s", lines)
	}
	if strings.Count(lines, "\n") != 2 {
		t.Errorf("got %d lines, want 2 (skipped entries leaked):\n%s", strings.Count(lines, "\n"), lines)
	}
}

func TestFormatOCRLines(t *testing.T) {
	lines := FormatOCRLines([]OCRLine{
		{Text: "BANANAS 1.18", YPercent: 42.5},
		{Text: "SUBTOTAL 12.96", YPercent: 88.0},
	})

	if !strings.Contains(lines, "[ 42.5%] BANANAS 1.18") {
		t.Errorf("positioned line formatting wrong:\n%s", lines)
	}
}
