// prompts.go - Prompt templates for receipt extraction calls

package ai

import (
	"fmt"
	"strings"

	"github.com/pantrysnap/receipt_ocr_gemini/configs"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

// itemSchema is the JSON shape requested for every item the model reads.
// line_number and position_percent drive gap detection and calibration
// downstream; is_anchor marks the positions the model is most sure about.
const itemSchema = `{
  "name": "item name as printed",
  "quantity": "quantity with unit if shown (e.g. \"2\", \"1.5 lb\"), else \"1\"",
  "price": 0.00,
  "unit_price": 0.00,
  "category": "produce | dairy | meat | pantry | frozen | non_food",
  "is_food": true,
  "source_text": "the raw receipt line this item came from",
  "line_number": 1,
  "position_percent": 0.0,
  "is_anchor": false,
  "consolidated_count": 1,
  "consolidated_details": ["raw line 1", "raw line 2"]
}`

const extractionRulesTemplate = `RULES:
1. Read EVERY item line top to bottom. Do not skip faint, crumpled, or partially visible lines.
2. line_number: sequential position of the item among item lines, starting at 1. No gaps, no repeats.
3. position_percent: vertical position of the line in the image, 0 = top edge, 100 = bottom edge. Estimate honestly; do not space items evenly.
4. is_anchor: true only for items whose position you are highly confident about (clearly legible line, unambiguous location). Mark the first item, the last item, and up to %d confident items in between.
5. If the register consolidated repeated scans into one line (e.g. "BANANAS 3 @ 0.58"), emit ONE item with consolidated_count set to the number of scans and consolidated_details listing the printed detail lines. Do not invent detail lines.
6. Distinct products are distinct items even when names are similar. Never merge a 12oz and a 16oz product into one line.
7. category: pick the closest of produce, dairy, meat, pantry, frozen, non_food. is_food follows the category (non_food is not food).
8. Amounts are plain numbers without currency symbols. Use the printed price; do not recompute.
9. Copy subtotal, tax, and total exactly as printed. Use null for any that are not visible.
10. Respond with ONLY the JSON object. No commentary, no markdown fences.`

// extractionRules renders the shared rule block with the configured
// middle-anchor request count
func extractionRules() string {
	middleAnchors := configs.MAX_MIDDLE_ANCHORS
	if middleAnchors <= 0 {
		middleAnchors = 3
	}
	return fmt.Sprintf(extractionRulesTemplate, middleAnchors)
}

// BuildExtractionPrompt assembles the first-pass prompt. ocrLines and
// correctionLines are optional context blocks; storeHint biases store
// name reading when the caller knows the vendor.
func BuildExtractionPrompt(storeHint string, ocrLines []OCRLine, correctionLines string) string {
	var sb strings.Builder

	sb.WriteString(`You are reading a photographed grocery receipt. Extract every purchased item with its printed price and position.

Respond with a single JSON object:
{
  "store_name": "store name as printed, or null",
  "store_location": "city/branch if printed, or null",
  "purchase_date": "purchase date as printed, or null",
  "items": [`)
	sb.WriteString("\n")
	sb.WriteString(indentBlock(itemSchema, "    "))
	sb.WriteString(`
  ],
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00
}

`)
	sb.WriteString(extractionRules())

	if storeHint != "" {
		sb.WriteString(fmt.Sprintf("\n\nSTORE HINT: the shopper says this receipt is from %q. Prefer this store name if the printed header is unreadable.", storeHint))
	}

	if len(ocrLines) > 0 {
		sb.WriteString("\n\nOCR REFERENCE: a text-layer OCR pass read these lines with vertical positions. Use them to cross-check your reading and positions, but trust the image when they disagree:\n")
		sb.WriteString(FormatOCRLines(ocrLines))
	}

	if correctionLines != "" {
		sb.WriteString("\n\nPAST CORRECTIONS at this store. Shoppers fixed these misreadings before; apply the same corrections when you see the same printed text:\n")
		sb.WriteString(correctionLines)
	}

	return sb.String()
}

// BuildChunkPrompt assembles the prompt for one chunk-scoped extraction
// call on a cropped vertical band of the receipt.
func BuildChunkPrompt(chunk receipt.Chunk, storeHint string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(`You are reading the %s section of a photographed grocery receipt. The image is a crop covering roughly the %.0f%%-%.0f%% vertical band of the full receipt. Extract every purchased item visible in this crop.

Respond with a single JSON object:
{
  "items": [`, chunk.Section, chunk.YStartPercent, chunk.YEndPercent))
	sb.WriteString("\n")
	sb.WriteString(indentBlock(itemSchema, "    "))
	sb.WriteString(`
  ]
}

`)
	sb.WriteString(extractionRules())
	sb.WriteString(fmt.Sprintf(`

CHUNK RULES:
11. line_number counts from the FULL receipt: this band is expected to contain item lines %d through %d. Number accordingly; a cut-off partial line at the very top or bottom edge still gets extracted.
12. position_percent is relative to the FULL receipt (this crop spans %.0f%% to %.0f%%), not to the crop.
13. Ignore header, subtotal, tax, and total lines that happen to fall inside the crop.`,
		chunk.ExpectedFirstLine, chunk.ExpectedLastLine, chunk.YStartPercent, chunk.YEndPercent))

	if storeHint != "" {
		sb.WriteString(fmt.Sprintf("\n\nSTORE HINT: this receipt is from %q.", storeHint))
	}

	return sb.String()
}

// BuildMetadataPrompt assembles the header/footer-only prompt used in
// chunked mode, where no single call sees the whole receipt for items but
// store metadata and totals still come from the full image.
func BuildMetadataPrompt(storeHint string) string {
	prompt := `You are reading a photographed grocery receipt. Extract ONLY the receipt metadata; do not list the purchased items.

Respond with a single JSON object:
{
  "store_name": "store name as printed, or null",
  "store_location": "city/branch if printed, or null",
  "purchase_date": "purchase date as printed, or null",
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00,
  "quality_warnings": ["blurry image", "receipt is upside down", ...]
}

RULES:
1. Copy amounts exactly as printed. Use null for anything not visible.
2. quality_warnings lists visible defects of the photo or receipt (blur, glare, crumpling, cut-off edges, upside-down orientation). Empty array when none.
3. Respond with ONLY the JSON object. No commentary, no markdown fences.`

	if storeHint != "" {
		prompt += fmt.Sprintf("\n\nSTORE HINT: the shopper says this receipt is from %q.", storeHint)
	}

	return prompt
}

// BuildVerificationPrompt assembles the second-look prompt. It lists the
// already-extracted items and directs attention to the detected gaps.
func BuildVerificationPrompt(items []receipt.ReceiptItem, gaps []receipt.Gap) string {
	var sb strings.Builder

	sb.WriteString("A first extraction pass read this receipt and produced the item list below. Your job is to find items the first pass MISSED. Do not re-extract items already on the list.\n\nALREADY EXTRACTED:\n")

	for _, item := range items {
		sb.WriteString(fmt.Sprintf("  line %d (%.0f%% down): %s  $%.2f\n", item.LineNumber, item.PositionPercent, item.Name, item.Price))
	}

	if len(gaps) > 0 {
		sb.WriteString("\nSUSPECTED GAPS. Look extra carefully at these regions of the image:\n")
		for _, gap := range gaps {
			sb.WriteString("  - " + describeGap(gap, items))
		}
	}

	sb.WriteString(`
Respond with a single JSON object:
{
  "missed_items": [
`)
	sb.WriteString(indentBlock(itemSchema, "    "))
	sb.WriteString(`
  ],
  "total_visible_items": 0
}

RULES:
1. missed_items contains ONLY items absent from the list above. An empty array is a valid and common answer.
2. For each missed item, line_number is where it belongs in the full sequence (e.g. 7 means it sits between the listed lines 6 and 7).
3. total_visible_items is your independent count of item lines visible in the image, whether or not they are on the list.
4. Do not invent items to fill a gap. A gap can be a false alarm.
5. Respond with ONLY the JSON object. No commentary, no markdown fences.`)

	return sb.String()
}

// describeGap renders one gap as a "look between X and Y" instruction
func describeGap(gap receipt.Gap, items []receipt.ReceiptItem) string {
	var after, before *receipt.ReceiptItem
	for i := range items {
		if items[i].LineNumber == gap.AfterLineNumber {
			after = &items[i]
		}
		if items[i].LineNumber == gap.BeforeLineNumber {
			before = &items[i]
		}
	}

	plural := "item"
	if gap.ExpectedCount > 1 {
		plural = "items"
	}

	switch {
	case after != nil && before != nil:
		return fmt.Sprintf("between %q (line %d) and %q (line %d): possibly %d missed %s (%s confidence)\n",
			after.Name, after.LineNumber, before.Name, before.LineNumber, gap.ExpectedCount, plural, gap.Confidence)
	case before != nil:
		return fmt.Sprintf("above %q (line %d), near the top of the item list: possibly %d missed %s (%s confidence)\n",
			before.Name, before.LineNumber, gap.ExpectedCount, plural, gap.Confidence)
	case after != nil:
		return fmt.Sprintf("below %q (line %d), near the bottom of the item list: possibly %d missed %s (%s confidence)\n",
			after.Name, after.LineNumber, gap.ExpectedCount, plural, gap.Confidence)
	default:
		return fmt.Sprintf("between lines %d and %d: possibly %d missed %s (%s confidence)\n",
			gap.AfterLineNumber, gap.BeforeLineNumber, gap.ExpectedCount, plural, gap.Confidence)
	}
}

// FormatCorrectionLines renders stored corrections as few-shot lines for
// the extraction prompt. Only renamed items are useful as examples.
func FormatCorrectionLines(corrections []receipt.CorrectionRecord) string {
	var sb strings.Builder
	for _, c := range corrections {
		if c.AIExtractedName == "" || c.CorrectedName == "" {
			continue
		}
		if c.AIExtractedName == c.CorrectedName {
			continue
		}
		sb.WriteString(fmt.Sprintf("  - model saw %q -> shopper corrected to %q\n", c.AIExtractedName, c.CorrectedName))
	}
	return sb.String()
}

// FormatOCRLines renders OCR pre-pass lines as positioned prompt context
func FormatOCRLines(lines []OCRLine) string {
	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(fmt.Sprintf("  [%5.1f%%] %s\n", line.YPercent, line.Text))
	}
	return sb.String()
}

func indentBlock(block, prefix string) string {
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
