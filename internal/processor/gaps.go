// gaps.go - Detects breaks in the claimed sequential line numbering

package processor

import (
	"sort"

	"github.com/pantrysnap/receipt_ocr_gemini/configs"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

// Receipts below this size rarely have real misses; gaps there are
// usually model miscounts
const smallReceiptItemCount = 5

// positionSpreadPercent is the minimum distance between bounding items'
// positions for a single-slot gap to look like a genuinely missed line
const positionSpreadPercent = 3.0

// DetectGaps scans the item sequence for missing line numbers.
//
// Pure and deterministic: the input slice is never mutated, items are
// sorted into a copy. The returned gaps only scope the verification
// request; nothing here touches the item list itself.
func DetectGaps(items []receipt.ReceiptItem) []receipt.Gap {
	if len(items) < 2 {
		return nil
	}

	sorted := make([]receipt.ReceiptItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LineNumber < sorted[j].LineNumber
	})

	var gaps []receipt.Gap
	for i := 0; i < len(sorted)-1; i++ {
		prev := sorted[i]
		next := sorted[i+1]

		jump := next.LineNumber - prev.LineNumber
		if jump <= 1 {
			continue
		}

		gap := receipt.Gap{
			AfterLineNumber:  prev.LineNumber,
			BeforeLineNumber: next.LineNumber,
			ExpectedCount:    jump - 1,
			Confidence:       classifyGap(sorted, i, jump-1),
		}
		gaps = append(gaps, gap)
	}

	return gaps
}

// classifyGap assigns a confidence tier to the gap between sorted[idx]
// and sorted[idx+1].
//
// Tiers: low for small receipts (misses are statistically unlikely) and
// for single-slot gaps whose bounding positions sit close together;
// medium when the gap touches the first or last item (a header or footer
// line could account for the jump) or spans several slots; high only for
// an interior single-slot gap whose bounding items are far apart.
func classifyGap(sorted []receipt.ReceiptItem, idx, expectedCount int) string {
	if len(sorted) < smallReceiptItemCount {
		return configs.CONFIDENCE_LOW_THRESHOLD
	}

	boundary := idx == 0 || idx+1 == len(sorted)-1
	if boundary {
		return configs.CONFIDENCE_MEDIUM_THRESHOLD
	}

	if expectedCount == 1 {
		spread := sorted[idx+1].PositionPercent - sorted[idx].PositionPercent
		if spread >= positionSpreadPercent {
			return configs.CONFIDENCE_HIGH_THRESHOLD
		}
		return configs.CONFIDENCE_LOW_THRESHOLD
	}

	return configs.CONFIDENCE_MEDIUM_THRESHOLD
}
