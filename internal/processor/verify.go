// verify.go - Parsing and splicing for the gap verification pass

package processor

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

// VerificationResult holds what the second, gap-scoped extraction request
// reported back
type VerificationResult struct {
	MissedItems       []receipt.ReceiptItem
	TotalVisibleItems int
}

type rawVerification struct {
	MissedItems       []json.RawMessage `json:"missed_items"`
	TotalVisibleItems int               `json:"total_visible_items"`
}

// ParseVerificationResponse decodes the verification response text.
//
// Any failure (no JSON, malformed JSON) returns an empty result and an
// error; the caller treats that as "no missed items" and never mutates
// the first-pass sequence.
func ParseVerificationResponse(text string) (VerificationResult, error) {
	empty := VerificationResult{}

	jsonStr := receipt.ExtractJSON(text)
	if jsonStr == "" {
		return empty, fmt.Errorf("%w: no JSON object in verification response", receipt.ErrInvalidResponse)
	}

	var raw rawVerification
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return empty, fmt.Errorf("%w: %v", receipt.ErrInvalidResponse, err)
	}

	return VerificationResult{
		MissedItems:       receipt.ValidateItems(raw.MissedItems),
		TotalVisibleItems: raw.TotalVisibleItems,
	}, nil
}

// SpliceRecoveredItems inserts verification recoveries into the sequence
// at the line-number slots their gap describes, then renumbers the whole
// sequence contiguously from 1.
//
// A recovered item's raw position defaults to the midpoint of its bounding
// items' positions when the model reported none, which keeps the sequence
// monotone ahead of final calibration. Returns a new slice; the input is
// not modified. Recovered items whose claimed line number matches no gap
// are appended in claimed-number order rather than dropped.
func SpliceRecoveredItems(items []receipt.ReceiptItem, recovered []receipt.ReceiptItem) []receipt.ReceiptItem {
	if len(recovered) == 0 {
		out := make([]receipt.ReceiptItem, len(items))
		copy(out, items)
		return out
	}

	merged := make([]receipt.ReceiptItem, 0, len(items)+len(recovered))
	merged = append(merged, items...)

	for _, rec := range recovered {
		if rec.PositionPercent == 0 {
			rec.PositionPercent = midpointPosition(merged, rec.LineNumber)
		}
		merged = append(merged, rec)
	}

	// Claimed line numbers order the splice; ties resolve existing-first
	// so a recovery lands after the item bounding its gap
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].LineNumber < merged[j].LineNumber
	})
	RenumberItems(merged)

	return merged
}

// midpointPosition interpolates a raw position for a recovered item from
// the items bounding its claimed line number
func midpointPosition(items []receipt.ReceiptItem, lineNumber int) float64 {
	var below, above *receipt.ReceiptItem
	for i := range items {
		it := &items[i]
		if it.LineNumber < lineNumber {
			if below == nil || it.LineNumber > below.LineNumber {
				below = it
			}
		}
		if it.LineNumber > lineNumber {
			if above == nil || it.LineNumber < above.LineNumber {
				above = it
			}
		}
	}

	switch {
	case below != nil && above != nil:
		return (below.PositionPercent + above.PositionPercent) / 2
	case below != nil:
		return below.PositionPercent
	case above != nil:
		return above.PositionPercent
	default:
		return 0
	}
}
