// chunks.go - Chunk planning and cross-chunk merge for long receipts

package processor

import (
	"fmt"
	"math"
	"sort"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

const (
	minChunks        = 3
	maxChunks        = 5
	itemsPerChunk    = 15
	overlapThreshold = 0.5 // midpoint tolerance when deciding which chunk owns a duplicate
)

// ChunkResult carries one chunk's extraction outcome. A failed band
// records its error and contributes zero items; it never aborts the merge.
type ChunkResult struct {
	Chunk receipt.Chunk
	Items []receipt.ReceiptItem
	Err   error
}

// PlanChunks divides the receipt into overlapping vertical bands when the
// estimated item count warrants parallel extraction. Returns nil when the
// receipt is short enough for a single pass.
//
// Adjacent bands share overlapPercent of vertical extent at each boundary
// so no item is fully excluded from every chunk.
func PlanChunks(estimatedItems, threshold int, overlapPercent float64) []receipt.Chunk {
	if estimatedItems < threshold {
		return nil
	}

	n := int(math.Ceil(float64(estimatedItems) / float64(itemsPerChunk)))
	if n < minChunks {
		n = minChunks
	}
	if n > maxChunks {
		n = maxChunks
	}

	bandHeight := 100.0 / float64(n)
	halfOverlap := overlapPercent / 2

	itemsPerBand := int(math.Ceil(float64(estimatedItems) / float64(n)))

	chunks := make([]receipt.Chunk, 0, n)
	for i := 0; i < n; i++ {
		yStart := float64(i)*bandHeight - halfOverlap
		yEnd := float64(i+1)*bandHeight + halfOverlap
		if yStart < 0 {
			yStart = 0
		}
		if yEnd > 100 {
			yEnd = 100
		}

		firstLine := i*itemsPerBand + 1
		lastLine := (i + 1) * itemsPerBand
		if lastLine > estimatedItems {
			lastLine = estimatedItems
		}

		chunks = append(chunks, receipt.Chunk{
			ID:                i + 1,
			Section:           sectionName(i, n),
			YStartPercent:     yStart,
			YEndPercent:       yEnd,
			ExpectedFirstLine: firstLine,
			ExpectedLastLine:  lastLine,
		})
	}

	return chunks
}

func sectionName(i, n int) string {
	switch {
	case i == 0:
		return "top"
	case i == n-1:
		return "bottom"
	case n > 3:
		return fmt.Sprintf("middle-%d", i)
	default:
		return "middle"
	}
}

// MergeChunkResults combines per-chunk item lists into one sequence.
//
// Failed chunks contribute nothing; their claimed line-number range stays
// vacant so gap detection can scope a verification request to the hole.
// Items whose positions fall inside an overlap band are fuzzy-matched
// across the adjacent chunk pair; for a matched pair the entry farther
// from its own chunk edge wins, the other is dropped. Survivors keep
// their claimed full-receipt line numbers and are ordered by them; the
// orchestrator renumbers contiguously only after the verification pass
// has had its chance to fill the holes.
func MergeChunkResults(results []ChunkResult, similarityThreshold float64) ([]receipt.ReceiptItem, []string) {
	var warnings []string

	type owned struct {
		item  receipt.ReceiptItem
		chunk receipt.Chunk
	}

	var all []owned
	for _, res := range results {
		if res.Err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"chunk %d (%s) failed and contributed no items: %v",
				res.Chunk.ID, res.Chunk.Section, res.Err))
			continue
		}
		for _, item := range res.Items {
			all = append(all, owned{item: item, chunk: res.Chunk})
		}
	}

	// Pairwise dedupe across different chunks inside shared overlap bands
	dropped := make([]bool, len(all))
	for i := 0; i < len(all); i++ {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(all); j++ {
			if dropped[j] {
				continue
			}
			if all[i].chunk.ID == all[j].chunk.ID {
				continue
			}
			if !inSharedOverlap(all[i].item, all[i].chunk, all[j].chunk) ||
				!inSharedOverlap(all[j].item, all[i].chunk, all[j].chunk) {
				continue
			}
			if NameSimilarity(all[i].item.SourceText, all[j].item.SourceText) < similarityThreshold {
				continue
			}

			// Keep the copy whose own chunk more confidently contains it
			if edgeDistance(all[i].item, all[i].chunk) >= edgeDistance(all[j].item, all[j].chunk) {
				dropped[j] = true
			} else {
				dropped[i] = true
			}
		}
	}

	var merged []receipt.ReceiptItem
	for i, o := range all {
		if !dropped[i] {
			merged = append(merged, o.item)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].LineNumber != merged[j].LineNumber {
			return merged[i].LineNumber < merged[j].LineNumber
		}
		return merged[i].PositionPercent < merged[j].PositionPercent
	})

	return merged, warnings
}

// inSharedOverlap reports whether the item's position lies inside the
// vertical region both chunks cover
func inSharedOverlap(item receipt.ReceiptItem, a, b receipt.Chunk) bool {
	lo := math.Max(a.YStartPercent, b.YStartPercent)
	hi := math.Min(a.YEndPercent, b.YEndPercent)
	if lo >= hi {
		return false
	}
	return item.PositionPercent >= lo-overlapThreshold && item.PositionPercent <= hi+overlapThreshold
}

// edgeDistance measures how far inside its chunk's band an item sits.
// Items near a band edge are the likelier truncated/duplicated copies.
func edgeDistance(item receipt.ReceiptItem, c receipt.Chunk) float64 {
	fromTop := item.PositionPercent - c.YStartPercent
	fromBottom := c.YEndPercent - item.PositionPercent
	return math.Min(fromTop, fromBottom)
}

// RenumberItems rewrites line numbers contiguously from 1 in slice order
func RenumberItems(items []receipt.ReceiptItem) {
	for i := range items {
		items[i].LineNumber = i + 1
	}
}
