// calibrate.go - Anchor-based position calibration

package processor

import (
	"sort"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

// CalibratePositions rescales every item's raw, drift-prone position
// estimate to a calibrated percentage using the flagged anchor items.
//
// The first anchor maps to 0%, the last to 100%, and middle anchors' raw
// values are proportionally rescaled between the two. Non-anchor items are
// linearly interpolated by line number between their two nearest anchors,
// which keeps position_percent non-decreasing with line_number by
// construction. With fewer than two anchors the mapping degrades to
// uniform spacing: (line_number - 1) / (total - 1) * 100.
//
// Runs exactly once, after all items (including verification recoveries)
// are finalized and renumbered. Mutates items in place.
func CalibratePositions(items []receipt.ReceiptItem) {
	if len(items) == 0 {
		return
	}
	if len(items) == 1 {
		items[0].PositionPercent = 0
		return
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].LineNumber < items[j].LineNumber
	})

	anchors := anchorIndexes(items)
	if len(anchors) < 2 {
		uniformPositions(items)
		return
	}

	targets := anchorTargets(items, anchors)

	// Apply anchor targets, then interpolate everything between
	for k, idx := range anchors {
		items[idx].PositionPercent = targets[k]
	}

	// Items before the first anchor clamp to its target; same past the last
	first := anchors[0]
	last := anchors[len(anchors)-1]
	for i := 0; i < first; i++ {
		items[i].PositionPercent = targets[0]
	}
	for i := last + 1; i < len(items); i++ {
		items[i].PositionPercent = targets[len(targets)-1]
	}

	// Interpolate by line number between each adjacent anchor pair
	for k := 0; k < len(anchors)-1; k++ {
		lo, hi := anchors[k], anchors[k+1]
		loLine := items[lo].LineNumber
		hiLine := items[hi].LineNumber
		span := float64(hiLine - loLine)
		if span <= 0 {
			continue
		}
		for i := lo + 1; i < hi; i++ {
			frac := float64(items[i].LineNumber-loLine) / span
			items[i].PositionPercent = targets[k] + (targets[k+1]-targets[k])*frac
		}
	}
}

func anchorIndexes(items []receipt.ReceiptItem) []int {
	var anchors []int
	for i := range items {
		if items[i].IsAnchor {
			anchors = append(anchors, i)
		}
	}
	return anchors
}

// anchorTargets maps each anchor's raw position to its calibrated target:
// endpoints pin to 0 and 100, middle anchors rescale proportionally by
// their raw value. Targets are clamped non-decreasing so a drifted middle
// anchor can never fold the sequence backwards.
func anchorTargets(items []receipt.ReceiptItem, anchors []int) []float64 {
	n := len(anchors)
	targets := make([]float64, n)
	targets[0] = 0
	targets[n-1] = 100

	rawFirst := items[anchors[0]].PositionPercent
	rawLast := items[anchors[n-1]].PositionPercent
	rawSpan := rawLast - rawFirst

	for k := 1; k < n-1; k++ {
		if rawSpan <= 0 {
			// Degenerate raw positions: space middle anchors by line number
			loLine := items[anchors[0]].LineNumber
			hiLine := items[anchors[n-1]].LineNumber
			if hiLine > loLine {
				targets[k] = 100 * float64(items[anchors[k]].LineNumber-loLine) / float64(hiLine-loLine)
			} else {
				targets[k] = 0
			}
			continue
		}
		targets[k] = 100 * (items[anchors[k]].PositionPercent - rawFirst) / rawSpan
	}

	for k := 1; k < n; k++ {
		if targets[k] < targets[k-1] {
			targets[k] = targets[k-1]
		}
		if targets[k] > 100 {
			targets[k] = 100
		}
	}

	return targets
}

func uniformPositions(items []receipt.ReceiptItem) {
	total := len(items)
	for i := range items {
		items[i].PositionPercent = float64(items[i].LineNumber-1) / float64(total-1) * 100
	}
}
