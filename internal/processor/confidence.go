// confidence.go - Weighted confidence score for a completed scan

package processor

import (
	"math"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/common"
	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

// ConfidenceFactors holds the per-factor scores (each 0-100)
type ConfidenceFactors struct {
	Completeness      float64 `json:"completeness"`       // items present, store metadata, totals
	SequenceIntegrity float64 `json:"sequence_integrity"` // unresolved gaps after verification
	Arithmetic        float64 `json:"arithmetic"`         // item prices vs reported subtotal
	Recovery          float64 `json:"recovery"`           // penalty for degraded/recovered stages
}

// ConfidenceWeights weights each factor (must sum to 1.0)
type ConfidenceWeights struct {
	Completeness      float64
	SequenceIntegrity float64
	Arithmetic        float64
	Recovery          float64
}

// DefaultWeights used for the final score
var DefaultWeights = ConfidenceWeights{
	Completeness:      0.35,
	SequenceIntegrity: 0.30,
	Arithmetic:        0.20,
	Recovery:          0.15,
}

// ScanStats feeds the factors the receipt itself cannot carry
type ScanStats struct {
	UnresolvedGaps  int
	RecoveredItems  int
	FailedChunks    int
	TotalChunks     int
	VerificationRan bool
}

// CalculateConfidence blends completeness, sequence integrity, arithmetic
// consistency and degradation penalties into the 0-100 score returned to
// the caller
func CalculateConfidence(rec *receipt.ExtractedReceipt, stats ScanStats, reqCtx *common.RequestContext) float64 {
	factors := ConfidenceFactors{
		Completeness:      completenessScore(rec),
		SequenceIntegrity: sequenceScore(rec, stats),
		Arithmetic:        arithmeticScore(rec),
		Recovery:          recoveryScore(stats),
	}

	score := factors.Completeness*DefaultWeights.Completeness +
		factors.SequenceIntegrity*DefaultWeights.SequenceIntegrity +
		factors.Arithmetic*DefaultWeights.Arithmetic +
		factors.Recovery*DefaultWeights.Recovery

	score = math.Round(score*100) / 100

	if reqCtx != nil {
		reqCtx.LogInfo("Confidence calculation:")
		reqCtx.LogInfo("  completeness: %.1f (weight %.0f%%)", factors.Completeness, DefaultWeights.Completeness*100)
		reqCtx.LogInfo("  sequence:     %.1f (weight %.0f%%)", factors.SequenceIntegrity, DefaultWeights.SequenceIntegrity*100)
		reqCtx.LogInfo("  arithmetic:   %.1f (weight %.0f%%)", factors.Arithmetic, DefaultWeights.Arithmetic*100)
		reqCtx.LogInfo("  recovery:     %.1f (weight %.0f%%)", factors.Recovery, DefaultWeights.Recovery*100)
		reqCtx.LogInfo("  overall:      %.1f", score)
	}

	return score
}

func completenessScore(rec *receipt.ExtractedReceipt) float64 {
	if len(rec.Items) == 0 {
		return 0
	}

	score := 60.0
	if rec.StoreName != "" {
		score += 10
	}
	if rec.PurchaseDate != "" {
		score += 10
	}
	if rec.Total != nil {
		score += 10
	}
	if rec.Subtotal != nil {
		score += 10
	}
	return score
}

func sequenceScore(rec *receipt.ExtractedReceipt, stats ScanStats) float64 {
	if len(rec.Items) == 0 {
		return 0
	}

	score := 100.0
	score -= float64(stats.UnresolvedGaps) * 15.0
	if score < 0 {
		score = 0
	}
	return score
}

// arithmeticScore compares the item price sum against the reported
// subtotal (or total when no subtotal and no tax are present)
func arithmeticScore(rec *receipt.ExtractedReceipt) float64 {
	reference := rec.Subtotal
	if reference == nil && rec.Tax == nil {
		reference = rec.Total
	}
	if reference == nil || len(rec.Items) == 0 {
		return 50.0 // nothing to check against
	}

	var sum float64
	for _, item := range rec.Items {
		sum += item.Price
	}

	diff := math.Abs(sum - *reference)
	if *reference > 0 {
		relative := diff / *reference
		switch {
		case relative <= 0.01:
			return 100.0
		case relative <= 0.05:
			return 75.0
		case relative <= 0.15:
			return 40.0
		}
	}
	return 15.0
}

func recoveryScore(stats ScanStats) float64 {
	score := 100.0
	score -= float64(stats.RecoveredItems) * 5.0
	if stats.TotalChunks > 0 {
		score -= float64(stats.FailedChunks) / float64(stats.TotalChunks) * 50.0
	}
	if score < 0 {
		score = 0
	}
	return score
}
