package processor

import (
	"math"
	"testing"
)

func TestNameSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want float64 // exact expectation, -1 means "just check range"
	}{
		{"identical strings", "BANANAS 1.18", "BANANAS 1.18", 1.0},
		{"identical after case and space normalization", "Whole  Milk", "whole milk", 1.0},
		{"empty left", "", "bananas", 0.0},
		{"empty right", "bananas", "", 0.0},
		{"both empty", "", "", 0.0},
		{"completely different", "milk", "eggs", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NameSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("NameSimilarity(%q, %q) = %.3f, want %.3f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNameSimilaritySymmetric(t *testing.T) {
	pairs := [][2]string{
		{"BANANAS 1.18", "BANANA 1.18"},
		{"great value whole milk", "great value whole milk 1gal"},
		{"organic strawberries", "strawberries"},
	}

	for _, p := range pairs {
		ab := NameSimilarity(p[0], p[1])
		ba := NameSimilarity(p[1], p[0])
		if math.Abs(ab-ba) > 0.0001 {
			t.Errorf("NameSimilarity(%q, %q) = %.4f but reversed = %.4f", p[0], p[1], ab, ba)
		}
	}
}

func TestNameSimilarityThreshold(t *testing.T) {
	const threshold = 0.75

	above := [][2]string{
		{"GREAT VALUE WHOLE MILK", "GREAT VALUE WHOLE MILK 1GAL"},
		{"BANANAS 3 @ 0.58", "BANANAS 3 @ 0.58"},
	}
	for _, p := range above {
		if got := NameSimilarity(p[0], p[1]); got < threshold {
			t.Errorf("NameSimilarity(%q, %q) = %.3f, want >= %.2f", p[0], p[1], got, threshold)
		}
	}

	below := [][2]string{
		{"WHOLE MILK", "LARGE EGGS"},
		{"COLA 12OZ", "WHEAT BREAD"},
	}
	for _, p := range below {
		if got := NameSimilarity(p[0], p[1]); got >= threshold {
			t.Errorf("NameSimilarity(%q, %q) = %.3f, want < %.2f", p[0], p[1], got, threshold)
		}
	}
}
