package processor

import (
	"math"
	"strings"
	"testing"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

func TestValidateConsolidationsWeightSplitSurvives(t *testing.T) {
	items := []receipt.ReceiptItem{
		{
			Name:                "Bananas",
			Quantity:            "3.5 lb",
			Price:               2.07,
			LineNumber:          1,
			ConsolidatedCount:   2,
			ConsolidatedDetails: []string{"BANANAS 2 lb $1.18", "BANANAS 1.5 lb $0.89"},
		},
	}

	out, warnings := ValidateConsolidations(items)

	if len(out) != 1 {
		t.Fatalf("weight-split consolidation was demoted: got %d items, want 1", len(out))
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if out[0].ConsolidatedCount != 2 {
		t.Errorf("ConsolidatedCount = %d, want 2", out[0].ConsolidatedCount)
	}
	if math.Abs(out[0].Price-2.07) > 0.001 {
		t.Errorf("price = %.2f, want 2.07", out[0].Price)
	}
}

func TestValidateConsolidationsFlavorVariantDemoted(t *testing.T) {
	items := []receipt.ReceiptItem{
		{Name: "Milk", Price: 2.99, LineNumber: 1},
		{
			Name:                "Yogurt",
			Price:               2.50,
			LineNumber:          2,
			ConsolidatedCount:   2,
			ConsolidatedDetails: []string{"YOGURT STRAWBERRY $1.25", "YOGURT BLUEBERRY $1.25"},
		},
	}

	out, warnings := ValidateConsolidations(items)

	if len(out) != 3 {
		t.Fatalf("got %d items after demotion, want 3", len(out))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], "different products") {
		t.Errorf("warning %q does not explain the demotion", warnings[0])
	}

	// Demotion renumbers the whole sequence
	for i, item := range out {
		if item.LineNumber != i+1 {
			t.Errorf("item %d has line %d, want %d", i, item.LineNumber, i+1)
		}
	}

	// Split parts carry their own detail-line prices and lose the
	// consolidation markers
	for _, item := range out[1:] {
		if item.ConsolidatedCount != 0 || item.ConsolidatedDetails != nil {
			t.Errorf("split part still carries consolidation markers: %+v", item)
		}
		if math.Abs(item.Price-1.25) > 0.001 {
			t.Errorf("split part price = %.2f, want 1.25", item.Price)
		}
	}
}

func TestValidateConsolidationsSizeVariantDemoted(t *testing.T) {
	items := []receipt.ReceiptItem{
		{
			Name:                "Cola",
			Quantity:            "2",
			Price:               2.50,
			LineNumber:          1,
			ConsolidatedCount:   2,
			ConsolidatedDetails: []string{"COLA 12oz $1.00", "COLA 16oz $1.50"},
		},
	}

	out, warnings := ValidateConsolidations(items)

	if len(out) != 2 {
		t.Fatalf("12oz/16oz consolidation survived: got %d items, want 2", len(out))
	}
	if len(warnings) == 0 {
		t.Fatal("expected a demotion warning")
	}
}

func TestValidateConsolidationsPriceMismatchWarns(t *testing.T) {
	items := []receipt.ReceiptItem{
		{
			Name:                "Bananas",
			Price:               2.07,
			LineNumber:          1,
			ConsolidatedCount:   2,
			ConsolidatedDetails: []string{"BANANAS $1.18", "BANANAS $1.12"},
		},
	}

	out, warnings := ValidateConsolidations(items)

	// Price mismatch warns but does not demote
	if len(out) != 1 {
		t.Fatalf("got %d items, want 1", len(out))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0], "does not match the sum") {
		t.Errorf("warning %q does not describe the price mismatch", warnings[0])
	}
}

func TestValidateConsolidationsPassthrough(t *testing.T) {
	items := []receipt.ReceiptItem{
		{Name: "Milk", Price: 2.99, LineNumber: 1},
		{Name: "Eggs", Price: 3.49, LineNumber: 2},
	}

	out, warnings := ValidateConsolidations(items)

	if len(out) != 2 || len(warnings) != 0 {
		t.Fatalf("plain items altered: %d items, %d warnings", len(out), len(warnings))
	}
	for i := range out {
		if out[i].Name != items[i].Name || out[i].LineNumber != items[i].LineNumber {
			t.Errorf("item %d changed: %+v", i, out[i])
		}
	}
}
