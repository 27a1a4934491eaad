package storage

import (
	"testing"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

func TestBuildCorrectionRecords(t *testing.T) {
	extracted := []receipt.ReceiptItem{
		{Name: "Whole Milk", Quantity: "1", Price: 2.99, Category: "dairy", LineNumber: 1},
		{Name: "Chkn Breast", Quantity: "1.2 lb", Price: 6.99, Category: "meat", LineNumber: 2},
		{Name: "Phantom Item", Quantity: "1", Price: 0.99, Category: "pantry", LineNumber: 3},
	}
	reviewed := []receipt.ReceiptItem{
		{Name: "Whole Milk", Quantity: "1", Price: 2.99, Category: "dairy", LineNumber: 1},
		{Name: "Chicken Breast", Quantity: "1.2 lb", Price: 6.99, Category: "meat", LineNumber: 2},
		// line 3 deleted by the reviewer
	}

	records := BuildCorrectionRecords("sess-1", "house-1", "Test Mart", extracted, reviewed)

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (unchanged item skipped)", len(records))
	}

	corrected := records[0]
	if !corrected.WasCorrected || corrected.WasRemoved {
		t.Errorf("renamed item flags: corrected=%v removed=%v", corrected.WasCorrected, corrected.WasRemoved)
	}
	if corrected.AIExtractedName != "Chkn Breast" {
		t.Errorf("AIExtractedName = %q, want %q", corrected.AIExtractedName, "Chkn Breast")
	}
	if corrected.CorrectedName != "Chicken Breast" {
		t.Errorf("CorrectedName = %q, want %q", corrected.CorrectedName, "Chicken Breast")
	}
	if corrected.StoreName != "Test Mart" || corrected.SessionID != "sess-1" {
		t.Errorf("record metadata wrong: %+v", corrected)
	}

	removed := records[1]
	if !removed.WasRemoved || removed.WasCorrected {
		t.Errorf("deleted item flags: corrected=%v removed=%v", removed.WasCorrected, removed.WasRemoved)
	}
	if removed.AIExtractedName != "Phantom Item" {
		t.Errorf("removed AIExtractedName = %q, want %q", removed.AIExtractedName, "Phantom Item")
	}
	if removed.CorrectedName != "" {
		t.Errorf("removed record carries a corrected name: %q", removed.CorrectedName)
	}
}

func TestBuildCorrectionRecordsEquivalence(t *testing.T) {
	tests := []struct {
		name     string
		reviewed receipt.ReceiptItem
		wantRecs int
	}{
		{
			name:     "identical item produces nothing",
			reviewed: receipt.ReceiptItem{Name: "Milk", Quantity: "1", Price: 2.99, Category: "dairy", LineNumber: 1},
			wantRecs: 0,
		},
		{
			name:     "case-only name change produces nothing",
			reviewed: receipt.ReceiptItem{Name: "MILK", Quantity: "1", Price: 2.99, Category: "dairy", LineNumber: 1},
			wantRecs: 0,
		},
		{
			name:     "price change is a correction",
			reviewed: receipt.ReceiptItem{Name: "Milk", Quantity: "1", Price: 3.49, Category: "dairy", LineNumber: 1},
			wantRecs: 1,
		},
		{
			name:     "category change is a correction",
			reviewed: receipt.ReceiptItem{Name: "Milk", Quantity: "1", Price: 2.99, Category: "pantry", LineNumber: 1},
			wantRecs: 1,
		},
	}

	extracted := []receipt.ReceiptItem{
		{Name: "Milk", Quantity: "1", Price: 2.99, Category: "dairy", LineNumber: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := BuildCorrectionRecords("s", "h", "store", extracted, []receipt.ReceiptItem{tt.reviewed})
			if len(records) != tt.wantRecs {
				t.Errorf("got %d records, want %d", len(records), tt.wantRecs)
			}
		})
	}
}

func TestBuildCorrectionRecordsEmptyReview(t *testing.T) {
	extracted := []receipt.ReceiptItem{
		{Name: "Milk", Price: 2.99, LineNumber: 1},
		{Name: "Eggs", Price: 3.49, LineNumber: 2},
	}

	records := BuildCorrectionRecords("s", "h", "store", extracted, nil)

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		if !r.WasRemoved {
			t.Errorf("item %q not flagged as removed", r.AIExtractedName)
		}
	}
}

func TestSaveWithoutConnection(t *testing.T) {
	// The storage layer must fail cleanly, not panic, when MongoDB was
	// never initialized
	if err := SaveScanSession(ScanSession{SessionID: "x"}); err == nil {
		t.Error("SaveScanSession without a connection should error")
	}
	if _, err := GetScanSession("x"); err == nil {
		t.Error("GetScanSession without a connection should error")
	}
	if _, err := GetRecentCorrections("store", 5); err == nil {
		t.Error("GetRecentCorrections without a connection should error")
	}
	if err := SaveCorrections([]receipt.CorrectionRecord{{SessionID: "x"}}); err == nil {
		t.Error("SaveCorrections without a connection should error")
	}
}
