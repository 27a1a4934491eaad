package processor

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

func TestPlanChunks(t *testing.T) {
	tests := []struct {
		name           string
		estimatedItems int
		threshold      int
		wantChunks     int
	}{
		{"below threshold stays single pass", 20, 30, 0},
		{"at threshold chunks with the minimum band count", 30, 30, 3},
		{"45 items plan three bands", 45, 30, 3},
		{"60 items plan four bands", 60, 30, 4},
		{"75 items plan five bands", 75, 30, 5},
		{"very long receipts clamp at five bands", 200, 30, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := PlanChunks(tt.estimatedItems, tt.threshold, 12.0)
			if len(chunks) != tt.wantChunks {
				t.Fatalf("PlanChunks(%d) returned %d chunks, want %d",
					tt.estimatedItems, len(chunks), tt.wantChunks)
			}
		})
	}
}

func TestPlanChunksGeometry(t *testing.T) {
	chunks := PlanChunks(45, 30, 12.0)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	if chunks[0].YStartPercent != 0 {
		t.Errorf("first chunk starts at %.2f, want 0", chunks[0].YStartPercent)
	}
	if chunks[2].YEndPercent != 100 {
		t.Errorf("last chunk ends at %.2f, want 100", chunks[2].YEndPercent)
	}

	// Adjacent bands share the configured overlap
	overlap := chunks[0].YEndPercent - chunks[1].YStartPercent
	if math.Abs(overlap-12.0) > 0.01 {
		t.Errorf("overlap between bands 1 and 2 = %.2f, want 12.0", overlap)
	}

	// Expected line ranges cover 1..45 without holes
	if chunks[0].ExpectedFirstLine != 1 {
		t.Errorf("first chunk starts at line %d, want 1", chunks[0].ExpectedFirstLine)
	}
	if chunks[2].ExpectedLastLine != 45 {
		t.Errorf("last chunk ends at line %d, want 45", chunks[2].ExpectedLastLine)
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].ExpectedFirstLine != chunks[i-1].ExpectedLastLine+1 {
			t.Errorf("chunk %d starts at line %d, previous ended at %d",
				i+1, chunks[i].ExpectedFirstLine, chunks[i-1].ExpectedLastLine)
		}
	}

	if chunks[0].Section != "top" || chunks[1].Section != "middle" || chunks[2].Section != "bottom" {
		t.Errorf("sections = %q/%q/%q, want top/middle/bottom",
			chunks[0].Section, chunks[1].Section, chunks[2].Section)
	}
}

func TestMergeChunkResultsDedupe(t *testing.T) {
	chunkA := receipt.Chunk{ID: 1, Section: "top", YStartPercent: 0, YEndPercent: 40}
	chunkB := receipt.Chunk{ID: 2, Section: "middle", YStartPercent: 28, YEndPercent: 72}

	results := []ChunkResult{
		{
			Chunk: chunkA,
			Items: []receipt.ReceiptItem{
				{Name: "Milk", SourceText: "WHOLE MILK 2.99", Price: 2.99, LineNumber: 1, PositionPercent: 10},
				{Name: "Bananas", SourceText: "BANANAS 1.18", Price: 1.18, LineNumber: 2, PositionPercent: 34},
			},
		},
		{
			Chunk: chunkB,
			Items: []receipt.ReceiptItem{
				{Name: "Bananas", SourceText: "BANANAS 1.18", Price: 1.18, LineNumber: 2, PositionPercent: 35},
				{Name: "Eggs", SourceText: "LARGE EGGS 3.49", Price: 3.49, LineNumber: 3, PositionPercent: 60},
			},
		},
	}

	merged, warnings := MergeChunkResults(results, 0.75)

	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(merged) != 3 {
		t.Fatalf("merged %d items, want 3 (duplicate dropped)", len(merged))
	}

	wantNames := []string{"Milk", "Bananas", "Eggs"}
	for i, item := range merged {
		if item.Name != wantNames[i] {
			t.Errorf("item %d = %q, want %q", i, item.Name, wantNames[i])
		}
		if item.LineNumber != i+1 {
			t.Errorf("item %d has line %d, want %d", i, item.LineNumber, i+1)
		}
	}

	// The surviving duplicate is the one farther from its own band edge
	if merged[1].PositionPercent != 35 {
		t.Errorf("surviving duplicate position = %.1f, want 35 (chunk 2 copy)", merged[1].PositionPercent)
	}
}

func TestMergeChunkResultsKeepsDistinctOverlapItems(t *testing.T) {
	chunkA := receipt.Chunk{ID: 1, YStartPercent: 0, YEndPercent: 40}
	chunkB := receipt.Chunk{ID: 2, YStartPercent: 28, YEndPercent: 72}

	// Different products inside the shared overlap must both survive
	results := []ChunkResult{
		{Chunk: chunkA, Items: []receipt.ReceiptItem{
			{Name: "Cola 12oz", SourceText: "COLA 12OZ 1.00", LineNumber: 15, PositionPercent: 33},
		}},
		{Chunk: chunkB, Items: []receipt.ReceiptItem{
			{Name: "Bread", SourceText: "WHEAT BREAD 2.49", LineNumber: 16, PositionPercent: 35},
		}},
	}

	merged, _ := MergeChunkResults(results, 0.75)
	if len(merged) != 2 {
		t.Fatalf("merged %d items, want 2", len(merged))
	}
}

func TestMergeChunkResultsFailedChunk(t *testing.T) {
	chunkA := receipt.Chunk{ID: 1, Section: "top", YStartPercent: 0, YEndPercent: 40}
	chunkB := receipt.Chunk{ID: 2, Section: "bottom", YStartPercent: 28, YEndPercent: 100}

	results := []ChunkResult{
		{Chunk: chunkA, Items: []receipt.ReceiptItem{
			{Name: "Milk", SourceText: "WHOLE MILK 2.99", LineNumber: 1, PositionPercent: 10},
		}},
		{Chunk: chunkB, Err: errors.New("model call failed")},
	}

	merged, warnings := MergeChunkResults(results, 0.75)

	if len(merged) != 1 {
		t.Fatalf("merged %d items, want 1 (failed chunk contributes nothing)", len(merged))
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning for the failed chunk, got %d", len(warnings))
	}
	if !strings.Contains(warnings[0], "chunk 2") {
		t.Errorf("warning %q does not name the failed chunk", warnings[0])
	}
}

func TestMergeChunkResultsFailedBandLeavesDetectableHole(t *testing.T) {
	chunks := PlanChunks(45, 30, 12.0)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 planned chunks, got %d", len(chunks))
	}

	// The middle band fails; its claimed line range (16-30) must stay
	// vacant in the merged sequence so gap detection can flag it
	results := []ChunkResult{
		{Chunk: chunks[0], Items: []receipt.ReceiptItem{
			{Name: "Milk", SourceText: "WHOLE MILK 2.99", LineNumber: 14, PositionPercent: 26},
			{Name: "Bananas", SourceText: "BANANAS 1.18", LineNumber: 15, PositionPercent: 31},
		}},
		{Chunk: chunks[1], Err: errors.New("model call failed")},
		{Chunk: chunks[2], Items: []receipt.ReceiptItem{
			{Name: "Bread", SourceText: "WHEAT BREAD 2.49", LineNumber: 31, PositionPercent: 68},
			{Name: "Eggs", SourceText: "LARGE EGGS 3.49", LineNumber: 32, PositionPercent: 73},
		}},
	}

	merged, warnings := MergeChunkResults(results, 0.75)

	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning for the failed band, got %d", len(warnings))
	}
	wantLines := []int{14, 15, 31, 32}
	if len(merged) != len(wantLines) {
		t.Fatalf("merged %d items, want %d", len(merged), len(wantLines))
	}
	for i, item := range merged {
		if item.LineNumber != wantLines[i] {
			t.Errorf("item %d has line %d, want %d (claimed numbering must survive the merge)",
				i, item.LineNumber, wantLines[i])
		}
	}

	gaps := DetectGaps(merged)
	if len(gaps) != 1 {
		t.Fatalf("DetectGaps on merged items returned %d gaps, want 1", len(gaps))
	}
	if gaps[0].AfterLineNumber != 15 || gaps[0].BeforeLineNumber != 31 {
		t.Errorf("gap spans lines %d-%d, want 15-31",
			gaps[0].AfterLineNumber, gaps[0].BeforeLineNumber)
	}
	if gaps[0].ExpectedCount != 15 {
		t.Errorf("gap expects %d missing items, want 15", gaps[0].ExpectedCount)
	}
}

func TestRenumberItems(t *testing.T) {
	items := []receipt.ReceiptItem{
		{LineNumber: 3},
		{LineNumber: 7},
		{LineNumber: 12},
	}

	RenumberItems(items)

	for i, item := range items {
		if item.LineNumber != i+1 {
			t.Errorf("item %d has line %d, want %d", i, item.LineNumber, i+1)
		}
	}
}
