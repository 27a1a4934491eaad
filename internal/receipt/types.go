// types.go - Core receipt data model shared by every pipeline stage

package receipt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Item categories reported by the extraction call
const (
	CategoryProduce = "produce"
	CategoryDairy   = "dairy"
	CategoryMeat    = "meat"
	CategoryPantry  = "pantry"
	CategoryFrozen  = "frozen"
	CategoryNonFood = "non_food"
)

// ValidCategories lists every accepted category value
var ValidCategories = []string{
	CategoryProduce, CategoryDairy, CategoryMeat,
	CategoryPantry, CategoryFrozen, CategoryNonFood,
}

// IsValidCategory reports whether c is a known category value
func IsValidCategory(c string) bool {
	for _, v := range ValidCategories {
		if c == v {
			return true
		}
	}
	return false
}

// ReceiptItem represents one purchased line on the receipt.
//
// LineNumber is the claimed 1-based sequential position at extraction time.
// It is not gap-free until the pipeline finishes; after a successful run the
// sequence is contiguous 1..N and PositionPercent is non-decreasing with it.
type ReceiptItem struct {
	Name                string   `json:"name"`
	Quantity            string   `json:"quantity,omitempty"`
	Price               float64  `json:"price"`
	UnitPrice           float64  `json:"unit_price,omitempty"`
	Category            string   `json:"category"`
	IsFood              bool     `json:"is_food"`
	SourceText          string   `json:"source_text"`
	LineNumber          int      `json:"line_number"`
	PositionPercent     float64  `json:"position_percent"`
	IsAnchor            bool     `json:"is_anchor,omitempty"`
	ConsolidatedCount   int      `json:"consolidated_count,omitempty"`
	ConsolidatedDetails []string `json:"consolidated_details,omitempty"`
}

// ExtractedReceipt is the aggregate produced by one scan run.
// It is constructed fresh per request, mutated in place by the pipeline
// stages, and treated as immutable once returned to the caller.
type ExtractedReceipt struct {
	StoreName       string        `json:"store_name,omitempty"`
	StoreLocation   string        `json:"store_location,omitempty"`
	PurchaseDate    string        `json:"purchase_date,omitempty"`
	Items           []ReceiptItem `json:"items"`
	Subtotal        *float64      `json:"subtotal,omitempty"`
	Tax             *float64      `json:"tax,omitempty"`
	Total           *float64      `json:"total,omitempty"`
	QualityWarnings []string      `json:"quality_warnings,omitempty"`
	Confidence      float64       `json:"confidence"`
}

// AddWarning appends a quality warning (append-only during processing)
func (r *ExtractedReceipt) AddWarning(format string, args ...interface{}) {
	r.QualityWarnings = append(r.QualityWarnings, fmt.Sprintf(format, args...))
}

// Gap is a transient record of a break in the claimed line numbering.
// It exists only during one pipeline run and is never persisted.
type Gap struct {
	AfterLineNumber  int    `json:"after_line_number"`
	BeforeLineNumber int    `json:"before_line_number"`
	ExpectedCount    int    `json:"expected_count"`
	Confidence       string `json:"confidence"` // high, medium, low
}

// Chunk defines one vertical image section for parallel sub-extraction.
// Discarded after merge.
type Chunk struct {
	ID                int     `json:"id"`
	Section           string  `json:"section"` // top, middle, bottom, ...
	YStartPercent     float64 `json:"y_start_percent"`
	YEndPercent       float64 `json:"y_end_percent"`
	ExpectedFirstLine int     `json:"expected_first_line"`
	ExpectedLastLine  int     `json:"expected_last_line"`
}

// ScanResult is the contract returned to the caller
type ScanResult struct {
	Success    bool              `json:"success"`
	Receipt    *ExtractedReceipt `json:"receipt,omitempty"`
	Error      string            `json:"error,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	TokensUsed int               `json:"tokens_used,omitempty"`
	CostUSD    float64           `json:"cost_usd,omitempty"`
}

// CorrectionRecord persists the delta between an extracted item and the
// user's post-review edit. Read back as few-shot context for future scans
// of the same store; never mutated after insert.
type CorrectionRecord struct {
	SessionID           string    `bson:"session_id" json:"session_id"`
	HouseholdID         string    `bson:"household_id" json:"household_id"`
	StoreName           string    `bson:"store_name" json:"store_name"`
	AIExtractedName     string    `bson:"ai_extracted_name" json:"ai_extracted_name"`
	AIExtractedQty      string    `bson:"ai_extracted_quantity" json:"ai_extracted_quantity"`
	AIExtractedPrice    float64   `bson:"ai_extracted_price" json:"ai_extracted_price"`
	AIExtractedCategory string    `bson:"ai_extracted_category" json:"ai_extracted_category"`
	CorrectedName       string    `bson:"corrected_name" json:"corrected_name"`
	CorrectedQty        string    `bson:"corrected_quantity" json:"corrected_quantity"`
	CorrectedPrice      float64   `bson:"corrected_price" json:"corrected_price"`
	CorrectedCategory   string    `bson:"corrected_category" json:"corrected_category"`
	WasCorrected        bool      `bson:"was_corrected" json:"was_corrected"`
	WasRemoved          bool      `bson:"was_removed" json:"was_removed"`
	CreatedAt           time.Time `bson:"created_at" json:"created_at"`
}

// FlexibleFloat64 can unmarshal from both string and number.
// The model occasionally returns prices as quoted strings ("2.07").
type FlexibleFloat64 float64

func (f *FlexibleFloat64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexibleFloat64(num)
		return nil
	}

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("cannot unmarshal %s as float64 or string", string(data))
	}

	str = strings.TrimSpace(strings.TrimPrefix(str, "$"))
	if str == "" {
		*f = 0
		return nil
	}

	num, err := strconv.ParseFloat(str, 64)
	if err != nil {
		return fmt.Errorf("cannot parse string %q as float64: %w", str, err)
	}

	*f = FlexibleFloat64(num)
	return nil
}
