// validate.go - Typed validation of raw model output before the pipeline touches it

package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidResponse is returned when no parseable JSON object is found in
// the model response, or the parsed object carries no usable items.
var ErrInvalidResponse = errors.New("invalid extraction response")

// rawItem mirrors the extraction schema with tolerant numeric decoding.
// Fields the model may return as string-or-number go through FlexibleFloat64.
type rawItem struct {
	Name                string          `json:"name"`
	Quantity            string          `json:"quantity"`
	Price               FlexibleFloat64 `json:"price"`
	UnitPrice           FlexibleFloat64 `json:"unit_price"`
	Category            string          `json:"category"`
	IsFood              *bool           `json:"is_food"`
	SourceText          string          `json:"source_text"`
	LineNumber          int             `json:"line_number"`
	PositionPercent     FlexibleFloat64 `json:"position_percent"`
	IsAnchor            bool            `json:"is_anchor"`
	ConsolidatedCount   int             `json:"consolidated_count"`
	ConsolidatedDetails []string        `json:"consolidated_details"`
}

type rawReceipt struct {
	StoreName       string           `json:"store_name"`
	StoreLocation   string           `json:"store_location"`
	PurchaseDate    string           `json:"purchase_date"`
	Items           []rawItem        `json:"items"`
	Subtotal        *FlexibleFloat64 `json:"subtotal"`
	Tax             *FlexibleFloat64 `json:"tax"`
	Total           *FlexibleFloat64 `json:"total"`
	QualityWarnings []string         `json:"quality_warnings"`
}

// ExtractJSON trims an optional fenced code block and slices the first
// top-level JSON object out of the response text. Returns "" when no
// object boundaries are present.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// ParseExtractionResponse validates raw model text into an ExtractedReceipt.
// Malformed items (empty name, negative price, line number < 1) are dropped
// rather than propagated; a response with no JSON at all is ErrInvalidResponse.
func ParseExtractionResponse(text string) (*ExtractedReceipt, error) {
	jsonStr := ExtractJSON(text)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidResponse)
	}

	var raw rawReceipt
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	result := &ExtractedReceipt{
		StoreName:       strings.TrimSpace(raw.StoreName),
		StoreLocation:   strings.TrimSpace(raw.StoreLocation),
		PurchaseDate:    strings.TrimSpace(raw.PurchaseDate),
		QualityWarnings: raw.QualityWarnings,
	}
	if raw.Subtotal != nil {
		v := float64(*raw.Subtotal)
		result.Subtotal = &v
	}
	if raw.Tax != nil {
		v := float64(*raw.Tax)
		result.Tax = &v
	}
	if raw.Total != nil {
		v := float64(*raw.Total)
		result.Total = &v
	}

	dropped := 0
	for _, ri := range raw.Items {
		item, ok := validateItem(ri)
		if !ok {
			dropped++
			continue
		}
		result.Items = append(result.Items, item)
	}

	if dropped > 0 {
		result.AddWarning("%d malformed item(s) rejected during response validation", dropped)
	}

	return result, nil
}

// ValidateItems converts a raw item array (the verification pass returns
// items without the receipt wrapper) into clean ReceiptItems.
func ValidateItems(raw []json.RawMessage) []ReceiptItem {
	var items []ReceiptItem
	for _, msg := range raw {
		var ri rawItem
		if err := json.Unmarshal(msg, &ri); err != nil {
			continue
		}
		if item, ok := validateItem(ri); ok {
			items = append(items, item)
		}
	}
	return items
}

func validateItem(ri rawItem) (ReceiptItem, bool) {
	name := strings.TrimSpace(ri.Name)
	if name == "" {
		return ReceiptItem{}, false
	}
	if ri.Price < 0 || ri.LineNumber < 0 {
		return ReceiptItem{}, false
	}

	category := strings.ToLower(strings.TrimSpace(ri.Category))
	if !IsValidCategory(category) {
		category = CategoryPantry
	}

	// Default is_food from category when the model omits it
	isFood := category != CategoryNonFood
	if ri.IsFood != nil {
		isFood = *ri.IsFood
	}

	pos := float64(ri.PositionPercent)
	if pos < 0 {
		pos = 0
	}
	if pos > 100 {
		pos = 100
	}

	sourceText := strings.TrimSpace(ri.SourceText)
	if sourceText == "" {
		sourceText = name
	}

	return ReceiptItem{
		Name:                name,
		Quantity:            strings.TrimSpace(ri.Quantity),
		Price:               float64(ri.Price),
		UnitPrice:           float64(ri.UnitPrice),
		Category:            category,
		IsFood:              isFood,
		SourceText:          sourceText,
		LineNumber:          ri.LineNumber,
		PositionPercent:     pos,
		IsAnchor:            ri.IsAnchor,
		ConsolidatedCount:   ri.ConsolidatedCount,
		ConsolidatedDetails: ri.ConsolidatedDetails,
	}, true
}
