// consolidate.go - Post-hoc validation of model-side duplicate consolidation

package processor

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pantrysnap/receipt_ocr_gemini/internal/receipt"
)

const priceTolerance = 0.01

var (
	detailPriceRe = regexp.MustCompile(`\$\s*(\d+(?:\.\d+)?)`)
	quantityRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-zA-Z]+)`)
	sizeTokenRe   = regexp.MustCompile(`^\d+(?:\.\d+)?(oz|lb|g|kg|ml|l|ct|pk|gal|qt|pt)$`)
)

// ValidateConsolidations sanity-checks every item the extraction call
// already merged from multiple raw receipt lines.
//
// A consolidation whose detail prices do not sum to the merged price gets
// a quality warning but survives. A consolidation whose source lines
// differ in a meaning-changing way (different flavor or pack size that the
// quantity arithmetic cannot explain) is demoted: split back into one item
// per source line. No numeric reparsing of the receipt is attempted beyond
// the detail strings the extraction itself produced.
//
// Returns the (possibly expanded) item list plus warnings. Line numbers
// are renumbered when any demotion changed the sequence length.
func ValidateConsolidations(items []receipt.ReceiptItem) ([]receipt.ReceiptItem, []string) {
	var warnings []string
	out := make([]receipt.ReceiptItem, 0, len(items))
	demoted := false

	for _, item := range items {
		if item.ConsolidatedCount < 2 || len(item.ConsolidatedDetails) < 2 {
			out = append(out, item)
			continue
		}

		if sum, ok := detailPriceSum(item.ConsolidatedDetails); ok {
			if math.Abs(sum-item.Price) > priceTolerance {
				warnings = append(warnings, priceMismatchWarning(item, sum))
			}
		}

		if variantMismatch(item) {
			warnings = append(warnings, variantWarning(item))
			out = append(out, splitConsolidation(item)...)
			demoted = true
			continue
		}

		out = append(out, item)
	}

	if demoted {
		RenumberItems(out)
	}

	return out, warnings
}

func priceMismatchWarning(item receipt.ReceiptItem, sum float64) string {
	return "consolidated item \"" + item.Name + "\" price does not match the sum of its source lines ($" +
		strconv.FormatFloat(sum, 'f', 2, 64) + " expected, $" +
		strconv.FormatFloat(item.Price, 'f', 2, 64) + " reported)"
}

func variantWarning(item receipt.ReceiptItem) string {
	return "consolidation of \"" + item.Name + "\" merged lines that describe different products; split back into separate items"
}

// detailPriceSum extracts a trailing $price from every detail line.
// Only meaningful when every line carries one.
func detailPriceSum(details []string) (float64, bool) {
	var sum float64
	for _, d := range details {
		m := detailPriceRe.FindStringSubmatch(d)
		if m == nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		sum += v
	}
	return sum, true
}

// variantMismatch reports whether the consolidated source lines describe
// distinct products rather than repeats of the same one.
//
// Two signals, either is enough:
//   - the lines' descriptive words differ (flavor/variant tokens like
//     "strawberry" vs "blueberry" survive after stripping numbers, units
//     and prices)
//   - the lines carry different attached size tokens (12oz vs 16oz) and
//     the detail quantities do not sum to the merged quantity, so the
//     difference is a pack size, not a weight split
func variantMismatch(item receipt.ReceiptItem) bool {
	details := item.ConsolidatedDetails

	base := descriptiveTokens(details[0])
	for _, d := range details[1:] {
		if !sameTokenSet(base, descriptiveTokens(d)) {
			return true
		}
	}

	if sizeTokensDiffer(details) && !quantitiesSum(details, item.Quantity) {
		return true
	}

	return false
}

// descriptiveTokens strips prices, numbers and bare units, keeping the
// words that name the product
func descriptiveTokens(detail string) map[string]bool {
	detail = detailPriceRe.ReplaceAllString(detail, " ")
	tokens := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(detail)) {
		w = strings.Trim(w, ".,")
		if w == "" || isNumeric(w) || isUnitWord(w) || sizeTokenRe.MatchString(w) {
			continue
		}
		tokens[w] = true
	}
	return tokens
}

func sameTokenSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for t := range a {
		if !b[t] {
			return false
		}
	}
	return true
}

// sizeTokensDiffer reports whether the detail lines carry attached size
// tokens (like "12oz") that are not all identical
func sizeTokensDiffer(details []string) bool {
	var seen string
	found := false
	for _, d := range details {
		for _, w := range strings.Fields(strings.ToLower(d)) {
			w = strings.Trim(w, ".,")
			if !sizeTokenRe.MatchString(w) {
				continue
			}
			if found && w != seen {
				return true
			}
			seen = w
			found = true
		}
	}
	return false
}

// quantitiesSum checks whether the detail quantities, in a shared unit,
// add up to the merged quantity string (e.g. "2 lb" + "1.5 lb" = "3.5 lb")
func quantitiesSum(details []string, mergedQty string) bool {
	mergedVal, mergedUnit, ok := parseQuantity(mergedQty)
	if !ok {
		return false
	}

	var sum float64
	for _, d := range details {
		v, unit, ok := parseQuantity(d)
		if !ok || unit != mergedUnit {
			return false
		}
		sum += v
	}

	return math.Abs(sum-mergedVal) < 0.001
}

func parseQuantity(s string) (float64, string, bool) {
	m := quantityRe.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0, "", false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	return v, m[2], true
}

// splitConsolidation rebuilds one item per source line from the detail
// strings, dividing the merged price evenly when a line carries no price
// of its own
func splitConsolidation(item receipt.ReceiptItem) []receipt.ReceiptItem {
	parts := make([]receipt.ReceiptItem, 0, len(item.ConsolidatedDetails))
	fallbackPrice := item.Price / float64(len(item.ConsolidatedDetails))

	for _, d := range item.ConsolidatedDetails {
		part := item
		part.ConsolidatedCount = 0
		part.ConsolidatedDetails = nil
		part.SourceText = d
		part.IsAnchor = false

		part.Price = fallbackPrice
		if m := detailPriceRe.FindStringSubmatch(d); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				part.Price = v
			}
		}

		part.Quantity = ""
		if v, unit, ok := parseQuantity(d); ok {
			part.Quantity = strconv.FormatFloat(v, 'f', -1, 64) + " " + unit
		}

		parts = append(parts, part)
	}

	return parts
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func isUnitWord(s string) bool {
	switch s {
	case "oz", "lb", "lbs", "g", "kg", "ml", "l", "ct", "pk", "gal", "qt", "pt", "ea", "each":
		return true
	}
	return false
}
