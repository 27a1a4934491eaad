// normalizer.go - Canonicalizes raw recognized item text into display names

package processor

import (
	"regexp"
	"strings"
	"unicode"
)

// LookupTables holds the reference data the normalizer matches against.
// Injected explicitly so tests can supply their own tables.
type LookupTables struct {
	// ProduceCodes maps 4-digit PLU codes to display names
	ProduceCodes map[string]string
	// Abbreviations maps store shorthand tokens to full words
	Abbreviations map[string]string
}

// DefaultLookupTables returns the built-in PLU and abbreviation tables
func DefaultLookupTables() LookupTables {
	return LookupTables{
		ProduceCodes: map[string]string{
			"4011": "Yellow Banana",
			"4046": "Small Hass Avocado",
			"4225": "Large Hass Avocado",
			"4017": "Granny Smith Apple",
			"3283": "Honeycrisp Apple",
			"4131": "Fuji Apple",
			"4069": "Green Cabbage",
			"4062": "Cucumber",
			"4064": "Tomato",
			"4087": "Roma Tomato",
			"4663": "Sweet Onion",
			"4082": "Red Onion",
			"4073": "Red Grapefruit",
			"4958": "Lemon",
			"4048": "Lime",
			"4065": "Green Bell Pepper",
			"4688": "Red Bell Pepper",
			"4022": "Green Grapes",
			"4023": "Red Grapes",
			"4409": "Yellow Peach",
		},
		Abbreviations: map[string]string{
			"WHP":   "Whipped",
			"CRM":   "Cream",
			"CHKN":  "Chicken",
			"CHIC":  "Chicken",
			"BNLS":  "Boneless",
			"SKNLS": "Skinless",
			"GRND":  "Ground",
			"ORG":   "Organic",
			"ORGC":  "Organic",
			"WHL":   "Whole",
			"MLK":   "Milk",
			"CHS":   "Cheese",
			"CHED":  "Cheddar",
			"BF":    "Beef",
			"PRK":   "Pork",
			"VEG":   "Vegetable",
			"FRZ":   "Frozen",
			"SND":   "Sandwich",
			"BRD":   "Bread",
			"TOM":   "Tomato",
			"LTC":   "Lettuce",
			"STRWB": "Strawberry",
			"YOG":   "Yogurt",
			"GRK":   "Greek",
			"UNSLT": "Unsalted",
			"SLT":   "Salted",
			"BTR":   "Butter",
			"LRG":   "Large",
			"SM":    "Small",
			"DZ":    "Dozen",
		},
	}
}

var (
	bracketedCodeRe = regexp.MustCompile(`\s*[\[\(\{][^\]\)\}]*[\]\)\}]\s*`)
	pluCodeRe       = regexp.MustCompile(`\b(\d{4})\b`)
)

// NormalizeItemName canonicalizes a raw recognized item into a display name.
//
// Rules, in order: strip bracketed/parenthetical codes, resolve a 4-digit
// PLU code when the remaining text is short and ambiguous, expand known
// store abbreviations, title-case the result. Pure function; the caller's
// source_text stays untouched. Idempotent: normalizing twice yields the
// same string.
func NormalizeItemName(raw string, tables LookupTables) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return name
	}

	// Rule 1: strip bracketed codes ("MILK [0041] 1GAL" -> "MILK 1GAL")
	name = strings.TrimSpace(bracketedCodeRe.ReplaceAllString(name, " "))

	// Rule 2: produce-code lookup, only when the text is a bare code plus
	// short ambiguous remainder (a full descriptive name wins over the table)
	if match := pluCodeRe.FindString(name); match != "" {
		if display, ok := tables.ProduceCodes[match]; ok {
			remainder := strings.TrimSpace(strings.Replace(name, match, "", 1))
			if isAmbiguousText(remainder) {
				return display
			}
			// Keep the descriptive text, drop the code
			name = remainder
		}
	}

	// Rule 3: expand abbreviations token by token
	words := strings.Fields(name)
	for i, w := range words {
		key := strings.ToUpper(strings.Trim(w, ".,"))
		if full, ok := tables.Abbreviations[key]; ok {
			words[i] = full
		}
	}
	name = strings.Join(words, " ")

	// Rule 4: title case
	return titleCase(name)
}

// isAmbiguousText reports whether leftover text is too short or cryptic to
// serve as a display name on its own
func isAmbiguousText(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) <= 3 {
		return true
	}

	vowels := 0
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			vowels++
		}
	}

	// All-consonant shorthand like "CUCMBR" carries no vowels
	if vowels == 0 {
		return true
	}
	// A lone short token with a single vowel ("BNNA") reads as register
	// shorthand, not a name
	return !strings.Contains(s, " ") && len(s) <= 5 && vowels <= 1
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		if len(runes) > 0 && unicode.IsLetter(runes[0]) {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
