package clean

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Variant is the rules-text category of a card, used for pricing segmentation.
type Variant string

const (
	VariantEx      Variant = "ex"
	VariantVMAX    Variant = "VMAX"
	VariantVSTAR   Variant = "VSTAR"
	VariantV       Variant = "V"
	VariantGX      Variant = "GX"
	VariantEX      Variant = "EX"
	VariantRegular Variant = "Regular"
)

var (
	nonWordRe   = regexp.MustCompile(`[^\w\s]`)
	setNumberRe = regexp.MustCompile(`\d+/\d+`)
)

// NormalizeName reduces a raw card name to its canonical matching key:
// lowercased, set-number annotations like "125/198" removed, punctuation
// replaced with spaces, whitespace collapsed. Idempotent and total.
// Set numbers must go before the punctuation pass eats the "/".
func NormalizeName(raw string) string {
	name := strings.ToLower(raw)
	name = setNumberRe.ReplaceAllString(name, "")
	name = nonWordRe.ReplaceAllString(name, " ")
	return strings.Join(strings.Fields(name), " ")
}

// CleanPrice parses a marketplace price string into a decimal. Currency
// symbols and thousands separators are stripped first. Returns ok=false for
// anything that does not parse as a non-negative number; a rejected listing
// is skipped by callers, never stored.
func CleanPrice(raw string) (decimal.Decimal, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(raw)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil || price.IsNegative() {
		return decimal.Decimal{}, false
	}
	return price, true
}

// Exclusion tokens grouped by language family. A substring hit anywhere in
// the combined listing text excludes the listing; matching is deliberately
// not word-bounded, trading false positives for precision of exclusion.
var (
	japaneseIndicators = []string{
		"日本", "japanese", "jpn", "jp", "プロモ",
		"japan exclusive", "japanese language",
	}

	koreanIndicators = []string{"korean", "kor", "한국", "korea"}

	otherLanguageIndicators = []string{
		"german", "french", "italian", "spanish",
		"portuguese", "chinese", "thai",
	}
)

// IsTargetLanguage reports whether a listing looks like the English variant.
// Best-effort heuristic over name, set name, and description; absence of any
// exclusion token is not a guarantee of an English card.
func IsTargetLanguage(name, setName, description string) bool {
	text := strings.ToLower(name + " " + setName + " " + description)

	for _, group := range [][]string{japaneseIndicators, koreanIndicators, otherLanguageIndicators} {
		for _, indicator := range group {
			if strings.Contains(text, indicator) {
				return false
			}
		}
	}
	return true
}

// ExtractVariant derives the variant tag from a card name. The checks overlap
// by substring, so the order below is load-bearing: "vmax"/"vstar" run before
// the bare "v" token test, and the lowercase " ex"/"-ex" test runs first.
// Changing the order changes classifications.
func ExtractVariant(name string) Variant {
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, " ex") || strings.Contains(lower, "-ex"):
		return VariantEx
	case strings.Contains(lower, "vmax"):
		return VariantVMAX
	case strings.Contains(lower, "vstar"):
		return VariantVSTAR
	case strings.Contains(lower, " v ") || strings.HasSuffix(lower, " v"):
		return VariantV
	case strings.Contains(lower, "gx"):
		return VariantGX
	case strings.Contains(lower, " ex ") || strings.HasSuffix(lower, " ex"):
		return VariantEX
	default:
		return VariantRegular
	}
}
