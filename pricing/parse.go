// Package pricing turns storefront price strings into numbers and compares them.
package pricing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/christianvidalwolf-prog/promochecker/models"
)

var (
	// reGroupSpace matches a digit group separated by a (non-breaking) space,
	// as in "1 234,56".
	reGroupSpace = regexp.MustCompile(`(\d)[ \x{00a0}\x{202f}](\d{3})`)

	// reNumber matches a number-looking token, separators included.
	reNumber = regexp.MustCompile(`\d(?:[\d.,']*\d)?`)

	// reQuantity matches the multiplier that follows a pack count, as in "2 x 19,99 €".
	reQuantity = regexp.MustCompile(`^\s*[xX×]\s*\d`)
)

// ParsePrice extracts the numeric value of a price string such as "1.234,56 €"
// or "$1,234.56". When both "," and "." occur, whichever appears later is the
// decimal separator. A single "," or "." is a decimal separator; the same
// separator repeated ("1.234.567") is thousands grouping. A pack count
// before a multiplier ("2 x 19,99") is skipped. It reports false for empty or digit-less input and never panics.
func ParsePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	for {
		next := reGroupSpace.ReplaceAllString(s, "$1$2")
		if next == s {
			break
		}
		s = next
	}

	token := firstPriceToken(s)
	if token == "" {
		return 0, false
	}
	token = strings.ReplaceAll(token, "'", "")

	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")

	var clean string
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			clean = decimalAt(strings.ReplaceAll(token, ".", ""), ",")
		} else {
			clean = decimalAt(strings.ReplaceAll(token, ",", ""), ".")
		}
	case lastComma >= 0:
		clean = decimalAt(token, ",")
	case lastDot >= 0:
		clean = decimalAt(token, ".")
	default:
		clean = token
	}

	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// firstPriceToken returns the first number token that is not a pack count.
func firstPriceToken(s string) string {
	for _, loc := range reNumber.FindAllStringIndex(s, -1) {
		if reQuantity.MatchString(s[loc[1]:]) {
			continue
		}
		return s[loc[0]:loc[1]]
	}
	return ""
}

// decimalAt turns a single sep into the decimal point. A sep that occurs
// more than once is thousands grouping and is dropped.
func decimalAt(s, sep string) string {
	switch strings.Count(s, sep) {
	case 0:
		return s
	case 1:
		return strings.Replace(s, sep, ".", 1)
	default:
		return strings.ReplaceAll(s, sep, "")
	}
}

// NewReading parses raw into a PriceReading tagged with the selector that
// produced it. Text without a usable number yields false.
func NewReading(raw, selector string) (models.PriceReading, bool) {
	text := strings.TrimSpace(raw)
	v, ok := ParsePrice(text)
	if !ok {
		return models.PriceReading{}, false
	}
	return models.PriceReading{RawText: text, Value: v, Selector: selector}, true
}
