package extract

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateFormats to try when coercing extracted dates, most specific first.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006", // DD/MM/YYYY
	"2/1/2006",
	"01/02/2006", // MM/DD/YYYY (ambiguous with the above; first parse wins)
	"02-01-2006",
	"02.01.2006",
	"Jan 02 2006",
	"Jan 2 2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02/01/06",
	"2/1/06",
}

// ParseFlexibleDate tries the known date formats and returns the parsed time,
// or the zero time when nothing matches. Two-digit years are pinned to 2000+.
func ParseFlexibleDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			if t.Year() < 100 {
				t = t.AddDate(2000, 0, 0)
			}
			return t
		}
	}
	return time.Time{}
}

// ToISODate coerces a date string to YYYY-MM-DD, or returns "" when the
// input cannot be parsed.
func ToISODate(s string) string {
	t := ParseFlexibleDate(s)
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

var currencyRunes = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "", " ", "")

// CleanAmount parses a monetary string, stripping currency symbols and
// thousands separators and treating "(1.23)" as negative. The second return
// is false when the string is not an amount.
func CleanAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if upper := strings.ToUpper(s); strings.HasSuffix(upper, "CR") {
		s = strings.TrimSpace(s[:len(s)-2])
	} else if strings.HasSuffix(upper, "DR") {
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	}

	s = currencyRunes.Replace(s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// datePattern matches common date shapes inside free text.
var datePattern = regexp.MustCompile(
	`(?i)` +
		`(?:\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4})` +
		`|(?:\d{4}[/\-]\d{2}[/\-]\d{2})` +
		`|(?:(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2})` +
		`|(?:\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?)`,
)

// amountPattern matches monetary amounts inside free text.
var amountPattern = regexp.MustCompile(
	`[$\-(]?\d{1,3}(?:,\d{3})*\.\d{2}\)?|\d+\.\d{2}`,
)

// looksLikeDate reports whether the string contains a date-shaped token.
func looksLikeDate(s string) bool {
	return datePattern.MatchString(s)
}

// looksLikeAmount reports whether the string contains an amount-shaped token.
func looksLikeAmount(s string) bool {
	return amountPattern.MatchString(s)
}

// CountTransactionLines counts lines containing both a date-shaped and an
// amount-shaped token, a cheap estimate of the transaction count.
func CountTransactionLines(text string) int {
	count := 0
	for _, line := range strings.Split(text, "\n") {
		if looksLikeDate(line) && looksLikeAmount(line) {
			count++
		}
	}
	return count
}
