package extract

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var yearRe = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)

var monthNames = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

// ParseYear extracts the first 19xx/20xx token from a file name.
func ParseYear(path string) (int, bool) {
	m := yearRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return y, true
}

// ParseMonth reads a month from a sheet name: "JAN", "January",
// "JAN 2019", "01". Names without a month (e.g. "Summary") return false.
func ParseMonth(sheet string) (int, bool) {
	tokens := strings.FieldsFunc(strings.ToLower(sheet), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if m, ok := monthNames[tok]; ok {
			return m, true
		}
		if len(tok) <= 2 && isDigits(tok) {
			if n, _ := strconv.Atoi(tok); n >= 1 && n <= 12 {
				return n, true
			}
		}
	}
	return 0, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
