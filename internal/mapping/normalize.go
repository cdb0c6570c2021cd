package mapping

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are stripped (repeatedly) when grouping company labels.
var legalSuffixes = []string{
	" LIMITED", " LTD",
	" COMPANY", " CO",
	" INCORPORATED", " INC",
	" CORPORATION", " CORP",
	" PLC", " LLC", " LP",
	" GH",
}

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	totalRe      = regexp.MustCompile(`^(GRAND |SUB ?)?TOTALS?( FOR .*)?$`)
	numericRe    = regexp.MustCompile(`^[0-9\s.,/()-]+$`)
)

// fold applies NFKC and drops control and format characters (zero-width
// joiners, soft hyphens) that spreadsheet exports leave behind.
var fold = transform.Chain(
	norm.NFKC,
	runes.Remove(runes.Predicate(func(r rune) bool {
		return unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r)
	})),
)

func foldString(s string) string {
	out, _, err := transform.String(fold, s)
	if err != nil {
		return s
	}
	return out
}

// LabelKey is the lookup key for a free-text label: Unicode-folded,
// upper-cased, with whitespace collapsed. "  Premium  gasoline" and
// "PREMIUM GASOLINE" share a key.
func LabelKey(label string) string {
	s := strings.ToUpper(foldString(label))
	return strings.Join(strings.Fields(s), " ")
}

// CompanyKey groups spellings of the same company by stripping legal
// suffixes and punctuation. "Alpha Oil Co. Ltd." and "ALPHA OIL" share a key.
func CompanyKey(name string) string {
	name = LabelKey(name)
	if name == "" {
		return ""
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"(", " ",
		")", " ",
		"&", " AND ",
		"-", " ",
		"/", " ",
	).Replace(name)
	name = strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))

	for stripped := true; stripped; {
		stripped = false
		for _, suffix := range legalSuffixes {
			if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
				name = strings.TrimSpace(strings.TrimSuffix(name, suffix))
				stripped = true
			}
		}
	}
	return name
}

// DisplayName title-cases a label for use as a suggested canonical name.
func DisplayName(label string) string {
	s := strings.Join(strings.Fields(foldString(label)), " ")
	return cases.Title(language.English).String(strings.ToLower(s))
}

// removalReason reports why a label looks like layout noise rather than
// a product or company. It returns "" for real labels.
func removalReason(label string) string {
	key := LabelKey(label)
	switch {
	case key == "":
		return "blank_label"
	case totalRe.MatchString(strings.Trim(strings.ReplaceAll(key, "-", " "), ":")):
		return "total_row"
	case numericRe.MatchString(key):
		return "numeric_label"
	}
	return ""
}

// tokens splits a label into lower-case alphanumeric words.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(foldString(s)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
