package service

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var degreeSigns = strings.NewReplacer("°", "", "º", "")

// NormalizeGradeName folds a grade level name for matching: trimmed, lower case,
// without diacritics or degree signs, inner whitespace collapsed.
func NormalizeGradeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = degreeSigns.Replace(strings.ToLower(folded))
	return strings.Join(strings.Fields(folded), " ")
}

// Educational ordering buckets.
const (
	rankPreKinder = iota
	rankKinder
	rankTransition
	rankNumeric
	rankUnknown
)

// gradeRank places a grade level name in the school progression. The second value
// orders numeric grades among themselves.
func gradeRank(name string) (int, int) {
	n := NormalizeGradeName(name)
	compact := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(n)
	switch {
	case strings.HasPrefix(compact, "prekinder") || strings.HasPrefix(compact, "prejardin") || compact == "prek":
		return rankPreKinder, 0
	case strings.HasPrefix(compact, "kinder") || strings.HasPrefix(compact, "jardin"):
		return rankKinder, 0
	case strings.HasPrefix(compact, "transicion"):
		return rankTransition, 0
	}
	if num, ok := leadingNumber(n); ok {
		return rankNumeric, num
	}
	return rankUnknown, 0
}

// leadingNumber returns the first run of digits in s, e.g. 6 for "6a" or "grado 6".
func leadingNumber(s string) (int, bool) {
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0, false
	}
	return v, true
}

// gradeLess orders grade level names educationally, falling back to the folded name.
func gradeLess(a, b string) bool {
	ra, na := gradeRank(a)
	rb, nb := gradeRank(b)
	if ra != rb {
		return ra < rb
	}
	if na != nb {
		return na < nb
	}
	return NormalizeGradeName(a) < NormalizeGradeName(b)
}
