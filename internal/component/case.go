package component

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	lower = cases.Lower(language.Und)
	upper = cases.Upper(language.Und)
)

// ToKebabCase converts a camelCase property name to its attribute form:
// "userName" becomes "user-name". Only lower-to-upper transitions split.
func ToKebabCase(s string) string {
	var sb strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsLower(prev) && unicode.IsUpper(r) {
			sb.WriteByte('-')
		}
		sb.WriteRune(r)
		prev = r
	}
	return lower.String(sb.String())
}

// ToCamelCase converts an attribute name to its property form: "user-name"
// becomes "userName". A dash not followed by a lowercase letter is kept.
func ToCamelCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '-' && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			sb.WriteString(upper.String(string(runes[i+1])))
			i++
			continue
		}
		sb.WriteRune(runes[i])
	}
	return sb.String()
}
