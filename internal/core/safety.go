package core

import (
	"strings"

	"golang.org/x/text/cases"
)

// crisisKeywords are matched as plain substrings of the case-folded text, so
// a keyword inside a longer word ("насмерть") also counts.
var crisisKeywords = []string{
	"суицид",
	"убить себя",
	"не хочу жить",
	"смерть",
	"покончить",
	"насилие",
	"селфхарм",
}

// IsEmergency reports whether text contains any crisis keyword.
func IsEmergency(text string) bool {
	if text == "" {
		return false
	}
	// A Caser holds state, so each call gets its own.
	folder := cases.Fold()
	folded := folder.String(text)
	for _, keyword := range crisisKeywords {
		if strings.Contains(folded, folder.String(keyword)) {
			return true
		}
	}
	return false
}
