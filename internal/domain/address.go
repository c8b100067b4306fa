package domain

import (
	"regexp"
	"strings"
)

var (
	addressPunctRe = regexp.MustCompile(`[^a-z0-9 ]+`)
	addressSpaceRe = regexp.MustCompile(`\s+`)
)

// addressTokens maps common street-type and directional spellings to their
// canonical abbreviation. Canonical forms are absent as keys so that
// normalization is idempotent.
var addressTokens = map[string]string{
	"street":     "st",
	"avenue":     "ave",
	"av":         "ave",
	"boulevard":  "blvd",
	"drive":      "dr",
	"road":       "rd",
	"lane":       "ln",
	"court":      "ct",
	"circle":     "cir",
	"place":      "pl",
	"highway":    "hwy",
	"parkway":    "pkwy",
	"terrace":    "ter",
	"trail":      "trl",
	"square":     "sq",
	"crossing":   "xing",
	"expressway": "expy",

	"north":     "n",
	"south":     "s",
	"east":      "e",
	"west":      "w",
	"northeast": "ne",
	"northwest": "nw",
	"southeast": "se",
	"southwest": "sw",

	"apartment": "apt",
	"suite":     "ste",
	"building":  "bldg",
}

// NormalizeAddress reduces a free-form street address to a deterministic
// canonical form: lowercase, punctuation stripped, whitespace collapsed,
// street-type and directional tokens abbreviated. It is idempotent and is
// used both for deduplication keys and for search.
func NormalizeAddress(addr string) string {
	s := strings.ToLower(strings.TrimSpace(addr))
	if s == "" {
		return ""
	}
	s = addressPunctRe.ReplaceAllString(s, " ")
	s = addressSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	tokens := strings.Split(s, " ")
	for i, tok := range tokens {
		if canonical, ok := addressTokens[tok]; ok {
			tokens[i] = canonical
		}
	}
	return strings.Join(tokens, " ")
}
