// Package sanitize normalizes raw text, redacts PII, and validates
// whether a fragment is worth indexing.
package sanitize

import (
	"html"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// piiPattern is one named PII detector. Patterns are tried left to right;
// the first alternative that matches at a position wins, so order matters
// (e.g. credit_card before account_number).
type piiPattern struct {
	name    string
	pattern string
}

var piiPatterns = []piiPattern{
	{"credit_card", `\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`},
	{"ssn", `\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`},
	{"phone", `\b(?:\+\d{1,3}[-\s]?)?\(?\d{3}\)?[-\s]?\d{3}[-\s]?\d{4}\b`},
	{"email", `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`},
	{"account_number", `\b\d{10,17}\b`},
	{"date", `\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`},
	{"address", `\b\d+\s+[A-Za-z\s,]+(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Dr|Court|Ct|Circle|Cir|Way)\b`},
}

// piiRegex is the single combined, case-insensitive alternation over all
// PII patterns. One pass, no overlapping substitutions.
var piiRegex = buildPIIRegex()

func buildPIIRegex() *regexp.Regexp {
	parts := make([]string, len(piiPatterns))
	for i, p := range piiPatterns {
		parts[i] = "(?P<" + p.name + ">" + p.pattern + ")"
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, "|"))
}

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	specialRegex    = regexp.MustCompile(`[^\w\s.,!?-]`)
	letterRegex     = regexp.MustCompile(`[a-zA-Z]`)
)

// Normalize decodes HTML entities, applies Unicode canonical-compose
// normalization, and collapses whitespace runs to single spaces.
func Normalize(text string) string {
	text = html.UnescapeString(text)
	text = norm.NFKC.String(text)
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// RedactPII replaces every PII match with a tag naming the matched
// category (e.g. [REDACTED_CREDIT_CARD]) so downstream consumers can
// audit what was removed.
func RedactPII(text string) string {
	names := piiRegex.SubexpNames()
	return piiRegex.ReplaceAllStringFunc(text, func(m string) string {
		sub := piiRegex.FindStringSubmatch(m)
		for i := 1; i < len(sub); i++ {
			if sub[i] != "" && names[i] != "" {
				return "[REDACTED_" + strings.ToUpper(names[i]) + "]"
			}
		}
		return "[REDACTED]"
	})
}

// Clean applies the full sanitization pipeline: normalize, lowercase,
// strip everything but word characters, whitespace, and basic punctuation,
// collapse whitespace, then redact PII. Returns "" for empty input.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = Normalize(text)
	text = strings.ToLower(text)
	text = specialRegex.ReplaceAllString(text, " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	text = RedactPII(text)
	return strings.TrimSpace(text)
}

// IsValidChunk reports whether a chunk is worth indexing: non-empty,
// at least 10 characters after trimming, and containing a letter.
func IsValidChunk(chunk string) bool {
	trimmed := strings.TrimSpace(chunk)
	if len(trimmed) < 10 {
		return false
	}
	return letterRegex.MatchString(trimmed)
}
