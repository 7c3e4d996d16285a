// Package guardrail screens user queries before they reach retrieval.
// Classification is substring matching over curated phrase lists, which
// keeps it fast enough to run on every request.
package guardrail

import "strings"

// defaultJailbreakPhrases flag attempts to override or escape the
// assistant's instructions.
var defaultJailbreakPhrases = []string{
	"ignore previous instructions",
	"bypass",
	"override",
	"disregard",
	"ignore your training",
	"forget your guidelines",
	"act as if",
	"pretend you are",
	"you're no longer",
	"ignore all rules",
}

// defaultDomainTerms is the banking vocabulary. A query mentioning none of
// these is treated as out of domain.
var defaultDomainTerms = []string{
	"card", "interest", "balance", "statement", "transaction", "branch", "atm",
	"bank", "finance", "payment", "fund", "money", "check", "saving", "investment",
	"mortgage", "rate", "fee", "charge", "online", "mobile", "app", "password",
	"pin", "login", "security", "otp", "nust", "customer", "global ranking",
	"admission", "undergraduate", "international", "sports", "facilities",
	"faculty", "help", "department", "library",

	"account", "current", "business", "premium", "remittance", "pakwatan",
	"value plus", "value premium", "flour mill",

	"transfer", "withdrawal", "deposit", "cheque", "banker's cheque", "debit card",
	"credit card", "internet banking", "sms alerts", "e-statement", "fund transfer",

	"loan", "kamyab jawan", "insurance", "credit", "debit",
	"kibor", "processing fee", "documentation", "legal charges",

	"initial deposit", "minimum balance", "monthly average balance", "soc",
	"issuance", "facility", "services", "cash management", "salary processing",

	"vpba", "nadra", "nmc", "nfmf", "pwra", "beneficiary",
}

// sensitivePatterns are redacted from generated responses before they are
// returned to the caller.
var sensitivePatterns = []string{
	"social security",
	"credit card number",
	"password",
	"pin code",
	"account number",
	"routing number",
}

// Classifier decides whether a query may proceed to retrieval. The phrase
// lists are fixed at construction and safe for concurrent use.
type Classifier struct {
	jailbreakPhrases []string
	domainTerms      []string
}

// NewClassifier builds a classifier. Empty slices fall back to the built-in
// lists; custom lists replace them entirely.
func NewClassifier(jailbreakPhrases, domainTerms []string) *Classifier {
	if len(jailbreakPhrases) == 0 {
		jailbreakPhrases = defaultJailbreakPhrases
	}
	if len(domainTerms) == 0 {
		domainTerms = defaultDomainTerms
	}
	return &Classifier{
		jailbreakPhrases: lowerAll(jailbreakPhrases),
		domainTerms:      lowerAll(domainTerms),
	}
}

// IsJailbreakAttempt reports whether the query contains a known prompt
// injection phrase. Matching is case-insensitive.
func (c *Classifier) IsJailbreakAttempt(query string) bool {
	lower := strings.ToLower(query)
	for _, phrase := range c.jailbreakPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// IsOutOfDomain reports whether the query mentions no banking vocabulary
// at all. Checks run after jailbreak detection, so a query may be both.
func (c *Classifier) IsOutOfDomain(query string) bool {
	lower := strings.ToLower(query)
	for _, term := range c.domainTerms {
		if strings.Contains(lower, term) {
			return false
		}
	}
	return true
}

// FilterResponse masks sensitive phrases in a generated response.
func FilterResponse(response string) string {
	lower := strings.ToLower(response)
	for _, pattern := range sensitivePatterns {
		for {
			idx := strings.Index(lower, pattern)
			if idx < 0 {
				break
			}
			response = response[:idx] + "[REDACTED]" + response[idx+len(pattern):]
			lower = strings.ToLower(response)
		}
	}
	return response
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}
