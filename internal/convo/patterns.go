// Package convo holds the per-worker conversation state machine and the
// phrase patterns that drive it.
package convo

import (
	"regexp"
	"strings"
)

// Patterns classifies free-text message bodies. It is an interface so the
// phrase sets can be extended or swapped without touching the state machine.
type Patterns interface {
	// ExtractIntroducedName pulls a first name out of an intro message
	// ("this is Omar", "Omar here", or a bare plausible name).
	ExtractIntroducedName(body string) (string, bool)
	IsAffirmative(body string) bool
	IsNegative(body string) bool
	IsMissingReceiptPhrase(body string) bool
	// MatchLanguage reads a language choice ("english", "es", "español")
	// and reports the canonical code "en" or "es".
	MatchLanguage(body string) (string, bool)
}

// NewPatterns returns the default regex-backed Patterns.
func NewPatterns() Patterns { return regexPatterns{} }

type regexPatterns struct{}

var (
	introRe      = regexp.MustCompile(`(?i)(?:this is|my name is|i'?m|i am)\s+([A-Za-z]+)`)
	hereRe       = regexp.MustCompile(`(?i)^([A-Za-z]+)\s+here\b`)
	bareNameRe   = regexp.MustCompile(`^[A-Za-z]{2,20}$`)
	missedPhrase = []*regexp.Regexp{
		regexp.MustCompile(`didn'?t get a receipt`),
		regexp.MustCompile(`no receipt`),
		regexp.MustCompile(`lost.{0,10}receipt`),
		regexp.MustCompile(`forgot.{0,10}receipt`),
		regexp.MustCompile(`never got.{0,10}receipt`),
	}
)

// Common words that look like bare names but are not.
var notNames = map[string]bool{
	"hello": true, "hi": true, "hey": true, "yo": true, "sup": true,
	"help": true, "yes": true, "no": true, "yep": true, "nope": true,
	"ok": true, "okay": true, "thanks": true, "thank": true, "please": true,
	"stop": true, "start": true, "test": true, "receipt": true, "photo": true,
	"what": true, "who": true, "where": true, "when": true, "how": true,
	"why": true, "the": true, "and": true, "but": true,
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func (regexPatterns) ExtractIntroducedName(body string) (string, bool) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	if m := introRe.FindStringSubmatch(body); m != nil {
		return capitalize(m[1]), true
	}
	if m := hereRe.FindStringSubmatch(body); m != nil {
		return capitalize(m[1]), true
	}
	if bareNameRe.MatchString(body) && !notNames[strings.ToLower(body)] {
		return capitalize(body), true
	}
	return "", false
}

var affirmatives = map[string]bool{
	"YES": true, "Y": true, "YEP": true, "YEAH": true, "CORRECT": true,
	"LOOKS GOOD": true, "GOOD": true, "SI": true, "SÍ": true,
}

var negatives = map[string]bool{
	"NO": true, "N": true, "NOPE": true, "WRONG": true, "INCORRECT": true,
}

func (regexPatterns) IsAffirmative(body string) bool {
	return affirmatives[strings.ToUpper(strings.TrimSpace(body))]
}

func (regexPatterns) IsNegative(body string) bool {
	return negatives[strings.ToUpper(strings.TrimSpace(body))]
}

var englishVariants = map[string]bool{
	"english": true, "eng": true, "en": true, "ingles": true, "inglés": true,
}

var spanishVariants = map[string]bool{
	"spanish": true, "spa": true, "es": true, "esp": true,
	"espanol": true, "español": true,
}

func (regexPatterns) MatchLanguage(body string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(body))
	v = strings.TrimSuffix(v, ".")
	switch {
	case englishVariants[v]:
		return "en", true
	case spanishVariants[v]:
		return "es", true
	}
	return "", false
}

func (regexPatterns) IsMissingReceiptPhrase(body string) bool {
	lower := strings.ToLower(body)
	for _, re := range missedPhrase {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
