package logging

import (
	"regexp"
)

// Redactor strips user-identifying path segments from text before it
// leaves the machine, such as diagnostics copied to the clipboard or
// reports attached to bug filings.
type Redactor struct {
	rules []redactRule
}

type redactRule struct {
	pattern *regexp.Regexp
	repl    string
}

// NewRedactor creates a redactor with default rules for home
// directories, Windows profile paths and UNC hosts.
func NewRedactor() *Redactor {
	return &Redactor{
		rules: defaultRules(),
	}
}

func defaultRules() []redactRule {
	rules := []struct {
		pattern string
		repl    string
	}{
		// Linux home directories
		{`(/home/)([^/\\\s"':]+)`, `${1}<user>`},
		// macOS home directories
		{`(/Users/)([^/\\\s"':]+)`, `${1}<user>`},
		// Windows profile directories
		{`(?i)([a-z]:\\users\\)([^\\/\s"':]+)`, `${1}<user>`},
		// UNC share hosts
		{`(\\\\)([^\\/\s"':]+)`, `${1}<host>`},
	}

	compiled := make([]redactRule, 0, len(rules))
	for _, r := range rules {
		compiled = append(compiled, redactRule{
			pattern: regexp.MustCompile(r.pattern),
			repl:    r.repl,
		})
	}
	return compiled
}

// Redact replaces user-identifying segments in a string.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, rule := range r.rules {
		result = rule.pattern.ReplaceAllString(result, rule.repl)
	}
	return result
}

// RedactMap redacts string values in a map.
func (r *Redactor) RedactMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range m {
		switch val := v.(type) {
		case string:
			result[k] = r.Redact(val)
		case map[string]interface{}:
			result[k] = r.RedactMap(val)
		default:
			result[k] = v
		}
	}
	return result
}

// AddRule adds a custom rule. The replacement may reference capture
// groups from the pattern, e.g. "${1}<share>".
func (r *Redactor) AddRule(pattern, repl string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, redactRule{pattern: re, repl: repl})
	return nil
}
