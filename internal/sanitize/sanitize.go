// Package sanitize cleans text produced by the content provider before it
// is stored or sent to the ad platform. Ad copy is plain text: any markup a
// model emits is stripped with bluemonday's strict policy.
package sanitize

import (
	"html"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

// getPolicy returns the shared strict policy, initializing it on first call.
func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// maxPasses bounds how many entity layers PlainText decodes.
const maxPasses = 4

// PlainText removes every HTML element from input and collapses runs of
// spaces and tabs. Line breaks are kept since primary text may span lines.
// Entities are decoded so "&" stays "&" in the ad. Decoding can surface
// entity-encoded markup, so strip and decode repeat until the text is
// stable; text still changing after maxPasses is returned escaped.
func PlainText(input string) string {
	if input == "" {
		return ""
	}
	out := input
	stable := false
	for i := 0; i < maxPasses; i++ {
		next := html.UnescapeString(getPolicy().Sanitize(out))
		if next == out {
			stable = true
			break
		}
		out = next
	}
	if !stable {
		out = getPolicy().Sanitize(out)
	}

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Truncate shortens s to at most n runes without splitting a character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// Value walks a decoded JSON value and applies PlainText to every string,
// map keys excluded. Used for provider payloads such as targeting specs.
func Value(v any) any {
	switch t := v.(type) {
	case string:
		return PlainText(t)
	case map[string]any:
		for k, x := range t {
			t[k] = Value(x)
		}
		return t
	case []any:
		for i, x := range t {
			t[i] = Value(x)
		}
		return t
	default:
		return v
	}
}
