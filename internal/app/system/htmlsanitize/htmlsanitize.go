// Package htmlsanitize strips unsafe markup from user-supplied rich
// text. Action payloads carrying HTML (topic text, motion text and
// reason, about_me, comments) run through Sanitize before they reach
// the datastore.
package htmlsanitize

import "github.com/microcosm-cc/bluemonday"

var policy = buildPolicy()

func buildPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowTables()
	p.AllowAttrs("class").OnElements("p", "span", "div", "ol", "ul", "li")
	p.AllowAttrs("style").OnElements("p", "span")
	return p
}

// Sanitize returns the input with scripts, event handlers and other
// unsafe constructs removed. Safe formatting markup passes through.
func Sanitize(input string) string {
	if input == "" {
		return ""
	}
	return policy.Sanitize(input)
}

// Fields sanitizes the named fields of a payload in place, skipping
// absent and non-string values.
func Fields(instance map[string]any, names ...string) {
	for _, name := range names {
		if s, ok := instance[name].(string); ok {
			instance[name] = Sanitize(s)
		}
	}
}
