package catalog

import (
	"regexp"
	"strings"
)

// separator matches the characters treated as equivalent between words.
const separator = `[\s\-]+`

// NameFilter matches character names against a loosely normalized query:
// case-insensitive, anchored at the start, with any run of whitespace in
// the query matching any run of whitespace or hyphens in the name.
type NameFilter struct {
	prefix  string
	pattern *regexp.Regexp
}

// NewNameFilter compiles query. An empty or blank query yields a filter
// that matches everything.
func NewNameFilter(query string) *NameFilter {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return &NameFilter{}
	}

	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = regexp.QuoteMeta(tok)
	}

	return &NameFilter{
		prefix:  tokens[0],
		pattern: regexp.MustCompile(`(?i)^` + strings.Join(quoted, separator)),
	}
}

// Empty reports whether the filter was built from a blank query.
func (f *NameFilter) Empty() bool {
	return f.pattern == nil
}

// Prefix is the first query token, sent upstream as nameStartsWith.
func (f *NameFilter) Prefix() string {
	return f.prefix
}

// Pattern returns the compiled expression, or "" for an empty filter.
func (f *NameFilter) Pattern() string {
	if f.pattern == nil {
		return ""
	}
	return f.pattern.String()
}

// Match reports whether name satisfies the filter.
func (f *NameFilter) Match(name string) bool {
	return f.pattern == nil || f.pattern.MatchString(name)
}

// Apply returns the entries whose name matches, preserving order.
func (f *NameFilter) Apply(entries []CharacterSummary) []CharacterSummary {
	if f.Empty() {
		return entries
	}
	out := make([]CharacterSummary, 0, len(entries))
	for _, e := range entries {
		if f.Match(e.Name) {
			out = append(out, e)
		}
	}
	return out
}
