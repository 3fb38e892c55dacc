package tools

import "strings"

// DefaultPrefix is the literal prefix some MCP hosts put in front of tool
// names when routing to this server.
const DefaultPrefix = "mcp_frontend-sniper_"

// Rule extracts an operation name from a routed tool name. Apply reports
// false when the rule does not match.
type Rule struct {
	Name  string
	Apply func(name string) (string, bool)
}

// SeparatorRule keeps the text after the last sep.
func SeparatorRule(sep string) Rule {
	return Rule{
		Name: "separator " + sep,
		Apply: func(name string) (string, bool) {
			i := strings.LastIndex(name, sep)
			if i < 0 || i+len(sep) == len(name) {
				return "", false
			}
			return name[i+len(sep):], true
		},
	}
}

// PrefixRule strips a literal prefix.
func PrefixRule(prefix string) Rule {
	return Rule{
		Name: "prefix " + prefix,
		Apply: func(name string) (string, bool) {
			if prefix == "" {
				return "", false
			}
			rest, ok := strings.CutPrefix(name, prefix)
			return rest, ok && rest != ""
		},
	}
}

// Normalizer applies the first matching rule of an ordered list.
type Normalizer struct {
	rules []Rule
}

func NewNormalizer(rules ...Rule) *Normalizer {
	return &Normalizer{rules: rules}
}

// DefaultNormalizer prefers "__" over ":" over the literal prefix.
func DefaultNormalizer(prefix string) *Normalizer {
	return NewNormalizer(
		SeparatorRule("__"),
		SeparatorRule(":"),
		PrefixRule(prefix),
	)
}

// Normalize returns the operation name for name. Names no rule matches are
// returned as is.
func (n *Normalizer) Normalize(name string) string {
	for _, r := range n.rules {
		if out, ok := r.Apply(name); ok {
			return out
		}
	}
	return name
}
