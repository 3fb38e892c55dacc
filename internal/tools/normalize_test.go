package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := DefaultNormalizer(DefaultPrefix)
	cases := []struct {
		in, want string
	}{
		{"navigate", "navigate"},
		{"group__navigate", "navigate"},
		{"a__b__click", "click"},
		{"server:screenshot", "screenshot"},
		{"a:b:type", "type"},
		{"mcp_frontend-sniper_get_network_errors", "get_network_errors"},
		// "__" wins over ":".
		{"host:srv__scroll", "scroll"},
		{"srv__x:scroll", "x:scroll"},
		// Only one rule is applied.
		{"mcp__mcp_frontend-sniper_click", "mcp_frontend-sniper_click"},
		{"trailing__", "trailing__"},
		{"", ""},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			assert.Equal(t, c.want, n.Normalize(c.in))
		})
	}
}

func TestRules(t *testing.T) {
	t.Run("SeparatorMiss", func(t *testing.T) {
		_, ok := SeparatorRule("__").Apply("navigate")
		assert.False(t, ok)
	})

	t.Run("EmptyPrefixNeverMatches", func(t *testing.T) {
		_, ok := PrefixRule("").Apply("navigate")
		assert.False(t, ok)
	})

	t.Run("CustomOrder", func(t *testing.T) {
		n := NewNormalizer(SeparatorRule(":"), SeparatorRule("__"))
		assert.Equal(t, "srv__scroll", n.Normalize("host:srv__scroll"))
	})
}
