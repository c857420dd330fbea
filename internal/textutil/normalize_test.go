package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeForMatching(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Compose!  ", "compose"},
		{"Hello, World!", "hello world"},
		{"", ""},
		{"icono de perfil", "icono de perfil"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeForMatching(c.in))
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("a   b\tc"))
	assert.Equal(t, "", CollapseWhitespace("   "))
}

func TestWordBoundaryMatch(t *testing.T) {
	t.Run("exact word", func(t *testing.T) {
		tier := WordBoundaryMatch("compose button", "compose")
		assert.Equal(t, "exact_word", tier)
	})
	t.Run("starts with", func(t *testing.T) {
		tier := WordBoundaryMatch("composebutton", "compose")
		assert.Equal(t, "starts_with", tier)
	})
	t.Run("ends with", func(t *testing.T) {
		tier := WordBoundaryMatch("newcompose", "compose")
		assert.Equal(t, "ends_with", tier)
	})
	t.Run("within word requires length >= 5", func(t *testing.T) {
		tier := WordBoundaryMatch("xcomposex", "ompos")
		assert.Equal(t, "within_word", tier)
	})
	t.Run("no match", func(t *testing.T) {
		tier := WordBoundaryMatch("settings", "compose")
		assert.Equal(t, "", tier)
	})
}

func TestIsPluralVariant(t *testing.T) {
	assert.True(t, IsPluralVariant("button", "buttons"))
	assert.True(t, IsPluralVariant("buttons", "button"))
	assert.False(t, IsPluralVariant("buttons", "buttons"))
	assert.False(t, IsPluralVariant("ab", "abs"))
}
