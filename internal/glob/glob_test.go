package glob

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchLiteral(t *testing.T) {
	ok, err := Match("hello", "hello")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match("hello", "world")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMatchSingleWildcard(t *testing.T) {
	cases := map[string]bool{
		"ca": false,
		"cat": true,
		"cot": true,
		"caat": false,
	}
	for key, want := range cases {
		got, err := Match("c_t", key)
		require.NoError(t, err)
		require.Equal(t, want, got, "key=%q", key)
	}
}

func TestMatchAnyWildcard(t *testing.T) {
	cases := map[string]bool{
		"user:":       true,
		"user:1":      true,
		"user:12345":  true,
		"users:1":     false,
	}
	for key, want := range cases {
		got, err := Match("user:*", key)
		require.NoError(t, err)
		require.Equal(t, want, got, "key=%q", key)
	}
}

func TestMatchCombinedWildcards(t *testing.T) {
	ok, err := Match("_*_", "ab")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match("_*_", "a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMatchEscapedLiterals(t *testing.T) {
	ok, err := Match(`literal\_underscore`, "literal_underscore")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match(`literal\_underscore`, "literalXunderscore")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = Match(`\*star`, "*star")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMatchDanglingEscapeIsBadPattern(t *testing.T) {
	_, err := Match(`trailing\`, "trailing")
	require.Error(t, err)

	var badPattern *ErrBadPattern
	require.ErrorAs(t, err, &badPattern)
}

func TestMatchEmptyPatternOnlyMatchesEmptyKey(t *testing.T) {
	ok, err := Match("", "")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Match("", "x")
	require.NoError(t, err)
	require.False(t, ok)
}
