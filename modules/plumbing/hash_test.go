package plumbing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashOfDeterministic(t *testing.T) {
	a := HashOf([]byte("hello"))
	b := HashOf([]byte("hello"))
	c := HashOf([]byte("hello!"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a.String(), HASH_HEX_SIZE)
}

func TestNewHashRoundTrip(t *testing.T) {
	h := HashOf([]byte("payload"))
	got, err := NewHashEx(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, got)
	_, err = NewHashEx("xyz")
	assert.Error(t, err)
}

func TestChangeIDAlphabetDisjoint(t *testing.T) {
	id := NewChangeID()
	s := id.String()
	assert.Len(t, s, CHANGE_HEX_SIZE)
	// No digit of the reverse-hex alphabet is a hex digit, so a change id
	// can never be mistaken for a commit id prefix.
	assert.NotContains(t, s, "a")
	assert.Equal(t, "", strings.Map(func(r rune) rune {
		if strings.ContainsRune(forwardChangeTable, r) {
			return -1
		}
		return r
	}, s))
}

func TestChangeIDRoundTrip(t *testing.T) {
	id := NewChangeID()
	parsed, err := NewChangeIDEx(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	_, err = NewChangeIDEx("0123")
	assert.Error(t, err)
}

func TestHexPrefixMatches(t *testing.T) {
	h := NewHash(strings.Repeat("ab", HASH_DIGEST_SIZE))
	p, ok := ParseHexPrefix("aba")
	require.True(t, ok)
	assert.True(t, p.Matches(h[:]))

	p2, ok := ParseHexPrefix("abb")
	require.True(t, ok)
	assert.False(t, p2.Matches(h[:]))

	_, ok = ParseHexPrefix("zz")
	assert.False(t, ok)
}

func TestHexPrefixMinBytes(t *testing.T) {
	p, ok := ParseHexPrefix("a0f")
	require.True(t, ok)
	assert.Equal(t, []byte{0xa0, 0xf0}, p.MinBytes())
	assert.Equal(t, 3, p.Len())
}
