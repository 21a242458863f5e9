package plumbing

// HexPrefix is a parsed, possibly odd-length id prefix. The nibble
// representation is shared by commit-id (hex) and change-id (reverse-hex)
// prefixes so the index lookup code does not care which alphabet the user
// typed.
type HexPrefix struct {
	nibbles []byte
}

// ParseHexPrefix parses a lowercase hex prefix. Returns false for invalid
// or over-long input.
func ParseHexPrefix(s string) (HexPrefix, bool) {
	if len(s) > HASH_HEX_SIZE {
		return HexPrefix{}, false
	}
	nibbles := make([]byte, 0, len(s))
	for _, b := range []byte(s) {
		c := reverseHexTable[b]
		if c > 0x0f {
			return HexPrefix{}, false
		}
		nibbles = append(nibbles, c)
	}
	return HexPrefix{nibbles: nibbles}, true
}

// ParseReverseHexPrefix parses a change-id prefix written in the
// reverse-hex alphabet.
func ParseReverseHexPrefix(s string) (HexPrefix, bool) {
	if len(s) > CHANGE_HEX_SIZE {
		return HexPrefix{}, false
	}
	nibbles := make([]byte, 0, len(s))
	for _, b := range []byte(s) {
		c := reverseChangeTable[b]
		if c > 0x0f {
			return HexPrefix{}, false
		}
		nibbles = append(nibbles, c)
	}
	return HexPrefix{nibbles: nibbles}, true
}

// Len returns the prefix length in nibbles.
func (p HexPrefix) Len() int { return len(p.nibbles) }

// MinBytes returns the smallest byte string whose nibble expansion starts
// with the prefix. It is the lower bound for a binary search over sorted
// ids.
func (p HexPrefix) MinBytes() []byte {
	b := make([]byte, (len(p.nibbles)+1)/2)
	for i, n := range p.nibbles {
		if i%2 == 0 {
			b[i/2] = n << 4
		} else {
			b[i/2] |= n
		}
	}
	return b
}

// Matches reports whether id's nibble expansion starts with the prefix.
func (p HexPrefix) Matches(id []byte) bool {
	for i, n := range p.nibbles {
		if i/2 >= len(id) {
			return false
		}
		var got byte
		if i%2 == 0 {
			got = id[i/2] >> 4
		} else {
			got = id[i/2] & 0x0f
		}
		if got != n {
			return false
		}
	}
	return true
}

// AsFullHash returns the full-length hash when the prefix spells out an
// entire commit-sized id.
func (p HexPrefix) AsFullHash() (Hash, bool) {
	if len(p.nibbles) != HASH_HEX_SIZE {
		return ZeroHash, false
	}
	var h Hash
	copy(h[:], p.MinBytes())
	return h, true
}
