package plumbing

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

const (
	CHANGE_DIGEST_SIZE = 16
	CHANGE_HEX_SIZE    = 32
	// Change ids print in the reverse-hex alphabet: the digit 0 becomes
	// 'z', 1 becomes 'y', …, f becomes 'k'. The disjoint alphabets keep
	// change ids visually distinct from commit ids.
	forwardChangeTable = "zyxwvutsrqponmlk"
)

var reverseChangeTable = func() (t [256]byte) {
	for i := range t {
		t[i] = 0xff
	}
	for i := 0; i < len(forwardChangeTable); i++ {
		t[forwardChangeTable[i]] = byte(i)
	}
	return
}()

// ChangeID is the stable identity of a logical change. Unlike the object
// ids it is not a content hash: it is minted once and survives rewrites.
type ChangeID [CHANGE_DIGEST_SIZE]byte

var ZeroChangeID ChangeID

// NewChangeID mints a fresh random change id.
func NewChangeID() ChangeID {
	return ChangeID(uuid.New())
}

func (c ChangeID) IsZero() bool {
	var empty ChangeID
	return c == empty
}

// String encodes the id in the reverse-hex alphabet.
func (c ChangeID) String() string {
	buf := make([]byte, 0, CHANGE_HEX_SIZE)
	for _, b := range c {
		buf = append(buf, forwardChangeTable[b>>4], forwardChangeTable[b&0x0f])
	}
	return string(buf)
}

func (c ChangeID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ChangeID) UnmarshalText(text []byte) error {
	id, err := NewChangeIDEx(string(text))
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// ValidateChangeHex reports whether s is a full-length reverse-hex change
// id.
func ValidateChangeHex(s string) bool {
	if len(s) != CHANGE_HEX_SIZE {
		return false
	}
	for _, b := range []byte(s) {
		if c := reverseChangeTable[b]; c > 0x0f {
			return false
		}
	}
	return true
}

func NewChangeIDEx(s string) (ChangeID, error) {
	var c ChangeID
	if !ValidateChangeHex(s) {
		return c, &InvalidChangeIDError{Text: s}
	}
	for i := 0; i < CHANGE_DIGEST_SIZE; i++ {
		hi := reverseChangeTable[s[2*i]]
		lo := reverseChangeTable[s[2*i+1]]
		c[i] = hi<<4 | lo
	}
	return c, nil
}

func NewChangeIDFromBytes(b []byte) (ChangeID, error) {
	var c ChangeID
	if len(b) != CHANGE_DIGEST_SIZE {
		return c, &InvalidHashLengthError{Len: len(b)}
	}
	copy(c[:], b)
	return c, nil
}

// ChangeIDsSort sorts a slice of ChangeIDs in increasing byte order.
func ChangeIDsSort(a []ChangeID) {
	sort.Sort(changeIDSlice(a))
}

type changeIDSlice []ChangeID

func (p changeIDSlice) Len() int           { return len(p) }
func (p changeIDSlice) Less(i, j int) bool { return bytes.Compare(p[i][:], p[j][:]) < 0 }
func (p changeIDSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
