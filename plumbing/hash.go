package plumbing

import (
	"crypto"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/pjbgf/sha1cd"
)

// HashSize is the width in bytes of the SHA-1 digest used to address every
// object in the store (spec §3, "Object identity").
const HashSize = 20

// HexSize is the width in hex characters of a Hash's string form.
const HexSize = HashSize * 2

// Hash is the SHA-1 digest that addresses a git object. It is a value type:
// two Hash values compare equal with ==.
type Hash [HashSize]byte

// ZeroHash is the zero-value Hash, used as a sentinel "no object" parent or
// ref value (e.g. the expected-old of a CAS update that creates a new ref).
var ZeroHash Hash

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == ZeroHash }

// String returns the 40 hex character representation of h.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns the raw 20 bytes of h.
func (h Hash) Bytes() []byte { return h[:] }

// MarshalJSON encodes h as its hex string, so journal and vcsops state
// files read back as plain 40-character hashes rather than byte arrays.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON decodes a hex string produced by MarshalJSON. An empty
// string unmarshals to the zero hash.
func (h *Hash) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		*h = ZeroHash
		return nil
	}
	parsed, err := FromHex(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Compare returns -1, 0 or 1 comparing h to b lexicographically.
func (h Hash) Compare(b []byte) int {
	for i := 0; i < HashSize && i < len(b); i++ {
		if h[i] != b[i] {
			if h[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// NewHash parses a 40 hex character string into a Hash. An invalid string
// yields the zero hash, mirroring git's own lenient constructor; callers
// that must detect invalid input should use FromHex instead.
func NewHash(s string) Hash {
	h, _ := FromHex(s)
	return h
}

// FromHex parses s, which must be exactly HexSize hex characters, into a
// Hash. It returns ErrInvalidRevision if s is not valid hex of the right
// length.
func FromHex(s string) (Hash, error) {
	var h Hash
	if len(s) != HexSize {
		return h, ErrInvalidRevision
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, ErrInvalidRevision
	}
	copy(h[:], b)
	return h, nil
}

// IsHash reports whether s looks like a full hex object id.
func IsHash(s string) bool {
	if len(s) != HexSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Hasher incrementally computes the hash of a framed object: the type word,
// a space, the decimal size, a NUL, then the content bytes. This is exactly
// the framing spec §3 defines as the hashed form of every object.
type Hasher struct {
	h crypto.Hash
	inner interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
		Reset()
	}
}

// NewHasher returns a Hasher primed with the object header for t and size.
func NewHasher(t ObjectType, size int64) Hasher {
	hs := Hasher{inner: sha1cd.New()}
	hs.inner.Write(t.Bytes())
	hs.inner.Write([]byte(" "))
	hs.inner.Write([]byte(strconv.FormatInt(size, 10)))
	hs.inner.Write([]byte{0})
	return hs
}

// Write feeds additional content bytes into the hash.
func (h Hasher) Write(p []byte) (int, error) { return h.inner.Write(p) }

// Sum returns the resulting Hash.
func (h Hasher) Sum() (out Hash) {
	copy(out[:], h.inner.Sum(nil))
	return out
}

// SumBytes hashes raw bytes with the same collision-detecting SHA-1 used
// for object framing, without the git object header. Used for bookkeeping
// snapshots (e.g. the journal's index-state fingerprint) that address
// content but are never looked up as a git object.
func SumBytes(b []byte) Hash {
	h := sha1cd.New()
	h.Write(b)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashesSort sorts a slice of Hashes in increasing lexicographic order.
func HashesSort(a []Hash) {
	sort.Slice(a, func(i, j int) bool { return a[i].Compare(a[j][:]) < 0 })
}
