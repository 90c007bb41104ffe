package ir

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Name is a classic API object name: up to four bytes packed big-endian
// into 32 bits. The zero Name is invalid.
type Name uint32

// BuildName packs four characters into a Name.
func BuildName(c1, c2, c3, c4 byte) Name {
	return Name(uint32(c1)<<24 | uint32(c2)<<16 | uint32(c3)<<8 | uint32(c4))
}

// ParseName packs a string of one to four ASCII characters. Shorter
// strings are padded with spaces, the way object listings print them.
func ParseName(s string) (Name, error) {
	if s == "" || len(s) > 4 {
		return 0, fmt.Errorf("name %q: must be 1 to 4 characters", s)
	}
	var b [4]byte
	for i := range b {
		b[i] = ' '
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return 0, fmt.Errorf("name %q: non-printable byte at %d", s, i)
		}
		b[i] = s[i]
	}
	return BuildName(b[0], b[1], b[2], b[3]), nil
}

// MustName is like ParseName but panics on error.
// Use only in tests or with constant names.
func MustName(s string) Name {
	n, err := ParseName(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Valid reports whether the name may be used for an object.
func (n Name) Valid() bool {
	return n != 0
}

// String unpacks the name, trimming trailing padding.
func (n Name) String() string {
	b := []byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	for i, c := range b {
		if c == 0 {
			b[i] = ' '
		}
	}
	return strings.TrimRight(string(b), " ")
}

// MaximumPOSIXNameLength bounds POSIX object names (NAME_MAX).
const MaximumPOSIXNameLength = 255

// NormalizePOSIXName returns the lookup key for a POSIX object name.
// Names are NFC normalized so that canonically equivalent names open the
// same object.
func NormalizePOSIXName(name string) string {
	return norm.NFC.String(name)
}
