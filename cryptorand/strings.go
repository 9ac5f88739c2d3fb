// Package cryptorand generates random values from a cryptographically
// secure source. Invite codes are drawn from a fixed alphabet with
// rejection sampling, so every character is uniformly distributed.
package cryptorand

import (
	"crypto/rand"
	"encoding/binary"
	"strings"

	"golang.org/x/xerrors"
)

// Charsets
const (
	// Numeric includes decimal numbers (0-9)
	Numeric = "0123456789"

	// Upper is uppercase characters in the Latin alphabet
	Upper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// Lower is lowercase characters in the Latin alphabet
	Lower = "abcdefghijklmnopqrstuvwxyz"

	// Alpha is upper or lowercase alphabetic characters
	Alpha = Upper + Lower

	// Default is uppercase, lowercase, or numeric characters
	Default = Numeric + Alpha

	// Human is the invite-code alphabet: lowercase alphanumerics with
	// the visually confusable characters (0, o, i, 1, l) removed, so a
	// code read over the phone or copied from paper types in cleanly.
	Human = "23456789abcdefghjkmnpqrstuvwxyz"
)

// unbiasedModulo32 uniformly modulos v by n, regenerating v when it
// falls in the biased region. n must be > 0 and all input bits in v
// must be fully random.
//
// See https://lemire.me/blog/2016/06/27/a-fast-alternative-to-the-modulo-reduction/
func unbiasedModulo32(v uint32, n int32) (int32, error) {
	prod := uint64(v) * uint64(n)
	low := uint32(prod)
	if low < uint32(n) {
		thresh := uint32(-n) % uint32(n)
		for low < thresh {
			err := binary.Read(rand.Reader, binary.BigEndian, &v)
			if err != nil {
				return 0, err
			}
			prod = uint64(v) * uint64(n)
			low = uint32(prod)
		}
	}
	return int32(prod >> 32), nil
}

// StringCharset generates a random string of the given size using the
// provided charset.
func StringCharset(charSetStr string, size int) (string, error) {
	if size == 0 {
		return "", nil
	}
	if len(charSetStr) == 0 {
		return "", xerrors.New("charSetStr must not be empty")
	}

	charSet := []rune(charSetStr)

	// Pre-allocate the entropy to amortize the crypto/rand syscall
	// overhead.
	entropy := make([]byte, 4*size)
	_, err := rand.Read(entropy)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	buf.Grow(size)

	for i := 0; i < size; i++ {
		r := binary.BigEndian.Uint32(entropy[:4])
		entropy = entropy[4:]

		ci, err := unbiasedModulo32(r, int32(len(charSet)))
		if err != nil {
			return "", err
		}

		_, _ = buf.WriteRune(charSet[ci])
	}

	return buf.String(), nil
}

// String returns a random string using Default.
func String(size int) (string, error) {
	return StringCharset(Default, size)
}
