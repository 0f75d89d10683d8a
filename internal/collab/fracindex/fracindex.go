// Package fracindex implements fractional ordering keys for item positions.
// Keys are lowercase strings ordered lexicographically; a new key can always
// be generated between any two existing keys without renumbering the rest of
// the board.
package fracindex

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const (
	minDigit = 'a'
	maxDigit = 'z'
	base     = int(maxDigit-minDigit) + 1
)

// seqSuffixWidth is the number of base-26 digits needed to encode any uint64.
const seqSuffixWidth = 14

var (
	ErrInvalidKey = errors.New("fracindex: invalid key")
	ErrNotOrdered = errors.New("fracindex: lower bound must precede upper bound")
)

// Validate checks that key is usable as a position: non-empty, lowercase
// a-z only, and not ending in the minimum digit (a trailing 'a' would leave
// no room to generate a key immediately before the next one).
func Validate(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		if key[i] < minDigit || key[i] > maxDigit {
			return ErrInvalidKey
		}
	}
	if key[len(key)-1] == minDigit {
		return ErrInvalidKey
	}
	return nil
}

// Between returns a key strictly between a and b. An empty a means "before
// everything", an empty b means "after everything". Both bounds, when
// non-empty, must satisfy Validate and a < b.
func Between(a, b string) (string, error) {
	if a != "" {
		if err := Validate(a); err != nil {
			return "", err
		}
	}
	if b != "" {
		if err := Validate(b); err != nil {
			return "", err
		}
	}
	if a != "" && b != "" && a >= b {
		return "", ErrNotOrdered
	}
	return midpoint(a, b), nil
}

// midpoint computes a string midway between a (exclusive lower, "" = min) and
// b (exclusive upper, "" = max). Invariant: a < b when both are non-empty.
func midpoint(a, b string) string {
	if b != "" {
		// Strip the common prefix; the midpoint shares it.
		n := 0
		for n < len(a) && n < len(b) && a[n] == b[n] {
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(a[n:], b[n:])
		}
	}

	digitA := 0
	if a != "" {
		digitA = int(a[0] - minDigit)
	}
	digitB := base
	if b != "" {
		digitB = int(b[0] - minDigit)
	}

	if digitB-digitA > 1 {
		mid := (digitA + digitB) / 2
		return string(rune(minDigit + mid))
	}

	// Consecutive leading digits: keep a's digit and recurse with the upper
	// bound removed (everything after a's digit is below b).
	rest := ""
	if a != "" {
		rest = a[1:]
	}
	return string(rune(minDigit+digitA)) + midpoint(rest, "")
}

// Tiebreak derives a key strictly greater than base for a mutation that
// computed the same fractional key as a concurrent one. Keys produced from
// the same base order by (seq, sessionID), so both writers end up with
// distinct, deterministically ordered positions.
func Tiebreak(baseKey string, seq uint64, sessionID uuid.UUID) string {
	var sb strings.Builder
	sb.Grow(len(baseKey) + seqSuffixWidth + 32)
	sb.WriteString(baseKey)

	// Fixed-width base-26 encoding of seq, most significant digit first.
	var digits [seqSuffixWidth]byte
	for i := seqSuffixWidth - 1; i >= 0; i-- {
		digits[i] = byte(minDigit + int(seq%uint64(base)))
		seq /= uint64(base)
	}
	sb.Write(digits[:])

	// Session id as nibbles mapped into 'a'..'p'; fixed width keeps the
	// comparison lexicographic.
	for _, c := range sessionID {
		sb.WriteByte(minDigit + c>>4)
		sb.WriteByte(minDigit + c&0x0f)
	}

	out := sb.String()
	if out[len(out)-1] == minDigit {
		out += string(rune(minDigit + 1))
	}
	return out
}
