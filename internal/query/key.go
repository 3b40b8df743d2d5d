package query

import "strings"

// Key is a tuple of primitive segments. Equality is structural; records are
// addressed by the canonical joined form.
type Key []string

// K builds a key from its segments.
func K(parts ...string) Key {
	return Key(parts)
}

const keySeparator = "\x1f"

func (k Key) String() string {
	return strings.Join(k, keySeparator)
}

// HasPrefix reports whether p is a segment-wise prefix of k.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

// Equal reports structural equality.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}
