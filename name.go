package gorth

import "fmt"

// Dictionary names are at most 31 bytes of 7-bit ASCII, folded to
// lowercase. The limit lets a name live in a fixed header slot (one
// length byte plus 31 bytes) inside the dictionary arena.
const maxNameLen = 31

// foldName validates and case-folds a word name.
func foldName(s string) (string, error) {
	if len(s) == 0 || len(s) > maxNameLen {
		return "", fmt.Errorf("%w: %q", ErrBadName, s)
	}
	b := []byte(s)
	for i, c := range b {
		if c > 0x7f {
			return "", fmt.Errorf("%w: %q", ErrBadName, s)
		}
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b), nil
}
