package gorth

import (
	"errors"
	"fmt"
	"strconv"
)

// parseLiteral recognizes the numeric and character literal forms tried
// after dictionary lookup fails: optional leading -, then $ hex, %
// binary, or decimal digits; or a quoted character like 'a'. The second
// result is false when the token does not even look like a literal, so
// the caller can report ErrUnknownWord instead.
func parseLiteral(tok string) (Cell, bool, error) {
	if v, ok := charLiteral(tok); ok {
		return v, true, nil
	}

	s := tok
	neg := false
	if len(s) > 1 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	base := 10
	switch s[0] {
	case '$':
		base = 16
		s = s[1:]
	case '%':
		base = 2
		s = s[1:]
	}
	if s == "" || !literalShaped(s, base) {
		return 0, false, nil
	}

	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, true, fmt.Errorf("%w: %q", ErrNumberOverflow, tok)
		}
		return 0, true, fmt.Errorf("%w: %q", ErrBadLiteral, tok)
	}
	// Two's-complement range check: one extra magnitude is legal for a
	// negated literal.
	if neg {
		if v > 1<<63 {
			return 0, true, fmt.Errorf("%w: %q", ErrNumberOverflow, tok)
		}
		return Cell(-int64(v - 1) - 1), true, nil
	}
	if v > 1<<63-1 {
		return 0, true, fmt.Errorf("%w: %q", ErrNumberOverflow, tok)
	}
	return Cell(v), true, nil
}

// literalShaped reports whether every byte of s is a digit of the given
// base. A token that fails it is treated as not a number at all.
func literalShaped(s string, base int) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case '0' <= c && c <= '9':
			if int(c-'0') >= base {
				return false
			}
		case base == 16 && 'a' <= c && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// charLiteral recognizes 'x' as the character value of x.
func charLiteral(tok string) (Cell, bool) {
	if len(tok) == 3 && tok[0] == '\'' && tok[2] == '\'' {
		return Cell(tok[1]), true
	}
	return 0, false
}
