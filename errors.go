package gorth

import (
	"errors"
	"fmt"
)

var (
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrStackEmpty     = errors.New("stack empty")

	ErrDictionaryFull = errors.New("dictionary full")
	ErrBadName        = errors.New("bad word name")
	ErrUnknownWord    = errors.New("unknown word")
	ErrBadLiteral     = errors.New("bad literal")
	ErrNumberOverflow = errors.New("number overflow")

	ErrCompileOnlyWord       = errors.New("compile-only word used while interpreting")
	ErrInterpretOnlyWord     = errors.New("interpret-only word used while compiling")
	ErrUnbalancedControlFlow = errors.New("unbalanced control flow")
	ErrColonInColon          = errors.New("':' inside a definition")
	ErrForkMidCompile        = errors.New("fork with an open definition")

	ErrDivideByZero = errors.New("division by zero")

	ErrInputFull  = errors.New("input buffer full")
	ErrOutputFull = errors.New("output buffer full")
	ErrBadAddress = errors.New("address out of range")

	ErrDiskOutOfRange = errors.New("disk: block index out of range")
	ErrDiskDriver     = errors.New("disk: internal driver error")

	// ErrPendingCallAgain is returned by a native word that pushed more
	// call frames and wants to run again once they complete. It never
	// escapes the inner interpreter.
	ErrPendingCallAgain = errors.New("pending call again")
)

// stackError tags a stack failure with the failing stack's name.
type stackError struct {
	name string
	err  error
}

func (e stackError) Error() string { return fmt.Sprintf("%v: %v", e.name, e.err) }
func (e stackError) Unwrap() error { return e.err }
