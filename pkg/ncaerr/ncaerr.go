// Package ncaerr defines the error-kind taxonomy shared by every package
// in this module (spec.md §7). Every error is an *Error carrying a typed
// Kind field rather than a matchable string, so callers can use errors.As
// and switch on Kind.
package ncaerr

import "fmt"

type Kind int

const (
	_ Kind = iota
	InvalidMagic
	InvalidFieldRange
	Misaligned
	MissingInput
	CryptoBackend
	Zstd
	NoSectionForOffset
	SinkWrite
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case InvalidMagic:
		return "InvalidMagic"
	case InvalidFieldRange:
		return "InvalidFieldRange"
	case Misaligned:
		return "Misaligned"
	case MissingInput:
		return "MissingInput"
	case CryptoBackend:
		return "CryptoBackend"
	case Zstd:
		return "Zstd"
	case NoSectionForOffset:
		return "NoSectionForOffset"
	case SinkWrite:
		return "SinkWrite"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error carries a kind, the name of whatever field/component failed, and
// an optional wrapped cause.
type Error struct {
	Kind  Kind
	Where string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s(%s): %v", e.Kind, e.Where, e.Err)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, e.Where)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, where string) error {
	return &Error{Kind: kind, Where: where}
}

func Wrap(kind Kind, where string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Where: where, Err: err}
}
