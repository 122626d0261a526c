package hopdb

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a query-level failure.
type ErrorKind uint8

const (
	// ErrSyntax — unsupported clause or illegal reference.
	ErrSyntax ErrorKind = iota + 1
	// ErrSemantic — unknown tag/edge, duplicate alias, variable/input
	// mismatch, wrong VID type.
	ErrSemantic
	// ErrRpc — storage returned completeness 0, or a continuation failed.
	ErrRpc
	// ErrData — a required row or property is absent with nothing to
	// default from.
	ErrData
	// ErrInternal — an executor invariant was violated. Surfaced, never a
	// process crash.
	ErrInternal
	// ErrUnimplemented — reserved functionality (date/time/path decoding).
	ErrUnimplemented
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax"
	case ErrSemantic:
		return "semantic"
	case ErrRpc:
		return "rpc"
	case ErrData:
		return "data"
	case ErrInternal:
		return "internal"
	case ErrUnimplemented:
		return "unimplemented"
	default:
		return "unknown"
	}
}

// Error is a typed query-level error.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return "hopdb: " + e.Msg }

// KindOf returns the taxonomy kind of err, or 0 for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func syntaxErrorf(format string, args ...any) *Error {
	return &Error{Kind: ErrSyntax, Msg: fmt.Sprintf(format, args...)}
}

func semanticErrorf(format string, args ...any) *Error {
	return &Error{Kind: ErrSemantic, Msg: fmt.Sprintf(format, args...)}
}

func rpcErrorf(format string, args ...any) *Error {
	return &Error{Kind: ErrRpc, Msg: fmt.Sprintf(format, args...)}
}

func dataErrorf(format string, args ...any) *Error {
	return &Error{Kind: ErrData, Msg: fmt.Sprintf(format, args...)}
}

func internalErrorf(format string, args ...any) *Error {
	return &Error{Kind: ErrInternal, Msg: fmt.Sprintf(format, args...)}
}

func unimplementedErrorf(format string, args ...any) *Error {
	return &Error{Kind: ErrUnimplemented, Msg: fmt.Sprintf(format, args...)}
}
