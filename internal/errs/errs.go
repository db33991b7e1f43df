// Package errs defines the typed error kinds the engine returns and the
// HTTP adapter translates. Storage and engine code attach a Kind at the
// point of failure; everything else propagates errors unchanged.
package errs

import (
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
)

type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	Forbidden
	NotFound
	Conflict
	Validation
	Insufficient
	NoLiquidity
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "UNAUTHENTICATED"
	case Forbidden:
		return "FORBIDDEN"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case Validation:
		return "VALIDATION"
	case Insufficient:
		return "INSUFFICIENT"
	case NoLiquidity:
		return "NO_LIQUIDITY"
	default:
		return "INTERNAL"
	}
}

// Error carries a kind alongside the message and optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E constructs a kinded error with a formatted message.
func E(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind, defaulting to Internal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return fasthttp.StatusUnauthorized
	case Forbidden:
		return fasthttp.StatusForbidden
	case NotFound:
		return fasthttp.StatusNotFound
	case Conflict:
		return fasthttp.StatusConflict
	case Validation, Insufficient, NoLiquidity:
		return fasthttp.StatusBadRequest
	default:
		return fasthttp.StatusInternalServerError
	}
}
