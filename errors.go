package sqlgate

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rickchristie/sqlgate/internal/auth"
	"github.com/rickchristie/sqlgate/internal/protection"
)

// Kind classifies a gateway error and decides its HTTP status.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Error is returned by every gateway stage. Detail is the client-facing
// message. Rule is set for KindForbidden. Hint is an operator-configured
// suggestion matched against execution errors.
type Error struct {
	Kind   Kind
	Rule   protection.Rule
	Detail string
	Hint   string
	Err    error
}

func (e *Error) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Rule, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode maps the error kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(detail string, err error) *Error {
	return &Error{Kind: KindBadRequest, Detail: detail, Err: err}
}

// classify wraps a stage failure into an *Error.
func classify(err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	var v *protection.Violation
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return &Error{Kind: KindUnauthorized, Detail: err.Error(), Err: err}
	case errors.Is(err, protection.ErrEmptyQuery):
		return badRequest(err.Error(), err)
	case errors.As(err, &v):
		return &Error{Kind: KindForbidden, Rule: v.Rule, Detail: v.Error(), Err: err}
	default:
		return &Error{Kind: KindExecution, Detail: err.Error(), Err: err}
	}
}
