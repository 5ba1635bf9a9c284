package apierrors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errors.New("no data")
	ErrBadRequest    = errors.New("bad request")
	ErrInternal      = errors.New("internal error")
	ErrNotAuthorized = errors.New("not authorized")

	// ErrExternalGateway marks failures of the rebill gateway and the tax
	// service: login failures and non-terminal schedule statuses. Callers
	// must not retry operations wrapped with it: a blind retry can charge
	// the subscriber twice.
	ErrExternalGateway = errors.New("external gateway error")
)

// IsExpected reports whether err is a normal client-facing failure to log
// as a warning, as opposed to a failure worth alerting on.
func IsExpected(err error) bool {
	switch errors.Cause(err) {
	case ErrNotFound, ErrBadRequest, ErrNotAuthorized:
		return true
	}

	switch errors.Cause(err).(type) {
	case *NotAcceptableError, *RaceConditionError:
		return true
	}

	return false
}

type LocalizedError interface {
	GetMessage() string
}

type ErrorWithCode interface {
	GetCode() string
}

type NotAcceptableError struct {
	code    string
	message string
}

func (e NotAcceptableError) Error() string {
	prefix := fmt.Sprintf("not acceptable: %s", e.code)
	if e.message != "" {
		return prefix + ": " + e.message
	}

	return prefix
}

func (e NotAcceptableError) GetMessage() string {
	return e.message
}

func (e NotAcceptableError) GetCode() string {
	return e.code
}

func (e NotAcceptableError) WithMessage(m string) *NotAcceptableError {
	return &NotAcceptableError{
		code:    e.code,
		message: m,
	}
}

func NewNotAcceptableError(code string) *NotAcceptableError {
	return &NotAcceptableError{code: code}
}

type RaceConditionError struct {
	message string
}

func NewRaceConditionError(m string) *RaceConditionError {
	return &RaceConditionError{message: m}
}

func (e RaceConditionError) Error() string {
	return fmt.Sprintf("race condition: %s", e.message)
}

func (e RaceConditionError) GetMessage() string {
	return e.message
}
