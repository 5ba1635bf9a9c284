package transportutil

import (
	"net/http"
	"strconv"

	"github.com/azzapp/billing-api/internal/api/apierrors"
	"github.com/pkg/errors"
)

type Error struct {
	HTTPCode int
	Message  string
}

func (e Error) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(e.Message)), nil
}

func (e Error) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *Error `json:"error,omitempty"`
}

func makeError(code int, e error) *Error {
	return &Error{
		HTTPCode: code,
		Message:  e.Error(),
	}
}

func MakeError(e error) *Error {
	srcErr := errors.Cause(e)
	switch srcErr {
	case apierrors.ErrNotFound:
		return makeError(http.StatusNotFound, e)
	case apierrors.ErrBadRequest:
		return makeError(http.StatusBadRequest, e)
	case apierrors.ErrNotAuthorized:
		// the relay retries on any non-2xx; 401 tells its dashboard
		// the secret is wrong rather than the processing
		return makeError(http.StatusUnauthorized, e)
	case apierrors.ErrExternalGateway:
		return makeError(http.StatusBadGateway, e)
	case apierrors.ErrInternal:
		return makeError(http.StatusInternalServerError, errors.New("internal error"))
	}

	switch srcErr.(type) {
	case *apierrors.NotAcceptableError:
		return makeError(http.StatusNotAcceptable, srcErr)
	case *apierrors.RaceConditionError:
		return makeError(http.StatusConflict, srcErr)
	}

	return makeError(http.StatusInternalServerError, errors.New("internal error"))
}
