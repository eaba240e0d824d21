package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chatconnect/chatconnect/internal/pairing"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewConflictError(message string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusConflict,
		Message:    message,
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewMethodNotAllowedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    lower(http.StatusText(http.StatusMethodNotAllowed)),
	}
}

// NewPairingError maps the pairing failure taxonomy onto HTTP status
// codes, carrying the service's user-displayable message through.
func NewPairingError(err error) *ApiError {
	var perr *pairing.Error
	if !errors.As(err, &perr) {
		return NewInternalServerError(err)
	}

	status := http.StatusInternalServerError
	switch perr.Reason {
	case pairing.ReasonNotFound, pairing.ReasonProfileMissing:
		status = http.StatusNotFound
	case pairing.ReasonRoomFull, pairing.ReasonAlreadyMember,
		pairing.ReasonSelfJoin, pairing.ReasonDuplicatePair,
		pairing.ReasonStoreConflict:
		status = http.StatusConflict
	case pairing.ReasonStoreOffline:
		status = http.StatusServiceUnavailable
	}

	return &ApiError{
		StatusCode: status,
		Message:    perr.Message,
	}
}
