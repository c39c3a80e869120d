package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-plaza/internal/chat"
	"github.com/npezzotti/go-plaza/internal/rooms"
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

// NewValidationError exposes the reason to the caller.
func NewValidationError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    err.Error(),
		Err:        err,
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
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

func NewForbiddenError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusForbidden,
		Message:    lower(http.StatusText(http.StatusForbidden)),
	}
}

// errorFor maps domain errors onto API errors. Anything unrecognised is a
// storage failure.
func errorFor(err error) *ApiError {
	switch {
	case errors.Is(err, chat.ErrInvalidMessage), errors.Is(err, chat.ErrInvalidChatRoom):
		return NewValidationError(err)
	case errors.Is(err, rooms.ErrRoomNotFound),
		errors.Is(err, chat.ErrChatRoomNotFound),
		errors.Is(err, chat.ErrMessageNotFound):
		return NewNotFoundError()
	case errors.Is(err, rooms.ErrForbidden), errors.Is(err, chat.ErrNotParticipant):
		return NewForbiddenError()
	default:
		return NewInternalServerError(err)
	}
}
