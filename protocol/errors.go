package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a recognized protocol failure that can be converted into
// a well formed error response instead of aborting the caller
type Error struct {
	StatusCode int
	Code       string
	Message    string
	// Err is the underlying cause (if any)
	Err error
}

// errorBody is the machine readable body of an error response
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError creates a new protocol error
func NewError(statusCode int, code string, message string) *Error {
	return &Error{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// NewBadRequestError creates a 400 protocol error
func NewBadRequestError(code string, message string) *Error {
	return NewError(http.StatusBadRequest, code, message)
}

// NewNotFoundError creates a 404 protocol error
func NewNotFoundError(code string, message string) *Error {
	return NewError(http.StatusNotFound, code, message)
}

// NewMethodNotAllowedError creates a 405 protocol error
func NewMethodNotAllowedError(code string, message string) *Error {
	return NewError(http.StatusMethodNotAllowed, code, message)
}

// Wrap records err as the cause of the protocol error and returns it
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the protocol error
func (e *Error) Unwrap() error {
	return e.Err
}

// ToResponse converts the error into a JSON error response
func (e *Error) ToResponse() *Response {
	response, err := NewJSONResponse(e.StatusCode, errorBody{
		Error: errorDetail{
			Code:    e.Code,
			Message: e.Message,
		},
	})
	if err != nil {
		// a struct of two strings always marshals
		panic(err)
	}

	return response
}

// AsError returns the protocol error in err's chain (if any)
func AsError(err error) (*Error, bool) {
	var protocolErr *Error
	if errors.As(err, &protocolErr) {
		return protocolErr, true
	}
	return nil, false
}
