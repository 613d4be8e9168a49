package handler

import (
	"errors"
	"net/http"
)

var (
	ErrNilResponse   = errors.New("handler returned nil response")
	ErrNotApplicable = errors.New("binder not applicable to request")
)

// HTTPError is an error that already knows its status and public code.
type HTTPError struct {
	Status  int
	Code    string
	Message string
}

func (e HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// NewHTTPError builds an HTTPError.
func NewHTTPError(status int, code, message string) HTTPError {
	return HTTPError{Status: status, Code: code, Message: message}
}
