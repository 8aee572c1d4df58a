package client

import (
	"errors"
	"fmt"
)

// ErrUnauthorized matches every 401 answer; use SignInRedirect for the target
var ErrUnauthorized = errors.New("not signed in")

// UnauthorizedError carries the sign-in redirect sent with a 401
type UnauthorizedError struct {
	Redirect string
}

func (e *UnauthorizedError) Error() string {
	return "not signed in"
}

// Is lets errors.Is(err, ErrUnauthorized) match
func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// SignInRedirect returns the sign-in path carried by an unauthorized error
func SignInRedirect(err error) (string, bool) {
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return ue.Redirect, true
	}
	return "", false
}

// APIError is a failed response without a more specific mapping
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("billing api: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("billing api: %d %s", e.StatusCode, e.Code)
}
