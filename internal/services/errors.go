package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmailExists is returned when an attempt is made to use an email that already exists.
var ErrEmailExists = errors.New("email already in use by another account")

// ErrInvalidCredentials is returned by Authenticate for unknown users and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrDeletionPending is returned when a user already has an open deletion request.
var ErrDeletionPending = errors.New("a deletion request for this user is already pending")

// ValidationError is an input that is well-formed but breaks a business rule.
type ValidationError struct {
	Message string
	Details map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Details[k]))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, ", "))
}

func invalid(msg string, details map[string]string) error {
	return &ValidationError{Message: msg, Details: details}
}
