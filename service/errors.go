package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies service failures for the session and HTTP boundaries
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindNotFound      ErrorKind = "not_found"
	KindAuthorization ErrorKind = "authorization"
	KindStore         ErrorKind = "store"
)

// ErrSoldOut is returned by the prize repository when a conditional decrement matches no row
var ErrSoldOut = errors.New("prize has no remaining quantity")

const genericFailureMessage = "Something went wrong. Please try again."

// Error carries a user-facing message alongside the internal cause
type Error struct {
	Kind        ErrorKind
	UserMessage string
	Err         error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports a precondition the caller can correct
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, UserMessage: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports a missing board, prize or overlay state
func NewNotFoundError(what string) *Error {
	return &Error{Kind: KindNotFound, UserMessage: what + " not found"}
}

// NewAuthorizationError reports a missing or mismatched credential
func NewAuthorizationError(message string) *Error {
	return &Error{Kind: KindAuthorization, UserMessage: message}
}

// NewStoreError wraps a record store failure behind a generic message
func NewStoreError(err error, op string) *Error {
	return &Error{Kind: KindStore, UserMessage: genericFailureMessage, Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf returns the kind of err, treating unclassified errors as store failures
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindStore
}

// UserMessage returns the message safe to show an operator
func UserMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.UserMessage
	}
	return genericFailureMessage
}

func IsValidation(err error) bool    { return isKind(err, KindValidation) }
func IsNotFound(err error) bool      { return isKind(err, KindNotFound) }
func IsAuthorization(err error) bool { return isKind(err, KindAuthorization) }
func IsStore(err error) bool         { return isKind(err, KindStore) }

func isKind(err error, kind ErrorKind) bool {
	var svcErr *Error
	return errors.As(err, &svcErr) && svcErr.Kind == kind
}
