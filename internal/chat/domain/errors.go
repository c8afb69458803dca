package domain

import (
	"errors"
	"fmt"
)

// 錯誤分類
var (
	ErrAccessDenied  = errors.New("access denied")
	ErrNotFound      = errors.New("not found")
	ErrInvalidState  = errors.New("invalid state")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")

	ErrEmptyContent = fmt.Errorf("%w: message content cannot be empty", ErrValidation)
)

// ErrorKind stable error kind for response bodies
type ErrorKind string

const (
	KindAccessDenied  ErrorKind = "access_denied"
	KindNotFound      ErrorKind = "not_found"
	KindInvalidState  ErrorKind = "invalid_state"
	KindAlreadyExists ErrorKind = "already_exists"
	KindValidation    ErrorKind = "validation_error"
	KindInternal      ErrorKind = "internal"
)

// KindOf classify err
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrValidation):
		return KindValidation
	}
	return KindInternal
}
