package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates the operation cannot start: a missing
	// credential or a streaming request without a delta consumer.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation indicates unusable user input such as an empty selection
	// or an unsupported task type.
	ErrValidation = errors.New("validation error")

	// ErrMalformedStream indicates too many consecutive undecodable stream events.
	ErrMalformedStream = errors.New("malformed event stream")
)

// RemoteError is a non-2xx answer from the remote API.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Configurationf wraps ErrConfiguration with a user-facing message.
func Configurationf(format string, args ...any) error {
	return &userError{kind: ErrConfiguration, msg: fmt.Sprintf(format, args...)}
}

// Validationf wraps ErrValidation with a user-facing message.
func Validationf(format string, args ...any) error {
	return &userError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// userError carries a message meant to be shown verbatim while still
// matching its sentinel through errors.Is.
type userError struct {
	kind error
	msg  string
}

func (e *userError) Error() string { return e.msg }

func (e *userError) Unwrap() error { return e.kind }
