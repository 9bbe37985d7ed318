package relay

import (
	"errors"
	"fmt"
)

// Class groups error kinds by who is at fault.
type Class string

const (
	ClassAuth        Class = "AuthError"
	ClassRouter      Class = "RouterError"
	ClassValidation  Class = "ValidationError"
	ClassUnavailable Class = "ServiceUnavailable"
)

// Kind is the machine-readable error kind returned to clients.
type Kind string

const (
	KindMalformedKey   Kind = "MalformedKey"
	KindInvalidKeyPair Kind = "InvalidKeyPair"
	KindInvalidToken   Kind = "InvalidToken"
	KindExpired        Kind = "Expired"

	KindInvalidRecipient Kind = "InvalidRecipient"
	KindPayloadTooLarge  Kind = "PayloadTooLarge"

	KindMissingField  Kind = "MissingField"
	KindLimitExceeded Kind = "LimitExceeded"
	KindInvalidField  Kind = "InvalidField"

	KindServiceUnavailable Kind = "ServiceUnavailable"
)

var kindClasses = map[Kind]Class{
	KindMalformedKey:       ClassAuth,
	KindInvalidKeyPair:     ClassAuth,
	KindInvalidToken:       ClassAuth,
	KindExpired:            ClassAuth,
	KindInvalidRecipient:   ClassRouter,
	KindPayloadTooLarge:    ClassRouter,
	KindMissingField:       ClassValidation,
	KindLimitExceeded:      ClassValidation,
	KindInvalidField:       ClassValidation,
	KindServiceUnavailable: ClassUnavailable,
}

// Error is the single error type returned by relay operations.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func unavailable(op string, err error) *Error {
	return newError(KindServiceUnavailable, op+" failed", err)
}

// Class returns the class the error's kind belongs to.
func (e *Error) Class() Class {
	if c, ok := kindClasses[e.Kind]; ok {
		return c
	}
	return ClassUnavailable
}

func (e *Error) Error() string {
	if e.Class() == Class(e.Kind) {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.Class(), e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the relay error kind of err. Errors that did not come
// from the relay are reported as ServiceUnavailable.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindServiceUnavailable
}

// IsKind reports whether err is a relay error of the given kind.
func IsKind(err error, kind Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == kind
}
