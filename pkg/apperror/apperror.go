package apperror

import (
	"errors"
	"fmt"
)

// Kind is the stable error category returned to callers.
type Kind string

const (
	KindNotFound                  Kind = "not_found"
	KindUnauthorized              Kind = "unauthorized"
	KindValidation                Kind = "validation"
	KindCapacityExceeded          Kind = "capacity_exceeded"
	KindInvalidStateTransition    Kind = "invalid_state_transition"
	KindInvalidDiscount           Kind = "invalid_discount"
	KindInvalidRefund             Kind = "invalid_refund"
	KindPaymentVerificationFailed Kind = "payment_verification_failed"
	KindAlreadyPaid               Kind = "already_paid"
	KindExternalService           Kind = "external_service_error"
	KindInternal                  Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, apperror.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrCapacityExceeded       = &Error{Kind: KindCapacityExceeded}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrInvalidDiscount        = &Error{Kind: KindInvalidDiscount}
	ErrInvalidRefund          = &Error{Kind: KindInvalidRefund}
	ErrVerificationFailed     = &Error{Kind: KindPaymentVerificationFailed}
	ErrExternalService        = &Error{Kind: KindExternalService}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func CapacityExceeded(format string, args ...any) *Error {
	return New(KindCapacityExceeded, format, args...)
}

// InvalidTransition names the status the entity was in when the event was rejected.
func InvalidTransition(entity, event, status string) *Error {
	return New(KindInvalidStateTransition, "cannot %s %s in status %s", event, entity, status)
}

func External(err error, format string, args ...any) *Error {
	return Wrap(KindExternalService, err, format, args...)
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message returns the human-readable message of the first *Error in the chain.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
