package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure so transports can react to it
// without parsing messages.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindBusinessRule
	KindValidation
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBusinessRule:
		return "business_rule_violation"
	case KindValidation:
		return "validation"
	case KindGateway:
		return "gateway_failure"
	default:
		return "internal"
	}
}

// Machine readable error codes returned to clients
const (
	CodeScheduleNotFound       = "SCHEDULE_NOT_FOUND"
	CodeSeatNotFound           = "SEAT_NOT_FOUND"
	CodeTicketNotFound         = "TICKET_NOT_FOUND"
	CodePaymentNotFound        = "PAYMENT_NOT_FOUND"
	CodeSeatNotAvailable       = "SEAT_NOT_AVAILABLE"
	CodeInvalidSeatTransition  = "INVALID_SEAT_TRANSITION"
	CodeAlreadyConfirmed       = "ALREADY_CONFIRMED"
	CodeAlreadyCancelled       = "ALREADY_CANCELLED"
	CodePaymentInProgress      = "PAYMENT_IN_PROGRESS"
	CodeScheduleInactive       = "SCHEDULE_INACTIVE"
	CodeSeatScheduleMismatch   = "SEAT_SCHEDULE_MISMATCH"
	CodeInvalidPoint           = "INVALID_POINT"
	CodeCannotPayCancelled     = "CANNOT_PAY_CANCELLED"
	CodeAmountMismatch         = "AMOUNT_MISMATCH"
	CodeRefundNotAllowed       = "REFUND_NOT_ALLOWED"
	CodeRefundExceedsRemaining = "REFUND_EXCEEDS_REMAINING"
	CodeInvalidPaymentState    = "INVALID_PAYMENT_STATE"
	CodeInvalidPhone           = "INVALID_PHONE"
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeGatewayUnavailable     = "GATEWAY_UNAVAILABLE"
	CodeGatewayFailure         = "GATEWAY_FAILURE"
	CodeUnknownGateway         = "UNKNOWN_GATEWAY"
	CodeInternal               = "INTERNAL_ERROR"
)

var ErrUnauthorized = errors.New("request is not authorized")

// Error is the single failure type returned by core operations.
type Error struct {
	Kind    Kind
	Code    string
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

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func NotFound(code, format string, args ...any) *Error {
	return Newf(KindNotFound, code, format, args...)
}

func Conflict(code, format string, args ...any) *Error {
	return Newf(KindConflict, code, format, args...)
}

func BusinessRule(code, format string, args ...any) *Error {
	return Newf(KindBusinessRule, code, format, args...)
}

func Validation(code, format string, args ...any) *Error {
	return Newf(KindValidation, code, format, args...)
}

func Gateway(code, message string, err error) *Error {
	return Wrap(KindGateway, code, message, err)
}

// As extracts the domain error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of err, CodeInternal for foreign errors.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }
func IsBusinessRule(err error) bool { return KindOf(err) == KindBusinessRule }
func IsGateway(err error) bool      { return KindOf(err) == KindGateway }
