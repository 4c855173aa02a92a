package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by its recovery class, independent of the
// protocol or component that produced it.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfig
	KindConnection
	KindAuth
	KindRateLimit
	KindTimeout
	KindProtocol
	KindValidation
	KindClassification
	KindPrivacy
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindValidation:
		return "validation"
	case KindClassification:
		return "classification"
	case KindPrivacy:
		return "privacy"
	default:
		return "unknown"
	}
}

// Error is the framework error type. Op names the operation that failed
// (e.g. "rest.execute", "auth.oauth2").
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error without a cause.
func NewError(kind ErrorKind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// WrapError builds an Error wrapping a cause.
func WrapError(kind ErrorKind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Unclassified errors report KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether the failure class is worth retrying at the
// adapter level. Auth failures re-authenticate instead; rate limits wait.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConnection
}
