package gateway

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownGateway     = errors.New("unknown payment gateway")
	ErrUnsupportedRequest = errors.New("request variant not supported by gateway")
)

// ErrorKind classifies a gateway failure.
type ErrorKind int

const (
	// KindClientError means the gateway rejected the request: bad data or a
	// declined card. Never retried.
	KindClientError ErrorKind = iota + 1
	// KindConnection covers transport failures and elapsed timeouts.
	KindConnection
	// KindUnexpectedStatus is an HTTP status outside the expected set.
	KindUnexpectedStatus
	// KindParse is a response body that could not be understood.
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindClientError:
		return "client_error"
	case KindConnection:
		return "connection_error"
	case KindUnexpectedStatus:
		return "unexpected_status"
	case KindParse:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Error is the only error type that leaves a gateway client.
type Error struct {
	Gateway    string
	Operation  string
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Gateway, e.Operation, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += " code=" + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Kind == kind
}

// ClientError builds a rejection error carrying the gateway's own code.
func ClientError(gateway, operation, code, message string) *Error {
	return &Error{Gateway: gateway, Operation: operation, Kind: KindClientError, Code: code, Message: message}
}

// ParseError wraps a decoding failure.
func ParseError(gateway, operation string, err error) *Error {
	return &Error{Gateway: gateway, Operation: operation, Kind: KindParse, Err: err}
}
