package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type Code int

const (
	CodeSuccess          Code = 0
	CodeInternal         Code = 1
	CodeUsage            Code = 2
	CodeAuth             Code = 10
	CodeRateLimited      Code = 11
	CodeUnavailable      Code = 12
	CodeUnsupported      Code = 13
	CodeQuoteUnavailable Code = 14
	CodeNotFound         Code = 15
	CodeAlreadyClaimed   Code = 16
	CodeConflict         Code = 17
	CodeSigner           Code = 20
	CodeWrongChain       Code = 21
	CodeActionPlan       Code = 22
	CodeTimeout          Code = 23
	CodeBlocked          Code = 24
)

type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	if e, ok := As(err); ok {
		return e.Code == code
	}
	return false
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if e, ok := As(err); ok {
		return int(e.Code)
	}
	return int(CodeInternal)
}

// TypeName is the stable machine-readable name of a code.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeQuoteUnavailable:
		return "quote_unavailable"
	case CodeNotFound:
		return "not_found"
	case CodeAlreadyClaimed:
		return "already_claimed"
	case CodeConflict:
		return "conflict"
	case CodeSigner:
		return "signer_error"
	case CodeWrongChain:
		return "wrong_chain"
	case CodeActionPlan:
		return "invalid_plan"
	case CodeTimeout:
		return "timeout"
	case CodeBlocked:
		return "command_blocked"
	default:
		return "internal_error"
	}
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeUsage, CodeUnsupported, CodeActionPlan:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeBlocked:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyClaimed, CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeQuoteUnavailable, CodeUnavailable, CodeWrongChain:
		return http.StatusBadGateway
	case CodeTimeout:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
