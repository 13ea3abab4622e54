package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeUpstream        Code = "UPSTREAM_ERROR"
	CodeNotReady        Code = "NOT_READY"
	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeNoData          Code = "NO_DATA"
	CodeNotFound        Code = "NOT_FOUND"
	CodeNotPublic       Code = "NOT_PUBLIC"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeBuildInProgress Code = "BUILD_IN_PROGRESS"
	CodeInternal        Code = "INTERNAL"
)

// Error is the structured {code, message} body returned to API callers. It
// satisfies huma.StatusError so operations can return it directly.
type Error struct {
	Status  int    `json:"-"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) GetStatus() int {
	return e.Status
}

func New(status int, code Code, format string, args ...any) *Error {
	return &Error{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Upstream(format string, args ...any) *Error {
	return New(http.StatusBadGateway, CodeUpstream, format, args...)
}

func NotReady(msg string) *Error {
	return New(http.StatusServiceUnavailable, CodeNotReady, "%s", msg)
}

func InvalidInput(format string, args ...any) *Error {
	return New(http.StatusBadRequest, CodeInvalidInput, format, args...)
}

func NoData(msg string) *Error {
	return New(http.StatusNotFound, CodeNoData, "%s", msg)
}

func NotFound(msg string) *Error {
	return New(http.StatusNotFound, CodeNotFound, "%s", msg)
}

func NotPublic(msg string) *Error {
	return New(http.StatusForbidden, CodeNotPublic, "%s", msg)
}

func Unauthorized(msg string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, "%s", msg)
}

func BuildInProgress(msg string) *Error {
	return New(http.StatusConflict, CodeBuildInProgress, "%s", msg)
}

// Internal hides err from the caller; the cause stays in logs.
func Internal(msg string) *Error {
	return New(http.StatusInternalServerError, CodeInternal, "%s", msg)
}

// FromStatus converts errors raised outside the handlers, such as request
// validation failures, into the same {code, message} shape. Validation
// failures become INVALID_INPUT with status 400.
func FromStatus(status int, msg string, errs ...error) *Error {
	details := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			details = append(details, err.Error())
		}
	}
	if len(details) > 0 {
		msg = msg + ": " + strings.Join(details, "; ")
	}

	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return New(http.StatusBadRequest, CodeInvalidInput, "%s", msg)
	case status == http.StatusUnauthorized:
		return New(status, CodeUnauthorized, "%s", msg)
	case status == http.StatusNotFound:
		return New(status, CodeNotFound, "%s", msg)
	case status >= http.StatusInternalServerError:
		return New(status, CodeInternal, "%s", msg)
	default:
		return New(status, CodeInvalidInput, "%s", msg)
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
