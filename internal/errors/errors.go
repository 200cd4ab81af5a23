package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable failure reason shared by the external client,
// the registration service and the retry policy.
type Code string

const (
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeServerError        Code = "SERVER_ERROR"
	CodeNetworkError       Code = "NETWORK_ERROR"
	CodeTimeout            Code = "TIMEOUT_ERROR"
	CodeEventNotAvailable  Code = "EVENT_NOT_AVAILABLE"
	CodeItemNotFound       Code = "ITEM_NOT_FOUND"
	CodeItemNotAvailable   Code = "ITEM_NOT_AVAILABLE"
	CodeAlreadyRegistered  Code = "ALREADY_REGISTERED"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeExternalService    Code = "EXTERNAL_SERVICE_ERROR"
	CodeRetryAttempt       Code = "RETRY_ATTEMPT_ERROR"
	CodeCreateRegistration Code = "CREATE_REGISTRATION_ERROR"
)

// ServiceError carries a human message, the taxonomy code and, for HTTP
// failures, the upstream status code.
type ServiceError struct {
	Code    Code
	Message string
	Status  int
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a classified error without an HTTP status.
func New(code Code, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(code Code, format string, args ...any) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FromStatus classifies an HTTP response status from the external service.
func FromStatus(status int, message string) *ServiceError {
	var code Code
	switch {
	case status == http.StatusBadRequest:
		code = CodeBadRequest
	case status == http.StatusUnauthorized:
		code = CodeUnauthorized
	case status == http.StatusForbidden:
		code = CodeForbidden
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status == http.StatusTooManyRequests:
		code = CodeRateLimited
	case status >= 500:
		code = CodeServerError
	default:
		code = CodeExternalService
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &ServiceError{Code: code, Message: message, Status: status}
}

// AsService unwraps err into a *ServiceError if it carries one.
func AsService(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf returns the taxonomy code of err, or "" for unclassified errors.
func CodeOf(err error) Code {
	if se, ok := AsService(err); ok {
		return se.Code
	}
	return ""
}

// IsClientError reports whether err is a 4xx-class failure from the external
// service. Client errors are never retried by the external client.
func IsClientError(err error) bool {
	se, ok := AsService(err)
	return ok && se.Status >= 400 && se.Status < 500
}

// nonRetryable lists codes for which another attempt can never succeed.
var nonRetryable = map[Code]struct{}{
	CodeAlreadyRegistered: {},
	CodeEventNotAvailable: {},
	CodeItemNotFound:      {},
	CodeValidation:        {},
	CodeUnauthorized:      {},
	CodeForbidden:         {},
}

// RetryableCode reports whether a failure with the given code is worth
// another attempt. Unknown or absent codes default to retryable: wrongly
// giving up on a registering user is the worse failure mode.
func RetryableCode(code Code) bool {
	_, terminal := nonRetryable[code]
	return !terminal
}

// Retryable reports whether err should be retried.
func Retryable(err error) bool {
	return RetryableCode(CodeOf(err))
}

// HTTPStatus maps a taxonomy code to the status the API surface responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeItemNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeAlreadyRegistered, CodeEventNotAvailable, CodeItemNotAvailable:
		return http.StatusConflict
	case CodeNetworkError, CodeTimeout, CodeServerError, CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
