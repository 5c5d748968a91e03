package apitool

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/BaSui01/toolbridge/types"
)

// ErrMaxAnyOfDepth is returned when nested anyOf unions exceed the
// resolution depth limit.
var ErrMaxAnyOfDepth = errors.New("max anyOf recursion depth reached")

// newCredentialError reports missing or malformed auth material.
func newCredentialError(format string, args ...any) *types.Error {
	return types.NewError(types.ErrCredentialInvalid, fmt.Sprintf(format, args...)).
		WithHTTPStatus(http.StatusBadRequest)
}

// newParameterError reports a required parameter absent from both input and
// schema defaults.
func newParameterError(format string, args ...any) *types.Error {
	return types.NewError(types.ErrParameterValidation, fmt.Sprintf(format, args...)).
		WithHTTPStatus(http.StatusBadRequest)
}

func newUnsupportedMethodError(method string) *types.Error {
	return types.NewError(types.ErrUnsupportedMethod, fmt.Sprintf("Invalid http method %s", method)).
		WithHTTPStatus(http.StatusBadRequest)
}

// newToolInvokeError reports a non-success upstream status. 429 and 5xx are
// marked retryable so callers owning a retry policy can act on it.
func newToolInvokeError(status int, body string) *types.Error {
	return types.NewError(types.ErrToolInvoke,
		fmt.Sprintf("Request failed with status code %d and %s", status, body)).
		WithHTTPStatus(status).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}

// newResponseTooLargeError reports an upstream body over the read cap.
func newResponseTooLargeError(status int, limit int64) *types.Error {
	return types.NewError(types.ErrToolInvoke,
		fmt.Sprintf("Response with status code %d exceeds %d bytes", status, limit)).
		WithHTTPStatus(http.StatusBadGateway)
}

// newTransportError wraps a failure that happened before any response arrived.
func newTransportError(err error) *types.Error {
	return types.NewError(types.ErrToolInvoke, "request failed").
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true)
}

func newInternalError(err error) *types.Error {
	return types.NewError(types.ErrInternalError, "tool invocation failed").
		WithCause(err).
		WithHTTPStatus(http.StatusInternalServerError)
}

func newValidateFailedError(err error) *types.Error {
	return types.NewError(types.ErrCredentialsValidateFailed, "credentials validation failed").
		WithCause(err).
		WithHTTPStatus(http.StatusBadRequest)
}

// IsCredentialError reports whether err stems from invalid credentials.
func IsCredentialError(err error) bool {
	return types.HasCode(err, types.ErrCredentialInvalid)
}

// IsParameterValidationError reports whether err stems from a missing
// required parameter.
func IsParameterValidationError(err error) bool {
	return types.HasCode(err, types.ErrParameterValidation)
}

// IsUnsupportedMethodError reports whether err stems from an invalid HTTP verb.
func IsUnsupportedMethodError(err error) bool {
	return types.HasCode(err, types.ErrUnsupportedMethod)
}

// IsToolInvokeError reports whether err stems from the upstream call.
func IsToolInvokeError(err error) bool {
	return types.HasCode(err, types.ErrToolInvoke)
}

// IsValidateFailedError reports whether err was produced by ValidateCredentials.
func IsValidateFailedError(err error) bool {
	return types.HasCode(err, types.ErrCredentialsValidateFailed)
}
