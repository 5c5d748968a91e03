package rerank

import (
	"fmt"
	"net/http"

	"github.com/BaSui01/toolbridge/types"
)

func newUpstreamError(provider string, status int, body []byte) *types.Error {
	return types.NewError(types.ErrUpstreamError,
		fmt.Sprintf("%s rerank error: status=%d body=%s", provider, status, truncateBody(body))).
		WithHTTPStatus(status).
		WithProvider(provider).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
}

func newRequestError(provider string, err error) *types.Error {
	return types.NewError(types.ErrUpstreamError, provider+" rerank request failed").
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithProvider(provider).
		WithRetryable(true)
}

func newCredentialError(provider, message string) *types.Error {
	return types.NewError(types.ErrCredentialInvalid, message).
		WithHTTPStatus(http.StatusBadRequest).
		WithProvider(provider)
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
