package apitool

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/toolbridge/types"
)

func TestNormalizeResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"empty body", http.StatusOK, "", EmptyResponseText},
		{"json body", http.StatusOK, `{"a":1}`, `{"a": 1}`},
		{"json keeps unicode", http.StatusCreated, `{"msg":"完成"}`, `{"msg": "完成"}`},
		{"plain text verbatim", http.StatusOK, "hello\nworld", "hello\nworld"},
		{"redirect status is not an error", http.StatusNotModified, "cached", "cached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeResponse(&HTTPResponse{StatusCode: tt.status, Body: []byte(tt.body)})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeResponse_ErrorStatus(t *testing.T) {
	t.Parallel()

	_, err := NormalizeResponse(&HTTPResponse{StatusCode: http.StatusNotFound, Body: []byte("not found")})
	require.Error(t, err)
	assert.True(t, IsToolInvokeError(err))
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "not found")

	typed, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, typed.HTTPStatus)
	assert.False(t, typed.Retryable)

	_, err = NormalizeResponse(&HTTPResponse{StatusCode: http.StatusServiceUnavailable})
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err))
}
