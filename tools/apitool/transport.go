package apitool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPResponse is the part of an upstream response the normalizer needs.
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs one outbound call.
type Transport interface {
	Do(ctx context.Context, req *AssembledRequest) (*HTTPResponse, error)
}

// maxResponseBytes caps how much of an upstream body is read. Larger bodies
// fail the call rather than arrive truncated.
const maxResponseBytes = 32 << 20

var supportedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// normalizeMethod upper-cases m and rejects verbs outside the supported set.
func normalizeMethod(m string) (string, error) {
	upper := strings.ToUpper(strings.TrimSpace(m))
	if !supportedMethods[upper] {
		return "", newUnsupportedMethodError(strings.ToLower(m))
	}
	return upper, nil
}

// sendsBody reports whether a request with this method carries a payload.
func sendsBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// HTTPTransport sends assembled requests with a shared http.Client. The
// client follows redirects.
type HTTPTransport struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPTransport wraps client; nil uses http.DefaultClient.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, maxBytes: maxResponseBytes}
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req *AssembledRequest) (*HTTPResponse, error) {
	method, err := normalizeMethod(req.Method)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if sendsBody(method) {
		switch {
		case req.Body != nil:
			body = bytes.NewReader(req.Body)
		case len(req.Payload) > 0:
			body = strings.NewReader(encodeForm(req.Payload))
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.FullURL(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for name, values := range req.Header {
		httpReq.Header[name] = append([]string(nil), values...)
	}
	for _, c := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := t.maxBytes
	if limit <= 0 {
		limit = maxResponseBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, newResponseTooLargeError(resp.StatusCode, limit)
	}
	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
