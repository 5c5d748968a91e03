package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/toolbridge/llm/rerank"
	"github.com/BaSui01/toolbridge/types"
)

type fakeReranker struct {
	model     string
	creds     rerank.Credentials
	threshold *float64
	topN      *int
	err       error
}

func (f *fakeReranker) Invoke(_ context.Context, model string, creds rerank.Credentials, _ string, docs []string, threshold *float64, topN *int) (*rerank.ModelResult, error) {
	f.model, f.creds, f.threshold, f.topN = model, creds, threshold, topN
	if f.err != nil {
		return nil, f.err
	}
	res := &rerank.ModelResult{Model: model, Docs: []rerank.RerankDocument{}}
	for i := len(docs) - 1; i >= 0; i-- {
		res.Docs = append(res.Docs, rerank.RerankDocument{Index: i, Text: docs[i], Score: float64(i) / 10})
	}
	return res, nil
}

func (f *fakeReranker) ValidateCredentials(_ context.Context, model string, creds rerank.Credentials) error {
	f.model, f.creds = model, creds
	return f.err
}

func newRerankHandler(f *fakeReranker) *RerankHandler {
	return NewRerankHandler(f, "bge-reranker", rerank.Credentials{"api_key": "default:pw"}, nil)
}

func TestRerankHandler_HandleRerank(t *testing.T) {
	f := &fakeReranker{}
	h := newRerankHandler(f)

	w := httptest.NewRecorder()
	h.HandleRerank(w, postJSON("/api/v1/rerank", `{
		"query": "capital",
		"docs": ["a", "b", "c"],
		"score_threshold": 0.5,
		"top_n": 2
	}`))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data rerank.ModelResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "bge-reranker", resp.Data.Model)
	require.Len(t, resp.Data.Docs, 3)
	assert.Equal(t, "c", resp.Data.Docs[0].Text)

	assert.Equal(t, "default:pw", f.creds["api_key"])
	require.NotNil(t, f.threshold)
	assert.InDelta(t, 0.5, *f.threshold, 1e-9)
	require.NotNil(t, f.topN)
	assert.Equal(t, 2, *f.topN)
}

func TestRerankHandler_RequestOverridesDefaults(t *testing.T) {
	f := &fakeReranker{}
	h := newRerankHandler(f)

	w := httptest.NewRecorder()
	h.HandleRerank(w, postJSON("/api/v1/rerank", `{
		"model": "custom",
		"credentials": {"api_key": "u:p", "endpoint_url": "https://hub.example/v1"},
		"query": "q",
		"docs": []
	}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "custom", f.model)
	assert.Equal(t, rerank.Credentials{"api_key": "u:p", "endpoint_url": "https://hub.example/v1"}, f.creds)
	assert.Nil(t, f.threshold)
	assert.Nil(t, f.topN)
}

func TestRerankHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		body       string
		wantStatus int
	}{
		{"missing query", nil, `{"docs":["a"]}`, http.StatusBadRequest},
		{"negative top_n", types.NewError(types.ErrInvalidRequest, "top_n must not be negative"), `{"query":"q","docs":["a"],"top_n":-1}`, http.StatusBadRequest},
		{"upstream", types.NewError(types.ErrUpstreamError, "modelhub returned 500"), `{"query":"q","docs":["a"]}`, http.StatusBadGateway},
		{"bad credentials", types.NewError(types.ErrCredentialInvalid, "api_key must be user:password"), `{"query":"q","docs":["a"]}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRerankHandler(&fakeReranker{err: tt.err})
			w := httptest.NewRecorder()
			h.HandleRerank(w, postJSON("/api/v1/rerank", tt.body))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRerankHandler_HandleValidate(t *testing.T) {
	f := &fakeReranker{}
	h := newRerankHandler(f)

	w := httptest.NewRecorder()
	h.HandleValidate(w, postJSON("/api/v1/rerank/validate", `{"credentials":{"api_key":"u:p"}}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bge-reranker", f.model)
	assert.Equal(t, "u:p", f.creds["api_key"])

	f.err = types.NewError(types.ErrCredentialsValidateFailed, "401")
	w = httptest.NewRecorder()
	h.HandleValidate(w, postJSON("/api/v1/rerank/validate", `{"model":"m","credentials":{}}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "default:pw", f.creds["api_key"])

	w = httptest.NewRecorder()
	h.HandleValidate(w, httptest.NewRequest(http.MethodGet, "/api/v1/rerank/validate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
