package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/toolbridge/types"
)

func TestCohereProvider_Rerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/rerank", r.URL.Path)
		assert.Equal(t, "Bearer ck", r.Header.Get("Authorization"))

		var req cohereRerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Documents)
		assert.Equal(t, "rerank-v3.5", req.Model)

		_, _ = w.Write([]byte(`{"id":"r1","results":[{"index":0,"relevance_score":0.2},{"index":1,"relevance_score":0.7}],"meta":{"billed_units":{"search_units":1}}}`))
	}))
	defer srv.Close()

	p := NewCohereProvider(CohereConfig{APIKey: "ck", BaseURL: srv.URL})
	resp, err := p.Rerank(context.Background(), &RerankRequest{
		Query:     "q",
		Documents: []Document{{Text: "a", ID: "doc-a"}, {Text: "b", ID: "doc-b"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "cohere", resp.Provider)
	assert.Equal(t, 1, resp.Usage.SearchUnits)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "doc-b", resp.Results[0].Document.ID)
	assert.Equal(t, 0.7, resp.Results[0].RelevanceScore)
}

func TestCohereProvider_BadIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":5,"relevance_score":0.2}]}`))
	}))
	defer srv.Close()

	p := NewCohereProvider(CohereConfig{APIKey: "ck", BaseURL: srv.URL})
	_, err := p.Rerank(context.Background(), &RerankRequest{Query: "q", Documents: []Document{{Text: "a"}}})
	assert.Error(t, err)
}

func TestCohereProvider_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid api token"}`))
	}))
	defer srv.Close()

	p := NewCohereProvider(CohereConfig{APIKey: "bad", BaseURL: srv.URL})
	_, err := p.Rerank(context.Background(), &RerankRequest{Query: "q", Documents: []Document{{Text: "a"}}})
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrUpstreamError))
	assert.False(t, types.IsRetryable(err))
}

func TestCohereConfigFromCredentials(t *testing.T) {
	cfg, err := CohereConfigFromCredentials(Credentials{"api_key": "k", "endpoint_url": "https://proxy"})
	require.NoError(t, err)
	assert.Equal(t, "https://proxy", cfg.BaseURL)
	assert.Equal(t, "rerank-v3.5", cfg.Model)

	_, err = CohereConfigFromCredentials(Credentials{})
	assert.True(t, types.HasCode(err, types.ErrCredentialInvalid))
}
