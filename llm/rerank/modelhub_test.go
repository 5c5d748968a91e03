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

func newModelhubServer(t *testing.T, scores []float64, captured *crossEmbeddingRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/cross_embedding", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "s3cret", pass)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(crossEmbeddingResponse{Scores: scores})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestModelhubHost(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://hub:8000/v1", "http://hub:8000"},
		{"http://hub:8000/v1/", "http://hub:8000"},
		{"http://hub:8000", "http://hub:8000"},
		{"http://hub:8000/", "http://hub:8000"},
		{"http://v1.hub:8000/v1", "http://v1.hub:8000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, modelhubHost(tt.in), tt.in)
	}
}

func TestModelhubConfigFromCredentials(t *testing.T) {
	cfg, err := ModelhubConfigFromCredentials(Credentials{"api_key": "alice:s3cret", "endpoint_url": "http://hub/v1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, "http://hub/v1", cfg.EndpointURL)

	for _, creds := range []Credentials{
		{"api_key": "nocolon", "endpoint_url": "http://hub"},
		{"api_key": "a:b:c", "endpoint_url": "http://hub"},
		{"api_key": "a:b"},
	} {
		_, err := ModelhubConfigFromCredentials(creds)
		require.Error(t, err)
		assert.True(t, types.HasCode(err, types.ErrCredentialInvalid))
	}
}

func TestModelhubProvider_Rerank(t *testing.T) {
	var got crossEmbeddingRequest
	srv := newModelhubServer(t, []float64{0.1, 0.9, 0.5}, &got)

	p := NewModelhubProvider(ModelhubConfig{Username: "alice", Password: "s3cret", EndpointURL: srv.URL + "/v1"})
	resp, err := p.Rerank(context.Background(), &RerankRequest{
		Query:     "q",
		Documents: []Document{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		Model:     "bge",
		TopN:      2,
	})
	require.NoError(t, err)

	assert.Equal(t, "bge", got.Model)
	assert.Equal(t, [][2]string{{"q", "a"}, {"q", "b"}, {"q", "c"}}, got.Sentences)

	assert.Equal(t, "modelhub", resp.Provider)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Index)
	assert.Equal(t, "b", resp.Results[0].Document.Text)
	assert.Equal(t, 2, resp.Results[1].Index)
}

func TestModelhubProvider_ScoreCountMismatch(t *testing.T) {
	srv := newModelhubServer(t, []float64{0.1}, nil)
	p := NewModelhubProvider(ModelhubConfig{Username: "alice", Password: "s3cret", EndpointURL: srv.URL})

	_, err := p.Scores(context.Background(), "m", "q", []string{"a", "b"})
	assert.Error(t, err)
}

func TestModelhubProvider_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewModelhubProvider(ModelhubConfig{Username: "u", Password: "p", EndpointURL: srv.URL})
	_, err := p.Scores(context.Background(), "m", "q", []string{"a"})
	require.Error(t, err)

	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrUpstreamError, te.Code)
	assert.Equal(t, http.StatusServiceUnavailable, te.HTTPStatus)
	assert.True(t, te.Retryable)
	assert.Contains(t, te.Message, "overloaded")
}
