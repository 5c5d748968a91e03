package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const providerModelhub = "modelhub"

// ModelhubProvider scores query/document pairs with a modelhub
// cross-embedding endpoint.
type ModelhubProvider struct {
	cfg    ModelhubConfig
	host   string
	client *http.Client
}

// NewModelhubProvider creates a modelhub reranker.
func NewModelhubProvider(cfg ModelhubConfig) *ModelhubProvider {
	return &ModelhubProvider{
		cfg:    cfg,
		host:   modelhubHost(cfg.EndpointURL),
		client: httpClientFor(cfg.HTTPClient, cfg.Timeout),
	}
}

// ModelhubConfigFromCredentials builds a config from host credentials.
// api_key must have the form user:password.
func ModelhubConfigFromCredentials(creds Credentials) (ModelhubConfig, error) {
	cfg := DefaultModelhubConfig()

	parts := strings.Split(creds[CredentialAPIKey], ":")
	if len(parts) != 2 {
		return cfg, newCredentialError(providerModelhub, "api_key must be in the form user:password")
	}
	endpoint := strings.TrimSpace(creds[CredentialEndpointURL])
	if endpoint == "" {
		return cfg, newCredentialError(providerModelhub, "Missing endpoint_url")
	}

	cfg.Username = parts[0]
	cfg.Password = parts[1]
	cfg.EndpointURL = endpoint
	return cfg, nil
}

// modelhubHost strips a trailing v1 segment; the client appends /v1 itself.
func modelhubHost(endpoint string) string {
	host := strings.TrimRight(endpoint, "/")
	host = strings.TrimSuffix(host, "/v1")
	return strings.TrimRight(host, "/")
}

func (p *ModelhubProvider) Name() string      { return providerModelhub }
func (p *ModelhubProvider) MaxDocuments() int { return 1000 }

type crossEmbeddingRequest struct {
	Sentences [][2]string `json:"sentences"`
	Model     string      `json:"model"`
}

type crossEmbeddingResponse struct {
	Scores []float64 `json:"scores"`
}

// Scores returns one relevance score per document, in input order.
func (p *ModelhubProvider) Scores(ctx context.Context, model, query string, docs []string) ([]float64, error) {
	pairs := make([][2]string, len(docs))
	for i, d := range docs {
		pairs[i] = [2]string{query, d}
	}

	payload, err := json.Marshal(crossEmbeddingRequest{Sentences: pairs, Model: model})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/v1/cross_embedding", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, newRequestError(providerModelhub, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newUpstreamError(providerModelhub, resp.StatusCode, body)
	}

	var out crossEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode modelhub response: %w", err)
	}
	if len(out.Scores) != len(docs) {
		return nil, fmt.Errorf("modelhub returned %d scores for %d documents", len(out.Scores), len(docs))
	}
	return out.Scores, nil
}

// Rerank scores every document and returns them ranked by descending score.
func (p *ModelhubProvider) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	texts := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		texts[i] = d.Text
	}

	scores, err := p.Scores(ctx, model, req.Query, texts)
	if err != nil {
		return nil, err
	}

	results := make([]RerankResult, len(scores))
	for i, s := range scores {
		results[i] = RerankResult{Index: i, RelevanceScore: s, Document: req.Documents[i]}
	}
	sortResults(results)
	if req.TopN > 0 && req.TopN < len(results) {
		results = results[:req.TopN]
	}

	return &RerankResponse{
		Provider:  p.Name(),
		Model:     model,
		Results:   results,
		CreatedAt: time.Now(),
	}, nil
}
