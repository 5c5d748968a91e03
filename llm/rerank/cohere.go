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

const providerCohere = "cohere"

// Cohere Provider执行重排 使用 Cohere API.
type CohereProvider struct {
	cfg    CohereConfig
	client *http.Client
}

// NewCohereProvider 创建新的 Cohere reranker 提供者.
func NewCohereProvider(cfg CohereConfig) *CohereProvider {
	defaults := DefaultCohereConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}

	return &CohereProvider{
		cfg:    cfg,
		client: httpClientFor(cfg.HTTPClient, cfg.Timeout),
	}
}

// CohereConfigFromCredentials 从宿主凭证构造配置，endpoint_url 可选。
func CohereConfigFromCredentials(creds Credentials) (CohereConfig, error) {
	cfg := DefaultCohereConfig()
	cfg.APIKey = strings.TrimSpace(creds[CredentialAPIKey])
	if cfg.APIKey == "" {
		return cfg, newCredentialError(providerCohere, "Missing api_key")
	}
	if endpoint := strings.TrimSpace(creds[CredentialEndpointURL]); endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return cfg, nil
}

func (p *CohereProvider) Name() string      { return providerCohere }
func (p *CohereProvider) MaxDocuments() int { return 1000 }

type cohereRerankRequest struct {
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	Model           string   `json:"model"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents,omitempty"`
}

type cohereRerankResponse struct {
	ID      string `json:"id"`
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
	Meta struct {
		BilledUnits struct {
			SearchUnits int `json:"search_units"`
		} `json:"billed_units"`
	} `json:"meta"`
}

// 使用 Cohere 对文档进行重新排序 。
func (p *CohereProvider) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	docs := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = d.Text
	}

	payload, err := json.Marshal(cohereRerankRequest{
		Query:     req.Query,
		Documents: docs,
		Model:     model,
		TopN:      req.TopN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+"/v2/rerank",
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, newRequestError(providerCohere, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newUpstreamError(providerCohere, resp.StatusCode, body)
	}

	var cResp cohereRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, fmt.Errorf("failed to decode cohere response: %w", err)
	}

	results := make([]RerankResult, 0, len(cResp.Results))
	for _, r := range cResp.Results {
		if r.Index < 0 || r.Index >= len(req.Documents) {
			return nil, fmt.Errorf("cohere returned out-of-range index %d", r.Index)
		}
		results = append(results, RerankResult{
			Index:          r.Index,
			RelevanceScore: r.RelevanceScore,
			Document:       req.Documents[r.Index],
		})
	}
	sortResults(results)

	return &RerankResponse{
		ID:       cResp.ID,
		Provider: p.Name(),
		Model:    model,
		Results:  results,
		Usage: RerankUsage{
			SearchUnits: cResp.Meta.BilledUnits.SearchUnits,
		},
		CreatedAt: time.Now(),
	}, nil
}
