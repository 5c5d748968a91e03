// 软件包重排提供了统一的重排提供者接口和执行.
package rerank

import (
	"context"
	"time"
)

// 重新排序请求代表着重新排序文件的请求 。
type RerankRequest struct {
	Query           string     `json:"query"`
	Documents       []Document `json:"documents"`
	Model           string     `json:"model,omitempty"`
	TopN            int        `json:"top_n,omitempty"`            // 0 表示返回全部
	ReturnDocuments bool       `json:"return_documents,omitempty"` // Include document text in response
}

// 文档代表要重新排序的文件。
type Document struct {
	Text string `json:"text"`
	ID   string `json:"id,omitempty"`
}

// RerankResponse代表了由rerank请求产生的响应.
type RerankResponse struct {
	ID        string         `json:"id,omitempty"`
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Results   []RerankResult `json:"results"`
	Usage     RerankUsage    `json:"usage"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// RerankResult代表单一被重新排序的文件.
type RerankResult struct {
	Index          int      `json:"index"` // Original index in input
	RelevanceScore float64  `json:"relevance_score"`
	Document       Document `json:"document,omitempty"`
}

// RerankUsage代表使用统计.
type RerankUsage struct {
	SearchUnits int `json:"search_units,omitempty"`
	TotalTokens int `json:"total_tokens,omitempty"`
}

// 提供方定义了统一的重排提供者接口.
type Provider interface {
	// 根据查询的关联性重新排序文档 。
	Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error)

	// 名称返回提供者名称 。
	Name() string

	// 最大文档返回所支持的最大文档数量 。
	MaxDocuments() int
}

// Credentials 是宿主平台传入的模型凭证，例如 api_key 与 endpoint_url。
type Credentials map[string]string

// 凭证键
const (
	CredentialAPIKey      = "api_key"
	CredentialEndpointURL = "endpoint_url"
)

// RerankDocument 是 Model.Invoke 返回的单条结果。
type RerankDocument struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// ModelResult 是一次重排的最终结果，Docs 按分数降序排列。
type ModelResult struct {
	Model string           `json:"model"`
	Docs  []RerankDocument `json:"docs"`
}
