package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/llm/rerank"
	"github.com/BaSui01/toolbridge/types"
)

// Reranker 由 rerank.Model 实现
type Reranker interface {
	Invoke(ctx context.Context, model string, creds rerank.Credentials, query string, docs []string, scoreThreshold *float64, topN *int) (*rerank.ModelResult, error)
	ValidateCredentials(ctx context.Context, model string, creds rerank.Credentials) error
}

// =============================================================================
// 🔀 重排 Handler
// =============================================================================

// RerankHandler 暴露重排模型
type RerankHandler struct {
	model        Reranker
	defaultModel string
	defaultCreds rerank.Credentials
	logger       *zap.Logger
}

// NewRerankHandler 创建重排处理器。请求未携带的模型名与凭证取默认值
func NewRerankHandler(model Reranker, defaultModel string, defaultCreds rerank.Credentials, logger *zap.Logger) *RerankHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RerankHandler{
		model:        model,
		defaultModel: defaultModel,
		defaultCreds: defaultCreds,
		logger:       logger.With(zap.String("handler", "rerank")),
	}
}

// RerankRequest 重排请求
type RerankRequest struct {
	Model          string            `json:"model,omitempty"`
	Credentials    map[string]string `json:"credentials,omitempty"`
	Query          string            `json:"query"`
	Docs           []string          `json:"docs"`
	ScoreThreshold *float64          `json:"score_threshold,omitempty"`
	TopN           *int              `json:"top_n,omitempty"`
}

// RerankValidateRequest 凭证校验请求
type RerankValidateRequest struct {
	Model       string            `json:"model,omitempty"`
	Credentials map[string]string `json:"credentials"`
}

// HandleRerank POST /api/v1/rerank
func (h *RerankHandler) HandleRerank(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req RerankRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "query is required", h.logger)
		return
	}

	model, creds := h.resolve(req.Model, req.Credentials)
	result, err := h.model.Invoke(r.Context(), model, creds, req.Query, req.Docs, req.ScoreThreshold, req.TopN)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleValidate POST /api/v1/rerank/validate
func (h *RerankHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req RerankValidateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	model, creds := h.resolve(req.Model, req.Credentials)
	if err := h.model.ValidateCredentials(r.Context(), model, creds); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"valid": true, "model": model})
}

// resolve 请求凭证整体覆盖默认凭证，不做逐键合并
func (h *RerankHandler) resolve(model string, creds map[string]string) (string, rerank.Credentials) {
	if model == "" {
		model = h.defaultModel
	}
	if len(creds) == 0 {
		return model, h.defaultCreds
	}
	return model, rerank.Credentials(creds)
}
