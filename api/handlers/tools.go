package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/tools/registry"
	"github.com/BaSui01/toolbridge/types"
)

// maxBatchCalls 单次批量调用的上限
const maxBatchCalls = 32

// =============================================================================
// 🔧 工具调用 Handler
// =============================================================================

// ToolHandler 工具列表、调用与凭证校验
type ToolHandler struct {
	registry registry.ToolRegistry
	executor registry.ToolExecutor
	logger   *zap.Logger
}

// NewToolHandler 创建工具处理器
func NewToolHandler(reg registry.ToolRegistry, executor registry.ToolExecutor, logger *zap.Logger) *ToolHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolHandler{
		registry: reg,
		executor: executor,
		logger:   logger.With(zap.String("handler", "tools")),
	}
}

// ToolInvokeRequest 单次工具调用
type ToolInvokeRequest struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	Credentials map[string]any  `json:"credentials,omitempty"`
}

// ToolBatchRequest 批量工具调用，凭证对所有调用生效
type ToolBatchRequest struct {
	Calls       []types.ToolCall `json:"calls"`
	Credentials map[string]any   `json:"credentials,omitempty"`
}

// ToolValidateRequest 凭证校验请求
type ToolValidateRequest struct {
	Name        string          `json:"name"`
	Credentials map[string]any  `json:"credentials"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
	FormatOnly  bool            `json:"format_only,omitempty"`
}

// ToolInvokeResponse 工具调用结果
type ToolInvokeResponse struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result,omitempty"`
	Text       string          `json:"text"`
	DurationMS int64           `json:"duration_ms"`
}

func toInvokeResponse(res types.ToolResult) ToolInvokeResponse {
	return ToolInvokeResponse{
		ID:         res.ToolCallID,
		Name:       res.Name,
		Result:     res.Result,
		Text:       res.Text(),
		DurationMS: res.Duration.Milliseconds(),
	}
}

// HandleList GET /api/v1/tools
func (h *ToolHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	tools := h.registry.List()
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		filtered := tools[:0:0]
		for _, t := range tools {
			if strings.HasPrefix(t.Name, prefix) {
				filtered = append(filtered, t)
			}
		}
		tools = filtered
	}
	WriteSuccess(w, map[string]any{"tools": tools, "count": len(tools)})
}

// HandleInvoke POST /api/v1/tools/invoke
func (h *ToolHandler) HandleInvoke(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req ToolInvokeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "name is required", h.logger)
		return
	}

	ctx := r.Context()
	if req.Credentials != nil {
		ctx = registry.WithCredentials(ctx, req.Credentials)
	}
	res := h.executor.ExecuteOne(ctx, types.ToolCall{ID: req.ID, Name: req.Name, Arguments: req.Arguments})

	h.logger.Info("tool invoked",
		zap.String("tool", req.Name),
		zap.String("call_id", res.ToolCallID),
		zap.Bool("error", res.IsError()),
		zap.Duration("duration", res.Duration),
	)

	if res.IsError() {
		h.writeToolFailure(w, res)
		return
	}
	WriteSuccess(w, toInvokeResponse(res))
}

// HandleBatch POST /api/v1/tools/batch，并发执行，结果顺序与请求一致
func (h *ToolHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req ToolBatchRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	switch {
	case len(req.Calls) == 0:
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "calls is required", h.logger)
		return
	case len(req.Calls) > maxBatchCalls:
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			fmt.Sprintf("at most %d calls per batch", maxBatchCalls), h.logger)
		return
	}

	ctx := r.Context()
	if req.Credentials != nil {
		ctx = registry.WithCredentials(ctx, req.Credentials)
	}

	start := time.Now()
	results := h.executor.Execute(ctx, req.Calls)
	failed := 0
	for _, res := range results {
		if res.IsError() {
			failed++
		}
	}
	h.logger.Info("tool batch executed",
		zap.Int("calls", len(results)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)
	WriteSuccess(w, map[string]any{"results": results, "failed": failed})
}

// HandleValidate POST /api/v1/tools/validate
func (h *ToolHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost, h.logger) {
		return
	}

	var req ToolValidateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "name is required", h.logger)
		return
	}

	_, meta, err := h.registry.Get(req.Name)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	if meta.Validate == nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			fmt.Sprintf("tool %s does not support credential validation", req.Name), h.logger)
		return
	}

	text, err := meta.Validate(r.Context(), req.Credentials, req.Arguments, req.FormatOnly)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"valid": true, "response": text})
}

func (h *ToolHandler) writeToolFailure(w http.ResponseWriter, res types.ToolResult) {
	code := res.Code
	if code == "" {
		code = types.ErrToolInvoke
	}
	status := mapErrorCodeToHTTPStatus(code)

	WriteJSON(w, status, Response{
		Success: false,
		Data:    toInvokeResponse(res),
		Error: &ErrorInfo{
			Code:       string(code),
			Message:    res.Error,
			Retryable:  code == types.ErrRateLimited || code == types.ErrTimeout,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
	})
}
