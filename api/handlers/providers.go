package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/tools/registry"
	"github.com/BaSui01/toolbridge/types"
)

// BundleStore 持久化导入的工具包，不保存凭证
type BundleStore interface {
	Save(ctx context.Context, bundles ...apitool.Bundle) error
	DeleteProvider(ctx context.Context, provider string) (int64, error)
}

// =============================================================================
// 📥 OpenAPI 提供方导入 Handler
// =============================================================================

// ProviderHandler 把 OpenAPI 文档导入为一组工具
type ProviderHandler struct {
	generator *openapi.Generator
	registry  *registry.DefaultRegistry
	store     BundleStore
	toolOpts  []apitool.Option
	logger    *zap.Logger
}

// NewProviderHandler 创建提供方处理器。store 为 nil 时导入结果只保存在内存
func NewProviderHandler(gen *openapi.Generator, reg *registry.DefaultRegistry, store BundleStore, logger *zap.Logger, toolOpts ...apitool.Option) *ProviderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderHandler{
		generator: gen,
		registry:  reg,
		store:     store,
		toolOpts:  toolOpts,
		logger:    logger.With(zap.String("handler", "providers")),
	}
}

// ImportOpenAPIRequest 导入请求，Spec 与 URL 二选一
type ImportOpenAPIRequest struct {
	Provider    string         `json:"provider"`
	Spec        string         `json:"spec,omitempty"`
	URL         string         `json:"url,omitempty"`
	BaseURL     string         `json:"base_url,omitempty"`
	IncludeTags []string       `json:"include_tags,omitempty"`
	ExcludeTags []string       `json:"exclude_tags,omitempty"`
	Prefix      string         `json:"prefix,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
}

// ImportOpenAPIResponse 导入结果
type ImportOpenAPIResponse struct {
	Provider string   `json:"provider"`
	Title    string   `json:"title,omitempty"`
	Version  string   `json:"version,omitempty"`
	Tools    []string `json:"tools"`
}

// HandleOpenAPI 处理 /api/v1/providers/openapi：POST 导入，DELETE ?provider= 移除
func (h *ProviderHandler) HandleOpenAPI(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleImport(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
	}
}

func (h *ProviderHandler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportOpenAPIRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := validateImport(&req); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	var (
		doc *openapi.Document
		err error
	)
	if req.Spec != "" {
		doc, err = h.generator.ParseSpec(ctx, []byte(req.Spec))
	} else {
		// 重新导入同一 URL 时取最新内容
		h.generator.Invalidate(req.URL)
		doc, err = h.generator.LoadSpec(ctx, req.URL)
	}
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err), h.logger)
		return
	}

	bundles, err := h.generator.GenerateBundles(doc, openapi.GenerateOptions{
		BaseURL:     req.BaseURL,
		IncludeTags: req.IncludeTags,
		ExcludeTags: req.ExcludeTags,
		Prefix:      req.Prefix,
		Provider:    req.Provider,
	})
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err), h.logger)
		return
	}
	if len(bundles) == 0 {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest,
			"document contains no supported operations", h.logger)
		return
	}

	if h.store != nil {
		if _, err := h.store.DeleteProvider(ctx, req.Provider); err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
		if err := h.store.Save(ctx, bundles...); err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
	}

	n, err := registry.RegisterBundles(h.registry, bundles, req.Credentials, h.toolOpts...)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, err.Error()).WithCause(err), h.logger)
		return
	}

	names := make([]string, 0, n)
	for _, b := range bundles[:n] {
		names = append(names, b.Name)
	}
	h.logger.Info("openapi provider imported",
		zap.String("provider", req.Provider),
		zap.String("title", doc.Title),
		zap.Int("tools", n),
	)
	WriteSuccess(w, ImportOpenAPIResponse{
		Provider: req.Provider,
		Title:    doc.Title,
		Version:  doc.Version,
		Tools:    names,
	})
}

func (h *ProviderHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	provider := strings.TrimSpace(r.URL.Query().Get("provider"))
	if provider == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "provider is required", h.logger)
		return
	}

	removed := h.registry.UnregisterProvider(provider)
	if h.store != nil {
		if _, err := h.store.DeleteProvider(r.Context(), provider); err != nil {
			WriteAnyError(w, err, h.logger)
			return
		}
	}
	if removed == 0 {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrNotFound,
			fmt.Sprintf("provider %s has no tools", provider), h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"provider": provider, "removed": removed})
}

func validateImport(req *ImportOpenAPIRequest) *types.Error {
	req.Provider = strings.TrimSpace(req.Provider)
	switch {
	case req.Provider == "":
		return types.NewError(types.ErrInvalidRequest, "provider is required")
	case req.Spec == "" && req.URL == "":
		return types.NewError(types.ErrInvalidRequest, "one of spec or url is required")
	case req.Spec != "" && req.URL != "":
		return types.NewError(types.ErrInvalidRequest, "spec and url are mutually exclusive")
	case req.URL != "" && !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://"):
		// 本地文件只允许通过规格目录导入
		return types.NewError(types.ErrInvalidRequest, "url must be http or https")
	}
	return nil
}
