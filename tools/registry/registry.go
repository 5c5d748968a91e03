package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/toolbridge/types"
)

// DefaultTimeout applies when a tool is registered without one.
const DefaultTimeout = 30 * time.Second

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ValidateFunc checks credentials against a tool. formatOnly skips the
// network call.
type ValidateFunc func(ctx context.Context, creds map[string]any, args json.RawMessage, formatOnly bool) (string, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema      types.ToolSchema // Tool JSON Schema
	Provider    string           // Provider that contributed the tool
	RateLimit   *RateLimitConfig // Rate limit config (optional)
	Timeout     time.Duration    // Execution timeout (default 30s)
	Description string           // Detailed description
	Validate    ValidateFunc     // Credential check (optional)
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// ToolRegistry defines tool registry interface.
type ToolRegistry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Unregister(name string) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []types.ToolSchema
	Has(name string) bool
}

// ToolExecutor defines tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult
	ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult
}

// ====== 实现：DefaultRegistry ======

type DefaultRegistry struct {
	mu         sync.RWMutex
	tools      map[string]ToolFunc
	metadata   map[string]ToolMetadata
	rateLimits map[string]*rate.Limiter // 工具级别的速率限制器
	logger     *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:      make(map[string]ToolFunc),
		metadata:   make(map[string]ToolMetadata),
		rateLimits: make(map[string]*rate.Limiter),
		logger:     logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	if name == "" || fn == nil {
		return fmt.Errorf("tool name and function are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	// 校验 Schema
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}

	// 设置默认超时
	if metadata.Timeout == 0 {
		metadata.Timeout = DefaultTimeout
	}

	r.tools[name] = fn
	r.metadata[name] = metadata

	// 初始化速率限制器
	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		r.rateLimits[name] = rate.NewLimiter(rate.Every(rl.Window/time.Duration(rl.MaxCalls)), rl.MaxCalls)
	}

	r.logger.Info("tool registered",
		zap.String("name", name),
		zap.String("provider", metadata.Provider),
		zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}

	delete(r.tools, name)
	delete(r.metadata, name)
	delete(r.rateLimits, name)

	r.logger.Info("tool unregistered", zap.String("name", name))
	return nil
}

// UnregisterProvider removes every tool contributed by provider and
// returns how many were removed.
func (r *DefaultRegistry) UnregisterProvider(provider string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for name, meta := range r.metadata {
		if meta.Provider != provider {
			continue
		}
		delete(r.tools, name)
		delete(r.metadata, name)
		delete(r.rateLimits, name)
		removed++
	}
	if removed > 0 {
		r.logger.Info("provider unregistered", zap.String("provider", provider), zap.Int("tools", removed))
	}
	return removed
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %s not found", name)).
			WithHTTPStatus(404)
	}

	meta := r.metadata[name]
	return fn, meta, nil
}

// List returns the registered schemas ordered by name.
func (r *DefaultRegistry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// checkRateLimit 检查是否触发速率限制
func (r *DefaultRegistry) checkRateLimit(name string) error {
	r.mu.RLock()
	limiter, ok := r.rateLimits[name]
	r.mu.RUnlock()
	if !ok {
		return nil // 没有速率限制
	}
	if !limiter.Allow() {
		return types.NewError(types.ErrRateLimited, fmt.Sprintf("tool %s rate limit exceeded", name)).
			WithHTTPStatus(429).
			WithRetryable(true)
	}
	return nil
}

// ====== 实现：DefaultExecutor ======

// DefaultMaxConcurrency 批量调用时同时执行的工具数上限
const DefaultMaxConcurrency = 8

type DefaultExecutor struct {
	registry       ToolRegistry
	maxConcurrency int
	logger         *zap.Logger
}

// NewDefaultExecutor 创建默认的工具执行器。
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry:       registry,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         logger.With(zap.String("component", "tool_executor")),
	}
}

// SetMaxConcurrency 设置批量调用的并发上限，n <= 0 表示不限制
func (e *DefaultExecutor) SetMaxConcurrency(n int) {
	e.maxConcurrency = n
}

// Execute runs calls concurrently, at most maxConcurrency at a time;
// results keep the order of calls.
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	result := types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}
	fail := func(err error) types.ToolResult {
		result.Error = err.Error()
		result.Code = types.GetErrorCode(err)
		result.Duration = time.Since(start)
		return result
	}

	// 1. 获取工具函数和元数据
	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		e.logger.Error("tool not found", zap.String("name", call.Name), zap.Error(err))
		return fail(err)
	}

	// 2. 检查速率限制（如果注册表支持）
	if reg, ok := e.registry.(*DefaultRegistry); ok {
		if err := reg.checkRateLimit(call.Name); err != nil {
			e.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
			return fail(err)
		}
	}

	// 3. 参数校验（简单校验：确保是有效 JSON）
	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		err := types.NewError(types.ErrInvalidRequest, "invalid arguments: not valid JSON")
		e.logger.Error("invalid tool arguments", zap.String("name", call.Name))
		return fail(err)
	}

	// 4. 执行工具（带超时控制）
	execCtx, cancel := context.WithTimeout(types.WithInvocationID(ctx, call.ID), meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// 使用带缓冲的 channel 防止 goroutine 泄漏
	doneChan := make(chan outcome, 1)
	go func() {
		res, err := fn(execCtx, call.Arguments)
		doneChan <- outcome{res, err}
	}()

	select {
	case done := <-doneChan:
		if done.err != nil {
			e.logger.Error("tool execution failed",
				zap.String("name", call.Name),
				zap.String("call_id", call.ID),
				zap.Error(done.err),
				zap.Duration("duration", time.Since(start)))
			return fail(done.err)
		}
		result.Result = done.res
		result.Duration = time.Since(start)
		e.logger.Info("tool executed successfully",
			zap.String("name", call.Name),
			zap.String("call_id", call.ID),
			zap.Duration("duration", result.Duration))

	case <-execCtx.Done():
		e.logger.Error("tool execution timeout",
			zap.String("name", call.Name),
			zap.String("call_id", call.ID),
			zap.Duration("timeout", meta.Timeout))
		return fail(types.NewError(types.ErrTimeout, fmt.Sprintf("execution timeout after %s", meta.Timeout)).
			WithHTTPStatus(504))
	}

	return result
}
