package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	logger  *zap.Logger
	timeout time.Duration
	checks  []registeredCheck
	mu      sync.RWMutex
}

// HealthCheck 依赖探测
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

type registeredCheck struct {
	check    HealthCheck
	optional bool
}

// 探针状态
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus 探针响应
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个依赖的结果，Status 为 pass 或 fail
type CheckResult struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

// NewHealthHandler 创建探针处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck 注册关键依赖，失败时就绪探针返回 503
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.register(check, false)
}

// RegisterOptionalCheck 注册非关键依赖，失败时状态为 degraded 但仍返回 200
func (h *HealthHandler) RegisterOptionalCheck(check HealthCheck) {
	h.register(check, true)
}

func (h *HealthHandler) register(check HealthCheck, optional bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{check: check, optional: optional})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 存活探针，不访问依赖
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	})
}

// HandleReady 就绪探针，并发执行全部依赖检查
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]registeredCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, rc := range checks {
		wg.Add(1)
		go func(i int, rc registeredCheck) {
			defer wg.Done()
			results[i] = h.run(ctx, rc)
		}(i, rc)
	}
	wg.Wait()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, rc := range checks {
		res := results[i]
		status.Checks[rc.check.Name()] = res
		if res.Status != "fail" {
			continue
		}
		if rc.optional {
			if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
		} else {
			status.Status = StatusUnhealthy
		}
	}

	code := http.StatusOK
	if status.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

func (h *HealthHandler) run(ctx context.Context, rc registeredCheck) CheckResult {
	start := time.Now()
	err := rc.check.Check(ctx)
	latency := time.Since(start)

	res := CheckResult{Status: "pass", Optional: rc.optional, Latency: latency.String()}
	if err != nil {
		res.Status = "fail"
		res.Message = err.Error()
		h.logger.Warn("health check failed",
			zap.String("check", rc.check.Name()),
			zap.Bool("optional", rc.optional),
			zap.Error(err),
			zap.Duration("latency", latency),
		)
	}
	return res
}

// HandleVersion 处理 /version 请求
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		}

		WriteSuccess(w, info)
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// CheckFunc 把一个探测函数包装为 HealthCheck（数据库、Redis 等）
type CheckFunc struct {
	name string
	ping func(ctx context.Context) error
}

// NewCheck 创建健康检查
func NewCheck(name string, ping func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, ping: ping}
}

func (c *CheckFunc) Name() string { return c.name }

func (c *CheckFunc) Check(ctx context.Context) error { return c.ping(ctx) }
