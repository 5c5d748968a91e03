package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/api/handlers"
	"github.com/BaSui01/toolbridge/config"
	"github.com/BaSui01/toolbridge/internal/cache"
	"github.com/BaSui01/toolbridge/internal/database"
	"github.com/BaSui01/toolbridge/internal/metrics"
	"github.com/BaSui01/toolbridge/internal/server"
	"github.com/BaSui01/toolbridge/internal/store"
	"github.com/BaSui01/toolbridge/internal/telemetry"
	"github.com/BaSui01/toolbridge/internal/tlsutil"
	"github.com/BaSui01/toolbridge/llm/rerank"
	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/tools/feishu"
	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/tools/registry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 toolbridge 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry *telemetry.Providers
	recorder  fanoutRecorder
	collector *metrics.Collector
	cache     *cache.Manager
	pool      *database.PoolManager
	bundles   *store.BundleRepository

	registry  *registry.DefaultRegistry
	executor  *registry.DefaultExecutor
	generator *openapi.Generator
	toolOpts  []apitool.Option
	importer  *specImporter
	watcher   *config.DirWatcher

	health         *handlers.HealthHandler
	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 初始化
// =============================================================================

// Init 按依赖顺序构建全部组件。失败时已创建的资源由 Close 释放
func (s *Server) Init(ctx context.Context) error {
	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	s.collector = metrics.NewCollector("toolbridge", s.logger)
	instruments, err := telemetry.NewInstruments()
	if err != nil {
		return err
	}
	s.recorder = fanoutRecorder{s.collector, instruments}
	s.health = handlers.NewHealthHandler(s.logger)

	tokenStore, err := s.initCache()
	if err != nil {
		return err
	}
	if err := s.initDatabase(ctx); err != nil {
		return err
	}
	if err := s.initTools(tokenStore); err != nil {
		return err
	}
	if err := s.loadProviders(ctx); err != nil {
		return err
	}

	s.initHTTPServer(ctx)
	s.initMetricsServer()
	return nil
}

// initCache 启用 Redis 时飞书 token 存入 Redis，否则存在进程内。Redis 故障只降级
func (s *Server) initCache() (cache.Store, error) {
	if !s.cfg.Redis.Enabled {
		return cache.NewMemoryStore(), nil
	}
	manager, err := cache.NewManager(cache.ConfigFrom(s.cfg.Redis), s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	s.cache = manager
	s.health.RegisterOptionalCheck(handlers.NewCheck("redis", manager.Ping))
	return manager, nil
}

func (s *Server) initDatabase(ctx context.Context) error {
	if !s.cfg.Database.Enabled {
		return nil
	}
	db, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(s.cfg.Database), s.logger,
		database.WithStatsRecorder(s.cfg.Database.Driver, s.collector))
	if err != nil {
		return fmt.Errorf("failed to create pool manager: %w", err)
	}
	s.pool = pool
	s.health.RegisterCheck(handlers.NewCheck("database", pool.Ping))

	s.bundles = store.NewBundleRepository(pool.DB(), s.collector, s.logger)
	if err := s.bundles.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate bundle store: %w", err)
	}
	return nil
}

func (s *Server) initTools(tokenStore cache.Store) error {
	s.registry = registry.NewDefaultRegistry(s.logger)
	s.executor = registry.NewDefaultExecutor(s.registry, s.logger)

	client, err := tlsutil.NewHTTPClient(tlsutil.ClientOptions{
		ConnectTimeout: s.cfg.APITool.ConnectTimeout,
		ReadTimeout:    s.cfg.APITool.ReadTimeout,
		ProxyURL:       s.cfg.APITool.ProxyURL,
	})
	if err != nil {
		return fmt.Errorf("failed to build api tool client: %w", err)
	}
	s.toolOpts = []apitool.Option{
		apitool.WithHTTPClient(client),
		apitool.WithRecorder(s.recorder),
		apitool.WithTimeout(s.cfg.APITool.ConnectTimeout+s.cfg.APITool.ReadTimeout),
		apitool.WithLogger(s.logger),
	}
	s.generator = openapi.NewGenerator(openapi.GeneratorConfig{
		Timeout:    s.cfg.APITool.ReadTimeout,
		HTTPClient: client,
	}, s.logger)

	connector := feishu.NewConnector(s.logger,
		feishu.WithBaseURL(s.cfg.Feishu.BaseURL),
		feishu.WithHTTPClient(tlsutil.SecureHTTPClient(s.cfg.Feishu.Timeout)),
		feishu.WithTokenStore(tokenStore),
		feishu.WithRefreshGap(s.cfg.Feishu.TokenRefreshSkew),
		feishu.WithRecorder(s.collector),
	)
	defaults := feishuDefaults(s.cfg.Feishu)
	for _, tool := range []registry.TextTool{feishu.NewGetTableTool(connector), feishu.NewWriteTableTool(connector)} {
		fn, meta := registry.Text(tool, "feishu")
		if err := s.registry.Register(tool.Name(), withDefaultCredentials(fn, defaults), meta); err != nil {
			return err
		}
	}
	return nil
}

// loadProviders 恢复持久化的提供方，再导入并监听文档目录
func (s *Server) loadProviders(ctx context.Context) error {
	var bundleStore handlers.BundleStore
	if s.bundles != nil {
		bundleStore = s.bundles
	}
	s.importer = newSpecImporter(s.generator, s.registry, bundleStore, s.logger, s.toolOpts...)

	if s.bundles != nil {
		n, err := s.importer.Restore(ctx, s.bundles)
		if err != nil {
			return fmt.Errorf("failed to restore providers: %w", err)
		}
		s.logger.Info("providers restored", zap.Int("tools", n))
	}

	dir := s.cfg.APITool.SpecDir
	if dir == "" {
		return nil
	}
	opts := []config.WatcherOption{
		config.WithExtensions(".json", ".yaml", ".yml"),
		config.WithWatcherLogger(s.logger),
	}
	if s.cfg.APITool.SpecPollInterval > 0 {
		opts = append(opts, config.WithPollInterval(s.cfg.APITool.SpecPollInterval))
	}
	watcher, err := config.NewDirWatcher(dir, opts...)
	if err != nil {
		return fmt.Errorf("failed to watch spec dir: %w", err)
	}
	files, err := watcher.Files()
	if err != nil {
		return fmt.Errorf("failed to list spec dir: %w", err)
	}
	s.logger.Info("spec dir imported",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("tools", s.importer.ImportAll(ctx, files)),
	)

	if s.cfg.APITool.SpecPollInterval <= 0 {
		return nil
	}
	watcher.OnChange(s.importer.HandleEvents(ctx))
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start spec watcher: %w", err)
	}
	s.watcher = watcher
	return nil
}

// rerankHandler 构建重排处理器，Timeout 通过共享的 HTTP 客户端生效
func (s *Server) rerankHandler() (*handlers.RerankHandler, error) {
	rc := s.cfg.Rerank
	factory, err := rerank.FactoryWithClient(rc.Provider, tlsutil.SecureHTTPClient(rc.Timeout))
	if err != nil {
		return nil, err
	}
	model := rerank.NewModel(factory, rerank.WithRecorder(s.recorder), rerank.WithLogger(s.logger))

	var defaults rerank.Credentials
	if rc.APIKey != "" || rc.EndpointURL != "" {
		defaults = rerank.Credentials{
			rerank.CredentialAPIKey:      rc.APIKey,
			rerank.CredentialEndpointURL: rc.EndpointURL,
		}
	}
	return handlers.NewRerankHandler(model, rc.Model, defaults, s.logger), nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

func (s *Server) routes() (*http.ServeMux, error) {
	rerankHandler, err := s.rerankHandler()
	if err != nil {
		return nil, err
	}
	toolHandler := handlers.NewToolHandler(s.registry, s.executor, s.logger)
	var bundleStore handlers.BundleStore
	if s.bundles != nil {
		bundleStore = s.bundles
	}
	providerHandler := handlers.NewProviderHandler(s.generator, s.registry, bundleStore, s.logger, s.toolOpts...)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health.HandleHealth)
	mux.HandleFunc("/healthz", s.health.HandleHealth)
	mux.HandleFunc("/ready", s.health.HandleReady)
	mux.HandleFunc("/readyz", s.health.HandleReady)
	mux.HandleFunc("/version", s.health.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("/api/v1/tools", toolHandler.HandleList)
	mux.HandleFunc("/api/v1/tools/invoke", toolHandler.HandleInvoke)
	mux.HandleFunc("/api/v1/tools/batch", toolHandler.HandleBatch)
	mux.HandleFunc("/api/v1/tools/validate", toolHandler.HandleValidate)
	mux.HandleFunc("/api/v1/providers/openapi", providerHandler.HandleOpenAPI)
	mux.HandleFunc("/api/v1/rerank", rerankHandler.HandleRerank)
	mux.HandleFunc("/api/v1/rerank/validate", rerankHandler.HandleValidate)
	return mux, nil
}

func (s *Server) middlewares(ctx context.Context) []Middleware {
	sc := s.cfg.Server
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(sc.CORSAllowedOrigins),
	}
	if sc.JWT.Enabled() {
		chain = append(chain, JWTAuth(sc.JWT, publicPaths, s.logger))
	} else if len(sc.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(sc.APIKeys, publicPaths, s.logger))
	}
	// 认证之后限流，JWT 请求按租户计数
	if sc.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(ctx, sc.RateLimitRPS, sc.RateLimitBurst, s.logger))
	}
	return chain
}

func (s *Server) initHTTPServer(ctx context.Context) {
	// routes 只在 rerank provider 未知时失败，Validate 已提前拦截
	mux, err := s.routes()
	if err != nil {
		s.logger.Error("rerank disabled", zap.Error(err))
		mux = http.NewServeMux()
	}

	sc := s.cfg.Server
	cfg := server.DefaultConfig()
	cfg.Name = "api"
	cfg.Addr = fmt.Sprintf(":%d", sc.HTTPPort)
	cfg.ReadTimeout = sc.ReadTimeout
	cfg.WriteTimeout = sc.WriteTimeout
	cfg.ShutdownTimeout = sc.ShutdownTimeout
	cfg.CertFile = sc.TLSCertFile
	cfg.KeyFile = sc.TLSKeyFile

	s.httpManager = server.NewManager(Chain(mux, s.middlewares(ctx)...), cfg, s.logger)
}

func (s *Server) initMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	cfg := server.DefaultConfig()
	cfg.Name = "metrics"
	cfg.Addr = fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
	cfg.ReadTimeout = 10 * time.Second
	cfg.WriteTimeout = 10 * time.Second
	cfg.ShutdownTimeout = s.cfg.Server.ShutdownTimeout

	s.metricsManager = server.NewManager(mux, cfg, s.logger)
}

// =============================================================================
// 🛑 运行与关闭
// =============================================================================

// Run 阻塞直到 ctx 结束或任一服务器异常退出
func (s *Server) Run(ctx context.Context) error {
	return server.Serve(ctx, s.logger, s.httpManager, s.metricsManager)
}

// Close 释放 Init 创建的资源
func (s *Server) Close() error {
	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop spec watcher: %w", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if s.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func feishuDefaults(fc config.FeishuConfig) map[string]any {
	if fc.AppID == "" || fc.AppSecret == "" {
		return nil
	}
	return map[string]any{
		feishu.CredentialAppID:     fc.AppID,
		feishu.CredentialAppSecret: fc.AppSecret,
	}
}

// withDefaultCredentials 请求未携带凭证时使用配置中的默认凭证
func withDefaultCredentials(fn registry.ToolFunc, defaults map[string]any) registry.ToolFunc {
	if defaults == nil {
		return fn
	}
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		if _, ok := registry.CredentialsFrom(ctx); !ok {
			ctx = registry.WithCredentials(ctx, defaults)
		}
		return fn(ctx, args)
	}
}

// fanoutRecorder 同时写入 Prometheus 与 OTel 指标
type fanoutRecorder struct {
	prom *metrics.Collector
	otel *telemetry.Instruments
}

func (f fanoutRecorder) RecordToolInvocation(tool, method string, statusCode int, outcome string, duration time.Duration) {
	f.prom.RecordToolInvocation(tool, method, statusCode, outcome, duration)
	f.otel.RecordToolInvocation(tool, method, statusCode, outcome, duration)
}

func (f fanoutRecorder) RecordRerank(provider, model, status string, documents int, duration time.Duration) {
	f.prom.RecordRerank(provider, model, status, documents, duration)
	f.otel.RecordRerank(provider, model, status, documents, duration)
}
