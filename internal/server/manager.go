package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Manager 管理单个监听端口上的 http.Server
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool
}

// Config 服务器配置
type Config struct {
	// 名称，仅用于日志（api、metrics）
	Name string `yaml:"name" json:"name"`

	// 监听地址，":0" 表示随机端口
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 同时设置时以 HTTPS 启动
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Name:            "api",
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// TLSEnabled 证书与私钥同时配置时为 true
func (c Config) TLSEnabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "api"
	}
	server := &http.Server{
		Addr:           config.Addr,
		Handler:        handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return &Manager{
		server: server,
		errCh:  make(chan error, 1),
		config: config,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", config.Name)),
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Start 监听并在后台开始服务。配置了证书时使用 HTTPS
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("server %s is closed", m.config.Name)
	}
	if m.listener != nil {
		return fmt.Errorf("server %s already started", m.config.Name)
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener

	tls := m.config.TLSEnabled()
	m.logger.Info("server listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("tls", tls),
	)

	go m.serve(listener, tls)
	return nil
}

func (m *Manager) serve(listener net.Listener, tls bool) {
	var err error
	if tls {
		err = m.server.ServeTLS(listener, m.config.CertFile, m.config.KeyFile)
	} else {
		err = m.server.Serve(listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 在 ShutdownTimeout 内排空请求后关闭，重复调用无副作用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("shutting down server")

	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Info("server stopped")
	return nil
}

// Errors 返回异步服务错误
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Name 返回服务器名称
func (m *Manager) Name() string {
	return m.config.Name
}

// Addr 启动后返回实际监听地址，否则返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 已启动且未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listener != nil && !m.closed
}

// =============================================================================
// 🛑 多服务器协同关闭
// =============================================================================

// Serve 启动所有管理器并阻塞，直到 ctx 结束或任一服务器异常退出，
// 随后按相反顺序关闭全部服务器。ctx 正常结束时返回 nil。
func Serve(ctx context.Context, logger *zap.Logger, managers ...*Manager) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	started := make([]*Manager, 0, len(managers))
	shutdown := func() error {
		var errs []error
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Shutdown(context.Background()); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", started[i].Name(), err))
			}
		}
		return errors.Join(errs...)
	}

	for _, m := range managers {
		if err := m.Start(); err != nil {
			return errors.Join(err, shutdown())
		}
		started = append(started, m)
	}

	// 每个管理器的错误通道合并到一处
	failed := make(chan error, len(started))
	stop := make(chan struct{})
	defer close(stop)
	for _, m := range started {
		go func(m *Manager) {
			select {
			case err := <-m.Errors():
				failed <- fmt.Errorf("server %s: %w", m.Name(), err)
			case <-stop:
			}
		}(m)
	}

	var cause error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case cause = <-failed:
		logger.Error("server exited unexpectedly", zap.Error(cause))
	}
	return errors.Join(cause, shutdown())
}
