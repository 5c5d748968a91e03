// 默认配置测试。
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 验证服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Server.APIKeys)

	// 验证 API 工具默认值
	assert.Equal(t, 10*time.Second, cfg.APITool.ConnectTimeout)
	assert.Equal(t, 60*time.Second, cfg.APITool.ReadTimeout)
	assert.Empty(t, cfg.APITool.ProxyURL)

	// 验证重排序与飞书默认值
	assert.Equal(t, "modelhub", cfg.Rerank.Provider)
	assert.Equal(t, "https://open.feishu.cn", cfg.Feishu.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.Feishu.TokenRefreshSkew)

	// 验证存储默认值
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	// 验证 Log 默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)

	// 验证遥测默认值
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "toolbridge", cfg.Telemetry.ServiceName)

	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_Independent(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	a.Log.OutputPaths[0] = "stderr"
	assert.Equal(t, "stdout", b.Log.OutputPaths[0])
}
