package migration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/config"
	"github.com/BaSui01/toolbridge/internal/database"
)

// NewMigratorFromDatabaseConfig 按数据库配置建立连接并创建迁移器。
// 连接与服务端使用同一套驱动，sqlite 无需 CGO
func NewMigratorFromDatabaseConfig(dc config.DatabaseConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(dc.Driver)
	if err != nil {
		return nil, err
	}
	// DSN 按规范名称生成
	dc.Driver = string(dbType)

	gdb, err := database.Open(dc, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	m, err := NewMigrator(Config{DatabaseType: dbType, DB: sqlDB}, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return m, nil
}
