package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// =============================================================================
// 内嵌迁移文件
// =============================================================================

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// DatabaseType 数据库方言
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
)

// ParseDatabaseType 解析方言名称，接受常见别名
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// migrationsDir 方言对应的内嵌目录
func migrationsDir(dbType DatabaseType) string {
	return path.Join("migrations", string(dbType))
}

// MigrationStatus 单个迁移的状态
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo 迁移摘要
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Config 迁移器配置
type Config struct {
	DatabaseType DatabaseType
	// DB 由迁移器接管，Close 时关闭
	DB *sql.DB
	// 版本表名，默认 schema_migrations
	TableName string
}

// Migrator 版本化 Schema 迁移
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	DownAll(ctx context.Context) error
	Goto(ctx context.Context, version uint) error
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// =============================================================================
// 🎯 默认实现
// =============================================================================

// DefaultMigrator 基于 golang-migrate 的 Migrator
type DefaultMigrator struct {
	dbType  DatabaseType
	db      *sql.DB
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// NewMigrator 用已打开的连接创建迁移器
func NewMigrator(cfg Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg.DB == nil {
		return nil, errors.New("database connection is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, err := databaseDriver(cfg)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(migrationsFS, migrationsDir(cfg.DatabaseType))
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, string(cfg.DatabaseType), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &DefaultMigrator{
		dbType:  cfg.DatabaseType,
		db:      cfg.DB,
		migrate: m,
		logger:  logger.With(zap.String("component", "migrator"), zap.String("dialect", string(cfg.DatabaseType))),
	}, nil
}

func databaseDriver(cfg Config) (database.Driver, error) {
	switch cfg.DatabaseType {
	case DatabaseTypePostgres:
		return postgres.WithInstance(cfg.DB, &postgres.Config{
			MigrationsTable:       cfg.TableName,
			MultiStatementEnabled: true,
		})
	case DatabaseTypeMySQL:
		return mysql.WithInstance(cfg.DB, &mysql.Config{MigrationsTable: cfg.TableName})
	case DatabaseTypeSQLite:
		return sqlite3.WithInstance(cfg.DB, &sqlite3.Config{MigrationsTable: cfg.TableName})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DatabaseType)
	}
}

// ignoreNoChange 已是目标版本不算错误
func ignoreNoChange(op string, err error) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return fmt.Errorf("migration %s failed: %w", op, err)
}

// Up 应用全部未执行的迁移
func (m *DefaultMigrator) Up(ctx context.Context) error {
	m.logger.Info("applying migrations")
	return ignoreNoChange("up", m.migrate.Up())
}

// Down 回滚最近一次迁移
func (m *DefaultMigrator) Down(ctx context.Context) error {
	m.logger.Info("rolling back last migration")
	return ignoreNoChange("down", m.migrate.Steps(-1))
}

// DownAll 回滚全部迁移
func (m *DefaultMigrator) DownAll(ctx context.Context) error {
	m.logger.Warn("rolling back all migrations")
	return ignoreNoChange("down all", m.migrate.Down())
}

// Goto 迁移到指定版本
func (m *DefaultMigrator) Goto(ctx context.Context, version uint) error {
	return ignoreNoChange("goto", m.migrate.Migrate(version))
}

// Force 只改写版本号，不执行迁移，用于清理 dirty 状态
func (m *DefaultMigrator) Force(ctx context.Context, version int) error {
	m.logger.Warn("forcing migration version", zap.Int("version", version))
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version 返回当前版本，尚未迁移时为 0
func (m *DefaultMigrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status 列出全部内嵌迁移及其状态
func (m *DefaultMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations(m.dbType)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return statuses, nil
}

// Info 返回迁移摘要
func (m *DefaultMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, s := range statuses {
		if s.Applied {
			applied++
		}
	}
	return &MigrationInfo{
		CurrentVersion:    current,
		Dirty:             dirty,
		TotalMigrations:   len(statuses),
		AppliedMigrations: applied,
		PendingMigrations: len(statuses) - applied,
	}, nil
}

// Close 释放迁移引擎与数据库连接
func (m *DefaultMigrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	// sqlite3 驱动关闭时已关闭连接，重复关闭无副作用
	_ = m.db.Close()
	return errors.Join(sourceErr, dbErr)
}

// =============================================================================
// 🔧 迁移文件
// =============================================================================

type migrationFile struct {
	version uint
	name    string
}

// availableMigrations 解析 000001_name.up.sql 形式的文件，按版本排序
func availableMigrations(dbType DatabaseType) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir(dbType))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(rest, ".up.sql"),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
