// Package store persists imported tool bundles.
// This package is internal and should not be imported by external projects.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/toolbridge/tools/apitool"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 指定名称的工具包不存在
var ErrNotFound = errors.New("tool bundle not found")

// ============================================================
// 数据模型
// ============================================================

// ToolBundle 导入的 OpenAPI 操作。凭证不入库。
type ToolBundle struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:191;not null;uniqueIndex" json:"name"`
	Provider    string    `gorm:"size:191;index" json:"provider"`
	OperationID string    `gorm:"size:191" json:"operation_id"`
	Method      string    `gorm:"size:16;not null" json:"method"`
	ServerURL   string    `gorm:"size:2048;not null" json:"server_url"`
	Description string    `gorm:"type:text" json:"description"`
	Payload     string    `gorm:"type:text;not null" json:"-"` // 完整 Bundle JSON
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ToolBundle) TableName() string {
	return "tb_tool_bundles"
}

// QueryRecorder 接收查询耗时，由 metrics.Collector 实现
type QueryRecorder interface {
	RecordDBQuery(database, operation string, duration time.Duration)
}

// ============================================================
// 仓储
// ============================================================

// BundleRepository 工具包仓储
type BundleRepository struct {
	db       *gorm.DB
	recorder QueryRecorder
	logger   *zap.Logger
}

// NewBundleRepository 创建工具包仓储，recorder 可为 nil
func NewBundleRepository(db *gorm.DB, recorder QueryRecorder, logger *zap.Logger) *BundleRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BundleRepository{
		db:       db,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "bundle_store")),
	}
}

// Migrate 自动迁移表结构
func (r *BundleRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&ToolBundle{}); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// Save 按名称插入或覆盖工具包
func (r *BundleRepository) Save(ctx context.Context, bundles ...apitool.Bundle) error {
	if len(bundles) == 0 {
		return nil
	}
	defer r.observe("upsert", time.Now())

	rows := make([]ToolBundle, 0, len(bundles))
	for _, b := range bundles {
		if b.Name == "" {
			return fmt.Errorf("bundle name is required")
		}
		payload, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode bundle %s: %w", b.Name, err)
		}
		rows = append(rows, ToolBundle{
			Name:        b.Name,
			Provider:    b.Provider,
			OperationID: b.Operation.OperationID,
			Method:      b.Operation.Method,
			ServerURL:   b.Operation.ServerURL,
			Description: b.Description,
			Payload:     string(payload),
		})
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider", "operation_id", "method", "server_url", "description", "payload", "updated_at",
		}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("save bundles: %w", err)
	}

	r.logger.Debug("bundles saved", zap.Int("count", len(rows)))
	return nil
}

// Get 按名称读取工具包
func (r *BundleRepository) Get(ctx context.Context, name string) (apitool.Bundle, error) {
	defer r.observe("get", time.Now())

	var row ToolBundle
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apitool.Bundle{}, ErrNotFound
	}
	if err != nil {
		return apitool.Bundle{}, fmt.Errorf("get bundle %s: %w", name, err)
	}
	return decodeBundle(row)
}

// List 列出工具包，provider 为空时返回全部，按名称排序
func (r *BundleRepository) List(ctx context.Context, provider string) ([]apitool.Bundle, error) {
	defer r.observe("list", time.Now())

	q := r.db.WithContext(ctx).Order("name")
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}

	var rows []ToolBundle
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}

	out := make([]apitool.Bundle, 0, len(rows))
	for _, row := range rows {
		b, err := decodeBundle(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Delete 按名称删除工具包
func (r *BundleRepository) Delete(ctx context.Context, name string) error {
	defer r.observe("delete", time.Now())

	res := r.db.WithContext(ctx).Where("name = ?", name).Delete(&ToolBundle{})
	if res.Error != nil {
		return fmt.Errorf("delete bundle %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProvider 删除某个提供方导入的全部工具包
func (r *BundleRepository) DeleteProvider(ctx context.Context, provider string) (int64, error) {
	defer r.observe("delete", time.Now())

	res := r.db.WithContext(ctx).Where("provider = ?", provider).Delete(&ToolBundle{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete provider %s: %w", provider, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *BundleRepository) observe(operation string, start time.Time) {
	if r.recorder != nil {
		r.recorder.RecordDBQuery(r.db.Dialector.Name(), operation, time.Since(start))
	}
}

// decodeBundle 使用 UseNumber 还原默认值，整数默认值不会变成浮点数
func decodeBundle(row ToolBundle) (apitool.Bundle, error) {
	var b apitool.Bundle
	dec := json.NewDecoder(bytes.NewReader([]byte(row.Payload)))
	dec.UseNumber()
	if err := dec.Decode(&b); err != nil {
		return apitool.Bundle{}, fmt.Errorf("decode bundle %s: %w", row.Name, err)
	}
	return b, nil
}
