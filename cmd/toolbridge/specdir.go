package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/api/handlers"
	"github.com/BaSui01/toolbridge/config"
	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/tools/registry"
)

// =============================================================================
// 📂 OpenAPI 文档目录
// =============================================================================

// bundleLister 列出持久化的工具包，provider 为空时列出全部
type bundleLister interface {
	List(ctx context.Context, provider string) ([]apitool.Bundle, error)
}

// specImporter 把目录中的 OpenAPI 文档导入为工具，每个文件对应一个提供方
type specImporter struct {
	generator *openapi.Generator
	registry  *registry.DefaultRegistry
	store     handlers.BundleStore
	toolOpts  []apitool.Option
	logger    *zap.Logger
}

func newSpecImporter(gen *openapi.Generator, reg *registry.DefaultRegistry, store handlers.BundleStore, logger *zap.Logger, toolOpts ...apitool.Option) *specImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &specImporter{
		generator: gen,
		registry:  reg,
		store:     store,
		toolOpts:  toolOpts,
		logger:    logger.With(zap.String("component", "spec_importer")),
	}
}

// providerForFile 文件名去掉扩展名即提供方名
func providerForFile(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Import 加载文件并替换其提供方的全部工具
func (s *specImporter) Import(ctx context.Context, path string) (int, error) {
	provider := providerForFile(path)

	s.generator.Invalidate(path)
	doc, err := s.generator.LoadSpec(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	bundles, err := s.generator.GenerateBundles(doc, openapi.GenerateOptions{Provider: provider})
	if err != nil {
		return 0, fmt.Errorf("generate %s: %w", path, err)
	}

	if s.store != nil {
		if _, err := s.store.DeleteProvider(ctx, provider); err != nil {
			return 0, fmt.Errorf("clear provider %s: %w", provider, err)
		}
		if err := s.store.Save(ctx, bundles...); err != nil {
			return 0, fmt.Errorf("save provider %s: %w", provider, err)
		}
	}

	n, err := registry.RegisterBundles(s.registry, bundles, nil, s.toolOpts...)
	if err != nil {
		return n, err
	}
	s.logger.Info("provider imported",
		zap.String("provider", provider),
		zap.String("path", path),
		zap.Int("tools", n),
	)
	return n, nil
}

// Remove 移除文件对应提供方的工具
func (s *specImporter) Remove(ctx context.Context, path string) int {
	provider := providerForFile(path)
	n := s.registry.UnregisterProvider(provider)
	if s.store != nil {
		if _, err := s.store.DeleteProvider(ctx, provider); err != nil {
			s.logger.Warn("failed to delete stored provider", zap.String("provider", provider), zap.Error(err))
		}
	}
	s.logger.Info("provider removed", zap.String("provider", provider), zap.Int("tools", n))
	return n
}

// ImportAll 导入全部文件，单个文件失败不影响其余文件
func (s *specImporter) ImportAll(ctx context.Context, paths []string) int {
	total := 0
	for _, p := range paths {
		n, err := s.Import(ctx, p)
		if err != nil {
			s.logger.Warn("failed to import spec", zap.String("path", p), zap.Error(err))
			continue
		}
		total += n
	}
	return total
}

// HandleEvents 返回 DirWatcher 的变更回调
func (s *specImporter) HandleEvents(ctx context.Context) func([]config.FileEvent) {
	return func(events []config.FileEvent) {
		for _, ev := range events {
			switch ev.Op {
			case config.FileOpCreate, config.FileOpWrite:
				if _, err := s.Import(ctx, ev.Path); err != nil {
					s.logger.Warn("failed to reload spec", zap.String("path", ev.Path), zap.Error(err))
				}
			case config.FileOpRemove:
				s.Remove(ctx, ev.Path)
			}
		}
	}
}

// Restore 按提供方重新注册持久化的工具包
func (s *specImporter) Restore(ctx context.Context, lister bundleLister) (int, error) {
	bundles, err := lister.List(ctx, "")
	if err != nil {
		return 0, err
	}

	byProvider := make(map[string][]apitool.Bundle)
	var order []string
	for _, b := range bundles {
		if _, ok := byProvider[b.Provider]; !ok {
			order = append(order, b.Provider)
		}
		byProvider[b.Provider] = append(byProvider[b.Provider], b)
	}

	total := 0
	for _, provider := range order {
		n, err := registry.RegisterBundles(s.registry, byProvider[provider], nil, s.toolOpts...)
		total += n
		if err != nil {
			return total, fmt.Errorf("restore provider %s: %w", provider, err)
		}
	}
	return total, nil
}
