package rerank

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/types"
)

const instrumentationName = "github.com/BaSui01/toolbridge/llm/rerank"

// 凭证校验使用的固定探测数据
const (
	validateQuery     = "What is the capital of the United States?"
	validateThreshold = 0.8
)

var validateDocs = []string{
	"Carson City is the capital city of the American state of Nevada. At the 2010 United States " +
		"Census, Carson City had a population of 55,274.",
	"The Commonwealth of the Northern Mariana Islands is a group of islands in the Pacific Ocean that " +
		"are a political division controlled by the United States. Its capital is Saipan.",
}

// ProviderFactory 根据凭证构造 Provider
type ProviderFactory func(creds Credentials) (Provider, error)

// Recorder 接收每次重排的观测，由 metrics.Collector 实现
type Recorder interface {
	RecordRerank(provider, model, status string, documents int, duration time.Duration)
}

// FactoryFor 返回指定后端的 ProviderFactory，支持 modelhub 与 cohere
func FactoryFor(provider string) (ProviderFactory, error) {
	return FactoryWithClient(provider, nil)
}

// FactoryWithClient 与 FactoryFor 相同，但所有 Provider 共用 client。
// client 为 nil 时每个 Provider 使用默认的安全客户端
func FactoryWithClient(provider string, client *http.Client) (ProviderFactory, error) {
	switch provider {
	case "", providerModelhub:
		return func(creds Credentials) (Provider, error) {
			cfg, err := ModelhubConfigFromCredentials(creds)
			if err != nil {
				return nil, err
			}
			cfg.HTTPClient = client
			return NewModelhubProvider(cfg), nil
		}, nil
	case providerCohere:
		return func(creds Credentials) (Provider, error) {
			cfg, err := CohereConfigFromCredentials(creds)
			if err != nil {
				return nil, err
			}
			cfg.HTTPClient = client
			return NewCohereProvider(cfg), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown rerank provider: %s", provider)
	}
}

// Model 把后端打分结果整理成宿主平台的重排结果
type Model struct {
	factory  ProviderFactory
	recorder Recorder
	tracer   trace.Tracer
	logger   *zap.Logger
}

// ModelOption 配置 Model
type ModelOption func(*Model)

// WithRecorder 上报每次重排
func WithRecorder(r Recorder) ModelOption {
	return func(m *Model) { m.recorder = r }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) ModelOption {
	return func(m *Model) { m.logger = logger }
}

// NewModel 创建重排模型
func NewModel(factory ProviderFactory, opts ...ModelOption) *Model {
	m := &Model{
		factory: factory,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.With(zap.String("component", "rerank"))
	return m
}

// Invoke 对 docs 打分并按分数降序返回。先按 topN 截断，再按 scoreThreshold 过滤。
// docs 为空时不发起请求。
func (m *Model) Invoke(ctx context.Context, model string, creds Credentials, query string, docs []string, scoreThreshold *float64, topN *int) (*ModelResult, error) {
	result := &ModelResult{Model: model, Docs: []RerankDocument{}}
	if len(docs) == 0 {
		return result, nil
	}
	if topN != nil && *topN < 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "top_n must not be negative")
	}

	ctx, span := m.tracer.Start(ctx, "rerank.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rerank.model", model),
			attribute.Int("rerank.documents", len(docs)),
		))
	defer span.End()

	provider, err := m.factory(creds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	documents := make([]Document, len(docs))
	for i, d := range docs {
		documents[i] = Document{Text: d}
	}

	start := time.Now()
	resp, err := provider.Rerank(ctx, &RerankRequest{Query: query, Documents: documents, Model: model})
	m.record(provider.Name(), model, len(docs), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("rerank failed",
			zap.String("provider", provider.Name()),
			zap.String("model", model),
			zap.Error(err))
		return nil, err
	}

	ranked := append([]RerankResult(nil), resp.Results...)
	sortResults(ranked)
	if topN != nil && *topN < len(ranked) {
		ranked = ranked[:*topN]
	}

	for _, r := range ranked {
		if scoreThreshold != nil && r.RelevanceScore < *scoreThreshold {
			continue
		}
		result.Docs = append(result.Docs, RerankDocument{
			Index: r.Index,
			Text:  docs[r.Index],
			Score: r.RelevanceScore,
		})
	}
	return result, nil
}

// ValidateCredentials 用固定探测数据调用一次 Invoke，任何错误都转换为
// CREDENTIALS_VALIDATE_FAILED。
func (m *Model) ValidateCredentials(ctx context.Context, model string, creds Credentials) error {
	threshold := validateThreshold
	if _, err := m.Invoke(ctx, model, creds, validateQuery, validateDocs, &threshold, nil); err != nil {
		return types.NewError(types.ErrCredentialsValidateFailed, err.Error()).WithCause(err)
	}
	return nil
}

func (m *Model) record(provider, model string, docs int, d time.Duration, err error) {
	if m.recorder == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		var te *types.Error
		if errors.As(err, &te) && te.Code == types.ErrCredentialInvalid {
			status = "invalid_credentials"
		}
	}
	m.recorder.RecordRerank(provider, model, status, docs, d)
}

// sortResults 按分数降序排列，同分时保持原始顺序
func sortResults(results []RerankResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].Index < results[j].Index
	})
}
