package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/BaSui01/toolbridge"

// Instruments mirrors tool and rerank invocations onto OTel metric
// instruments so they reach the OTLP collector alongside traces.
// It satisfies apitool.Recorder and rerank.Recorder.
type Instruments struct {
	toolCalls      metric.Int64Counter
	toolDuration   metric.Float64Histogram
	rerankCalls    metric.Int64Counter
	rerankDuration metric.Float64Histogram
	rerankDocs     metric.Int64Histogram
}

// NewInstruments 从全局 MeterProvider 创建仪表；遥测关闭时为 noop
func NewInstruments() (*Instruments, error) {
	return NewInstrumentsFrom(otel.GetMeterProvider())
}

// NewInstrumentsFrom 从指定 MeterProvider 创建仪表
func NewInstrumentsFrom(mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(meterName)
	in := &Instruments{}
	var err error

	if in.toolCalls, err = meter.Int64Counter("toolbridge.tool.invocations",
		metric.WithDescription("Outbound API tool invocations")); err != nil {
		return nil, fmt.Errorf("create tool counter: %w", err)
	}
	if in.toolDuration, err = meter.Float64Histogram("toolbridge.tool.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Outbound API tool invocation latency")); err != nil {
		return nil, fmt.Errorf("create tool histogram: %w", err)
	}
	if in.rerankCalls, err = meter.Int64Counter("toolbridge.rerank.requests",
		metric.WithDescription("Rerank requests")); err != nil {
		return nil, fmt.Errorf("create rerank counter: %w", err)
	}
	if in.rerankDuration, err = meter.Float64Histogram("toolbridge.rerank.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Rerank request latency")); err != nil {
		return nil, fmt.Errorf("create rerank histogram: %w", err)
	}
	if in.rerankDocs, err = meter.Int64Histogram("toolbridge.rerank.documents",
		metric.WithDescription("Documents per rerank request")); err != nil {
		return nil, fmt.Errorf("create rerank documents histogram: %w", err)
	}
	return in, nil
}

// RecordToolInvocation 记录一次工具调用
func (in *Instruments) RecordToolInvocation(tool, method string, statusCode int, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("http.method", method),
		attribute.Int("http.status_code", statusCode),
		attribute.String("outcome", outcome),
	)
	ctx := context.Background()
	in.toolCalls.Add(ctx, 1, attrs)
	in.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRerank 记录一次重排序
func (in *Instruments) RecordRerank(provider, model, status string, documents int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("status", status),
	)
	ctx := context.Background()
	in.rerankCalls.Add(ctx, 1, attrs)
	in.rerankDuration.Record(ctx, duration.Seconds(), attrs)
	in.rerankDocs.Record(ctx, int64(documents), attrs)
}
