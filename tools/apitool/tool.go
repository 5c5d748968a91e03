package apitool

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/types"
)

const instrumentationName = "github.com/BaSui01/toolbridge/tools/apitool"

// Recorder receives one observation per upstream call.
type Recorder interface {
	RecordToolInvocation(tool, method string, statusCode int, outcome string, duration time.Duration)
}

// Invocation outcomes reported to the Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// DefaultTimeout bounds a whole invocation when no WithTimeout is given:
// the default connect timeout plus the default read timeout.
const DefaultTimeout = 10*time.Second + 60*time.Second

// Tool invokes one OpenAPI operation. It holds only immutable data and a
// shared transport, so concurrent Invoke calls are safe.
type Tool struct {
	bundle      Bundle
	credentials CredentialRecord
	transport   Transport
	recorder    Recorder
	timeout     time.Duration
	tracer      trace.Tracer
	logger      *zap.Logger
}

// Option configures a Tool.
type Option func(*Tool)

// WithTransport replaces the outbound transport.
func WithTransport(t Transport) Option {
	return func(tool *Tool) { tool.transport = t }
}

// WithHTTPClient sends requests through client.
func WithHTTPClient(client *http.Client) Option {
	return func(tool *Tool) { tool.transport = NewHTTPTransport(client) }
}

// WithTimeout sets the overall budget a host should allow one invocation,
// normally connect timeout plus read timeout.
func WithTimeout(d time.Duration) Option {
	return func(tool *Tool) { tool.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(tool *Tool) { tool.logger = logger }
}

// WithRecorder reports every upstream call to r.
func WithRecorder(r Recorder) Option {
	return func(tool *Tool) { tool.recorder = r }
}

// New creates a Tool for bundle authenticated with creds.
func New(bundle Bundle, creds CredentialRecord, opts ...Option) *Tool {
	t := &Tool{
		bundle:      bundle,
		credentials: creds.Clone(),
		tracer:      otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.transport == nil {
		t.transport = NewHTTPTransport(nil)
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	t.logger = t.logger.With(
		zap.String("component", "api_tool"),
		zap.String("tool", bundle.Name),
	)
	return t
}

// Name returns the tool name.
func (t *Tool) Name() string { return t.bundle.Name }

// Timeout returns the invocation budget.
func (t *Tool) Timeout() time.Duration { return t.timeout }

// Bundle returns the operation bundle.
func (t *Tool) Bundle() Bundle { return t.bundle }

// Fork returns a Tool sharing the bundle and transport but authenticated
// with creds.
func (t *Tool) Fork(creds CredentialRecord) *Tool {
	clone := *t
	clone.credentials = creds.Clone()
	return &clone
}

// Invoke assembles the request, performs exactly one HTTP call and returns
// the normalised response text. No request is sent when assembly fails.
func (t *Tool) Invoke(ctx context.Context, params Parameters) (string, error) {
	ctx, span := t.tracer.Start(ctx, "apitool.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("tool.name", t.bundle.Name),
			attribute.String("tool.operation_id", t.bundle.Operation.OperationID),
			attribute.String("http.request.method", t.bundle.Operation.Method),
		))
	defer span.End()

	text, err := t.invoke(ctx, t.credentials, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

// ValidateCredentials assembles a request with creds and, unless formatOnly
// is set, performs it. Every failure is reported as a credentials
// validation error wrapping the cause.
func (t *Tool) ValidateCredentials(ctx context.Context, creds CredentialRecord, params Parameters, formatOnly bool) (string, error) {
	req, err := t.assemble(creds, params)
	if err != nil {
		return "", newValidateFailedError(err)
	}
	if formatOnly {
		return "", nil
	}
	text, err := t.dispatch(ctx, req)
	if err != nil {
		return "", newValidateFailedError(err)
	}
	return text, nil
}

func (t *Tool) invoke(ctx context.Context, creds CredentialRecord, params Parameters) (string, error) {
	req, err := t.assemble(creds, params)
	if err != nil {
		t.logger.Debug("request assembly failed", zap.Error(err))
		return "", err
	}
	return t.dispatch(ctx, req)
}

func (t *Tool) assemble(creds CredentialRecord, params Parameters) (*AssembledRequest, error) {
	headers, err := creds.AuthHeaders()
	if err != nil {
		return nil, err
	}
	return Assemble(&t.bundle.Operation, params, headers)
}

func (t *Tool) dispatch(ctx context.Context, req *AssembledRequest) (string, error) {
	method, err := normalizeMethod(req.Method)
	if err != nil {
		return "", err
	}
	req.Method = method

	start := time.Now()
	resp, err := t.transport.Do(ctx, req)
	duration := time.Since(start)
	if err != nil {
		t.record(method, 0, OutcomeError, duration)
		t.logger.Warn("upstream request failed",
			zap.String("method", method),
			zap.Duration("duration", duration),
			zap.Error(err))
		if _, ok := types.AsError(err); ok {
			return "", err
		}
		return "", newTransportError(err)
	}

	text, err := NormalizeResponse(resp)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	t.record(method, resp.StatusCode, outcome, duration)
	t.logger.Debug("upstream request completed",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration))
	return text, err
}

func (t *Tool) record(method string, status int, outcome string, d time.Duration) {
	if t.recorder != nil {
		t.recorder.RecordToolInvocation(t.bundle.Name, method, status, outcome, d)
	}
}

// Describe returns the LLM facing schema for the tool.
func (t *Tool) Describe() types.ToolSchema {
	schema := t.bundle.Schema
	if schema.Name == "" {
		schema.Name = t.bundle.Name
	}
	if schema.Description == "" {
		schema.Description = t.bundle.Description
	}
	return schema
}
