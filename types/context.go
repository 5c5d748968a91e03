package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyRequestID    contextKey = "request_id"
	keyTenantID     contextKey = "tenant_id"
	keyUserID       contextKey = "user_id"
	keyInvocationID contextKey = "invocation_id"
)

// WithRequestID adds the inbound request ID to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID extracts the inbound request ID from context.
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithTenantID adds tenant ID to context.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, keyTenantID, tenantID)
}

// TenantID extracts tenant ID from context.
func TenantID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTenantID).(string)
	return v, ok && v != ""
}

// WithUserID adds user ID to context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

// UserID extracts user ID from context.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)
	return v, ok && v != ""
}

// WithInvocationID tags a single tool invocation.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyInvocationID, id)
}

// InvocationID extracts the tool invocation ID from context.
func InvocationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyInvocationID).(string)
	return v, ok && v != ""
}
