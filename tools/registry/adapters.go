package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/types"
)

type credentialsKey struct{}

// WithCredentials attaches per-call credentials. Adapted tools prefer them
// over the credentials they were built with.
func WithCredentials(ctx context.Context, creds map[string]any) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFrom returns the credentials attached with WithCredentials.
func CredentialsFrom(ctx context.Context) (map[string]any, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(map[string]any)
	return creds, ok && creds != nil
}

// decodeArgs parses a JSON object keeping nested key order. Empty input
// yields no parameters.
func decodeArgs(args json.RawMessage) (map[string]any, error) {
	params := map[string]any{}
	if len(args) == 0 {
		return params, nil
	}
	var obj apitool.Object
	if err := json.Unmarshal(args, &obj); err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("invalid arguments: %v", err)).WithCause(err)
	}
	for _, k := range obj.Keys() {
		params[k], _ = obj.Get(k)
	}
	return params, nil
}

func textResult(text string) (json.RawMessage, error) {
	return json.Marshal(text)
}

// ====== OpenAPI 工具 ======

// APITool adapts an OpenAPI operation tool.
func APITool(tool *apitool.Tool, provider string) (ToolFunc, ToolMetadata) {
	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		params, err := decodeArgs(args)
		if err != nil {
			return nil, err
		}
		t := tool
		if creds, ok := CredentialsFrom(ctx); ok {
			t = tool.Fork(creds)
		}
		text, err := t.Invoke(ctx, params)
		if err != nil {
			return nil, err
		}
		return textResult(text)
	}

	validate := func(ctx context.Context, creds map[string]any, args json.RawMessage, formatOnly bool) (string, error) {
		params, err := decodeArgs(args)
		if err != nil {
			return "", err
		}
		return tool.ValidateCredentials(ctx, creds, params, formatOnly)
	}

	schema := tool.Describe()
	return fn, ToolMetadata{
		Schema:      schema,
		Provider:    provider,
		Description: schema.Description,
		Timeout:     tool.Timeout(),
		Validate:    validate,
	}
}

// ====== 文本工具 ======

// TextTool never fails; problems come back as text messages.
type TextTool interface {
	Name() string
	Schema() types.ToolSchema
	Invoke(ctx context.Context, creds map[string]any, params map[string]any) string
}

// Text adapts a TextTool. Credentials must be attached to the context.
func Text(tool TextTool, provider string) (ToolFunc, ToolMetadata) {
	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		params, err := decodeArgs(args)
		if err != nil {
			return nil, err
		}
		creds, _ := CredentialsFrom(ctx)
		return textResult(tool.Invoke(ctx, creds, params))
	}

	schema := tool.Schema()
	return fn, ToolMetadata{
		Schema:      schema,
		Provider:    provider,
		Description: schema.Description,
	}
}

// RegisterBundles registers one tool per bundle, replacing whatever the
// bundles' providers registered before. creds become the tools' default
// credentials; nil means no authentication.
func RegisterBundles(reg *DefaultRegistry, bundles []apitool.Bundle, creds apitool.CredentialRecord, opts ...apitool.Option) (int, error) {
	if creds == nil {
		creds = apitool.CredentialRecord{apitool.CredentialAuthType: apitool.AuthTypeNone}
	}

	replaced := make(map[string]bool)
	for _, b := range bundles {
		if !replaced[b.Provider] {
			replaced[b.Provider] = true
			reg.UnregisterProvider(b.Provider)
		}
	}

	for i, b := range bundles {
		fn, meta := APITool(apitool.New(b, creds, opts...), b.Provider)
		if err := reg.Register(b.Name, fn, meta); err != nil {
			return i, fmt.Errorf("register %s: %w", b.Name, err)
		}
	}
	return len(bundles), nil
}
