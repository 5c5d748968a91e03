package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/types"
)

func echo(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
	return args, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewDefaultRegistry(zaptest.NewLogger(t))

	require.NoError(t, reg.Register("echo", echo, ToolMetadata{Provider: "builtin"}))
	assert.True(t, reg.Has("echo"))

	_, meta, err := reg.Get("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", meta.Schema.Name)
	assert.Equal(t, DefaultTimeout, meta.Timeout)

	err = reg.Register("echo", echo, ToolMetadata{})
	assert.ErrorContains(t, err, "already registered")

	err = reg.Register("other", echo, ToolMetadata{Schema: types.ToolSchema{Name: "mismatch"}})
	assert.ErrorContains(t, err, "name mismatch")

	assert.Error(t, reg.Register("", echo, ToolMetadata{}))
	assert.Error(t, reg.Register("nil", nil, ToolMetadata{}))
}

func TestRegistry_GetMissing(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	_, _, err := reg.Get("ghost")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrToolNotFound))
}

func TestRegistry_ListSortedAndUnregister(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(name, echo, ToolMetadata{Provider: "p"}))
	}
	require.NoError(t, reg.Register("keep", echo, ToolMetadata{Provider: "q"}))

	var names []string
	for _, s := range reg.List() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"alpha", "keep", "mid", "zeta"}, names)

	require.NoError(t, reg.Unregister("mid"))
	assert.Error(t, reg.Unregister("mid"))

	assert.Equal(t, 2, reg.UnregisterProvider("p"))
	assert.Equal(t, 0, reg.UnregisterProvider("p"))
	assert.Len(t, reg.List(), 1)
	assert.True(t, reg.Has("keep"))
}

// ====== Executor ======

func TestExecutor_ExecuteOne(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register("echo", echo, ToolMetadata{}))
	exec := NewDefaultExecutor(reg, zaptest.NewLogger(t))

	res := exec.ExecuteOne(context.Background(), types.ToolCall{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"a":1}`)})
	assert.False(t, res.IsError())
	assert.Equal(t, "c1", res.ToolCallID)
	assert.JSONEq(t, `{"a":1}`, string(res.Result))
}

func TestExecutor_AssignsCallID(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	var seen string
	require.NoError(t, reg.Register("who", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		seen, _ = types.InvocationID(ctx)
		return json.RawMessage(`null`), nil
	}, ToolMetadata{}))

	res := NewDefaultExecutor(reg, nil).ExecuteOne(context.Background(), types.ToolCall{Name: "who"})
	require.False(t, res.IsError())
	assert.Len(t, res.ToolCallID, 36)
	assert.Equal(t, res.ToolCallID, seen)
}

func TestExecutor_Failures(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register("boom", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, types.NewError(types.ErrToolInvoke, "upstream said no")
	}, ToolMetadata{}))
	require.NoError(t, reg.Register("plain", func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("plain failure")
	}, ToolMetadata{}))
	require.NoError(t, reg.Register("slow", func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, ToolMetadata{Timeout: 20 * time.Millisecond}))
	exec := NewDefaultExecutor(reg, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call types.ToolCall
		code types.ErrorCode
		msg  string
	}{
		{"not found", types.ToolCall{Name: "ghost"}, types.ErrToolNotFound, "tool ghost not found"},
		{"bad json", types.ToolCall{Name: "boom", Arguments: json.RawMessage(`{oops`)}, types.ErrInvalidRequest, "invalid arguments"},
		{"typed error", types.ToolCall{Name: "boom"}, types.ErrToolInvoke, "upstream said no"},
		{"plain error", types.ToolCall{Name: "plain"}, "", "plain failure"},
		{"timeout", types.ToolCall{Name: "slow"}, types.ErrTimeout, "execution timeout after 20ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := exec.ExecuteOne(ctx, tt.call)
			require.True(t, res.IsError())
			assert.Equal(t, tt.code, res.Code)
			assert.Contains(t, res.Error, tt.msg)
		})
	}
}

func TestExecutor_RateLimit(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register("limited", echo, ToolMetadata{
		RateLimit: &RateLimitConfig{MaxCalls: 2, Window: time.Hour},
	}))
	exec := NewDefaultExecutor(reg, nil)

	for i := 0; i < 2; i++ {
		assert.False(t, exec.ExecuteOne(context.Background(), types.ToolCall{Name: "limited"}).IsError())
	}
	res := exec.ExecuteOne(context.Background(), types.ToolCall{Name: "limited"})
	require.True(t, res.IsError())
	assert.Equal(t, types.ErrRateLimited, res.Code)
}

func TestExecutor_ExecuteConcurrently(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	var running, peak atomic.Int32
	require.NoError(t, reg.Register("wait", func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return args, nil
	}, ToolMetadata{}))

	calls := []types.ToolCall{
		{ID: "1", Name: "wait", Arguments: json.RawMessage(`1`)},
		{ID: "2", Name: "wait", Arguments: json.RawMessage(`2`)},
		{ID: "3", Name: "wait", Arguments: json.RawMessage(`3`)},
	}
	results := NewDefaultExecutor(reg, nil).Execute(context.Background(), calls)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
		assert.Equal(t, string(calls[i].Arguments), string(r.Result))
	}
	assert.Greater(t, peak.Load(), int32(1))
}

func TestExecutor_MaxConcurrency(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	var running, peak atomic.Int32
	require.NoError(t, reg.Register("wait", func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return args, nil
	}, ToolMetadata{}))

	calls := make([]types.ToolCall, 6)
	for i := range calls {
		calls[i] = types.ToolCall{Name: "wait", Arguments: json.RawMessage(`{}`)}
	}
	executor := NewDefaultExecutor(reg, nil)
	executor.SetMaxConcurrency(2)
	results := executor.Execute(context.Background(), calls)

	require.Len(t, results, 6)
	for _, r := range results {
		assert.False(t, r.IsError())
		assert.NotEmpty(t, r.ToolCallID)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// ====== Adapters ======

func TestAPIToolAdapter(t *testing.T) {
	var gotAuth, gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		gotQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	op, err := apitool.ParseOperation(srv.URL+"/items", "get", []byte(`{
		"operationId": "listItems",
		"parameters": [{"name": "limit", "in": "query", "schema": {"type": "integer"}}]
	}`))
	require.NoError(t, err)
	tool := apitool.New(apitool.Bundle{Name: "list_items", Operation: *op},
		apitool.CredentialRecord{"auth_type": "none"}, apitool.WithHTTPClient(srv.Client()))

	fn, meta := APITool(tool, "shop")
	assert.Equal(t, "list_items", meta.Schema.Name)
	assert.Equal(t, "shop", meta.Provider)
	require.NotNil(t, meta.Validate)

	out, err := fn(context.Background(), json.RawMessage(`{"limit": 5}`))
	require.NoError(t, err)
	assert.Equal(t, `"{\"ok\": true}"`, string(out))
	assert.Equal(t, "limit=5", gotQuery.Load())
	assert.Equal(t, "", gotAuth.Load())

	ctx := WithCredentials(context.Background(), map[string]any{
		"auth_type": "api_key", "api_key_header": "Authorization",
		"api_key_value": "tok", "api_key_header_prefix": "bearer",
	})
	_, err = fn(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", gotAuth.Load())

	_, err = meta.Validate(context.Background(), map[string]any{}, nil, true)
	assert.True(t, types.HasCode(err, types.ErrCredentialsValidateFailed))

	_, err = fn(context.Background(), json.RawMessage(`[1]`))
	assert.True(t, types.HasCode(err, types.ErrInvalidRequest))
}

type stubTextTool struct {
	creds  map[string]any
	params map[string]any
}

func (s *stubTextTool) Name() string { return "stub" }
func (s *stubTextTool) Schema() types.ToolSchema {
	return types.ToolSchema{Name: "stub", Description: "stub tool", Parameters: json.RawMessage(`{}`)}
}
func (s *stubTextTool) Invoke(_ context.Context, creds map[string]any, params map[string]any) string {
	s.creds, s.params = creds, params
	return "done"
}

func TestTextAdapter(t *testing.T) {
	stub := &stubTextTool{}
	fn, meta := Text(stub, "feishu")
	assert.Equal(t, "stub tool", meta.Description)
	assert.Nil(t, meta.Validate)

	ctx := WithCredentials(context.Background(), map[string]any{"app_id": "a"})
	out, err := fn(ctx, json.RawMessage(`{"table_url":"u"}`))
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(out))
	assert.Equal(t, "a", stub.creds["app_id"])
	assert.Equal(t, "u", stub.params["table_url"])

	var text string
	require.NoError(t, json.Unmarshal(out, &text))
	assert.Equal(t, "done", types.ToolResult{Result: out}.Text())
}

func TestRegisterBundles(t *testing.T) {
	reg := NewDefaultRegistry(nil)
	require.NoError(t, reg.Register("keep", echo, ToolMetadata{Provider: "other"}))
	require.NoError(t, reg.Register("stale", echo, ToolMetadata{Provider: "shop"}))

	bundle := func(name string) apitool.Bundle {
		return apitool.Bundle{
			Name:      name,
			Provider:  "shop",
			Operation: apitool.OperationSchema{ServerURL: "http://127.0.0.1:1/" + name, Method: "GET"},
			Schema:    types.ToolSchema{Name: name, Parameters: json.RawMessage(`{"type":"object"}`)},
		}
	}

	n, err := RegisterBundles(reg, []apitool.Bundle{bundle("list"), bundle("get")}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, reg.Has("stale"))
	assert.True(t, reg.Has("keep"))
	assert.True(t, reg.Has("list"))

	_, meta, err := reg.Get("get")
	require.NoError(t, err)
	assert.Equal(t, "shop", meta.Provider)
	require.NotNil(t, meta.Validate)
	_, err = meta.Validate(context.Background(), map[string]any{"auth_type": "none"}, nil, true)
	assert.NoError(t, err)

	n, err = RegisterBundles(reg, []apitool.Bundle{bundle("dup"), bundle("dup")}, nil)
	assert.ErrorContains(t, err, "register dup")
	assert.Equal(t, 1, n)
}

func TestRegisterBundles_InvocationTimeout(t *testing.T) {
	bundle := apitool.Bundle{
		Name:      "slow",
		Provider:  "shop",
		Operation: apitool.OperationSchema{ServerURL: "http://127.0.0.1:1/slow", Method: "GET"},
		Schema:    types.ToolSchema{Name: "slow", Parameters: json.RawMessage(`{"type":"object"}`)},
	}

	reg := NewDefaultRegistry(nil)
	_, err := RegisterBundles(reg, []apitool.Bundle{bundle}, nil)
	require.NoError(t, err)
	_, meta, err := reg.Get("slow")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, meta.Timeout, 70*time.Second, "connect 10s + read 60s")
	assert.Equal(t, apitool.DefaultTimeout, meta.Timeout)

	_, err = RegisterBundles(reg, []apitool.Bundle{bundle}, nil, apitool.WithTimeout(2*time.Minute))
	require.NoError(t, err)
	_, meta, err = reg.Get("slow")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, meta.Timeout)
}
