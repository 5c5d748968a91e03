package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/config"
	"github.com/BaSui01/toolbridge/tools/registry"
)

func writeEchoSpec(t *testing.T, serverURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "echo.json")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(specTemplate, serverURL, "echoQuery")), 0o644))
	return path
}

func TestInvoke(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"q":%q,"auth":%q}`, r.URL.Query().Get("q"), r.Header.Get("Authorization"))
	}))
	defer upstream.Close()
	spec := writeEchoSpec(t, "http://unused.invalid")

	var out bytes.Buffer
	err := invoke(context.Background(), invokeOptions{
		Spec:        spec,
		Operation:   "echoQuery",
		Params:      `{"q": "hello"}`,
		Credentials: `{"auth_type": "api_key", "api_key_header": "Authorization", "api_key_header_prefix": "bearer", "api_key_value": "tok"}`,
		BaseURL:     upstream.URL,
		Timeout:     5 * time.Second,
	}, &out, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, `{"q": "hello", "auth": "Bearer tok"}`+"\n", out.String())
}

func TestInvoke_Errors(t *testing.T) {
	spec := writeEchoSpec(t, "http://127.0.0.1:1")

	tests := []struct {
		name    string
		opts    invokeOptions
		wantErr string
	}{
		{"missing spec", invokeOptions{Operation: "echoQuery"}, "--spec and --operation are required"},
		{"bad params", invokeOptions{Spec: spec, Operation: "echoQuery", Params: "[1]"}, "invalid --params"},
		{"bad credentials", invokeOptions{Spec: spec, Operation: "echoQuery", Credentials: "{"}, "invalid --credentials"},
		{"unknown operation", invokeOptions{Spec: spec, Operation: "nope"}, `operation "nope" not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Timeout = time.Second
			err := invoke(context.Background(), tt.opts, &bytes.Buffer{}, zap.NewNop())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDecodeObject(t *testing.T) {
	obj, err := decodeObject("")
	require.NoError(t, err)
	assert.Empty(t, obj)

	obj, err = decodeObject(`{"a": 1, "b": {"y": 2, "x": 3}}`)
	require.NoError(t, err)
	assert.Len(t, obj, 2)
	nested, err := json.Marshal(obj["b"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"y": 2, "x": 3}`, string(nested))
}

func TestWithDefaultCredentials(t *testing.T) {
	var seen map[string]any
	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		seen, _ = registry.CredentialsFrom(ctx)
		return json.RawMessage(`"ok"`), nil
	}
	defaults := map[string]any{"app_id": "cli_default", "app_secret": "s"}
	wrapped := withDefaultCredentials(fn, defaults)

	_, err := wrapped(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, defaults, seen)

	own := map[string]any{"app_id": "cli_own", "app_secret": "x"}
	_, err = wrapped(registry.WithCredentials(context.Background(), own), nil)
	require.NoError(t, err)
	assert.Equal(t, own, seen)
}

func TestFeishuDefaults(t *testing.T) {
	assert.Nil(t, feishuDefaults(config.FeishuConfig{}))
	assert.Nil(t, feishuDefaults(config.FeishuConfig{AppID: "cli_1"}))
	assert.Equal(t, map[string]any{"app_id": "cli_1", "app_secret": "s"},
		feishuDefaults(config.FeishuConfig{AppID: "cli_1", AppSecret: "s"}))
}
