package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/BaSui01/toolbridge/internal/store"
	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/tools/registry"
	"github.com/BaSui01/toolbridge/types"
)

const inventorySpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Inventory", "version": "2.1.0"},
  "servers": [{"url": "%s"}],
  "paths": {
    "/items": {
      "get": {
        "operationId": "listItems",
        "tags": ["items"],
        "parameters": [{"name": "limit", "in": "query", "schema": {"type": "integer"}}],
        "responses": {"200": {"description": "ok"}}
      }
    },
    "/admin/reset": {
      "post": {
        "operationId": "reset",
        "tags": ["admin"],
        "responses": {"204": {"description": "done"}}
      }
    }
  }
}`

type providerEnv struct {
	handler  *ProviderHandler
	registry *registry.DefaultRegistry
	repo     *store.BundleRepository
	upstream *httptest.Server
}

func newProviderEnv(t *testing.T) *providerEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := store.NewBundleRepository(db, nil, logger)
	require.NoError(t, repo.Migrate(context.Background()))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openapi.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, inventorySpec, "http://"+r.Host)
		case "/items":
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"limit":%q,"auth":%q}`, r.URL.Query().Get("limit"), r.Header.Get("X-Api-Key"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	reg := registry.NewDefaultRegistry(logger)
	gen := openapi.NewGenerator(openapi.GeneratorConfig{HTTPClient: upstream.Client()}, logger)
	return &providerEnv{
		handler:  NewProviderHandler(gen, reg, repo, logger, apitool.WithHTTPClient(upstream.Client())),
		registry: reg,
		repo:     repo,
		upstream: upstream,
	}
}

func (e *providerEnv) importBody(t *testing.T, extra map[string]any) string {
	t.Helper()
	body := map[string]any{
		"provider": "inventory",
		"spec":     fmt.Sprintf(inventorySpec, e.upstream.URL),
	}
	for k, v := range extra {
		body[k] = v
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return string(data)
}

func decodeImport(t *testing.T, w *httptest.ResponseRecorder) ImportOpenAPIResponse {
	t.Helper()
	var resp struct {
		Success bool                  `json:"success"`
		Data    ImportOpenAPIResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestProviderHandler_ImportAndInvoke(t *testing.T) {
	env := newProviderEnv(t)
	ctx := context.Background()

	w := httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, postJSON("/api/v1/providers/openapi", env.importBody(t, map[string]any{
		"credentials": map[string]any{
			"auth_type": "api_key", "api_key_header": "X-Api-Key", "api_key_value": "secret",
		},
	})))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decodeImport(t, w)
	assert.Equal(t, "Inventory", data.Title)
	assert.Equal(t, "2.1.0", data.Version)
	assert.Equal(t, []string{"listItems", "reset"}, data.Tools)

	stored, err := env.repo.List(ctx, "inventory")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	res := registry.NewDefaultExecutor(env.registry, nil).ExecuteOne(ctx, types.ToolCall{
		Name:      "listItems",
		Arguments: json.RawMessage(`{"limit": 3}`),
	})
	require.False(t, res.IsError(), res.Error)
	assert.Equal(t, `{"limit": "3", "auth": "secret"}`, res.Text())
}

func TestProviderHandler_ImportFromURLWithFilters(t *testing.T) {
	env := newProviderEnv(t)

	body, err := json.Marshal(map[string]any{
		"provider":     "inventory",
		"url":          env.upstream.URL + "/openapi.json",
		"exclude_tags": []string{"admin"},
		"prefix":       "inv_",
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, postJSON("/api/v1/providers/openapi", string(body)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []string{"inv_listItems"}, decodeImport(t, w).Tools)
	assert.True(t, env.registry.Has("inv_listItems"))
	assert.False(t, env.registry.Has("inv_reset"))
}

func TestProviderHandler_ReimportReplacesTools(t *testing.T) {
	env := newProviderEnv(t)
	ctx := context.Background()

	w := httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, postJSON("/api/v1/providers/openapi", env.importBody(t, nil)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, postJSON("/api/v1/providers/openapi", env.importBody(t, map[string]any{
		"include_tags": []string{"admin"},
	})))
	require.Equal(t, http.StatusOK, w.Code)

	assert.False(t, env.registry.Has("listItems"))
	assert.True(t, env.registry.Has("reset"))

	stored, err := env.repo.List(ctx, "inventory")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "reset", stored[0].Name)
}

func TestProviderHandler_ImportErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing provider", `{"spec":"{}"}`, http.StatusBadRequest},
		{"missing source", `{"provider":"p"}`, http.StatusBadRequest},
		{"both sources", `{"provider":"p","spec":"{}","url":"https://x"}`, http.StatusBadRequest},
		{"local url", `{"provider":"p","url":"/etc/passwd"}`, http.StatusBadRequest},
		{"invalid document", `{"provider":"p","spec":"not: [valid"}`, http.StatusBadRequest},
		{"no operations", `{"provider":"p","spec":"{\"openapi\":\"3.0.0\",\"info\":{\"title\":\"t\",\"version\":\"1\"},\"paths\":{}}"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newProviderEnv(t)
			w := httptest.NewRecorder()
			env.handler.HandleOpenAPI(w, postJSON("/api/v1/providers/openapi", tt.body))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Empty(t, env.registry.List())
		})
	}
}

func TestProviderHandler_Delete(t *testing.T) {
	env := newProviderEnv(t)
	ctx := context.Background()

	w := httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, postJSON("/api/v1/providers/openapi", env.importBody(t, nil)))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, httptest.NewRequest(http.MethodDelete, "/api/v1/providers/openapi?provider=inventory", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, env.registry.List())

	stored, err := env.repo.List(ctx, "inventory")
	require.NoError(t, err)
	assert.Empty(t, stored)

	w = httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, httptest.NewRequest(http.MethodDelete, "/api/v1/providers/openapi?provider=inventory", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, httptest.NewRequest(http.MethodDelete, "/api/v1/providers/openapi", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	env.handler.HandleOpenAPI(w, httptest.NewRequest(http.MethodGet, "/api/v1/providers/openapi", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "POST, DELETE", w.Header().Get("Allow"))
}

func TestProviderHandler_WithoutStore(t *testing.T) {
	env := newProviderEnv(t)
	handler := NewProviderHandler(openapi.NewGenerator(openapi.GeneratorConfig{}, nil), env.registry, nil, nil)

	w := httptest.NewRecorder()
	handler.HandleOpenAPI(w, postJSON("/api/v1/providers/openapi", env.importBody(t, nil)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.registry.Has("listItems"))
}
