package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/toolbridge/tools/apitool"
)

const petsSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Pets", "version": "1.0.0"},
  "servers": [{"url": "https://{region}.example.com/v1", "variables": {"region": {"default": "eu"}}}],
  "paths": {
    "/pets/{petId}": {
      "parameters": [
        {"name": "petId", "in": "path", "required": true, "schema": {"type": "string"}},
        {"name": "trace", "in": "header", "schema": {"type": "string"}}
      ],
      "get": {
        "operationId": "getPet",
        "summary": "Get a pet",
        "tags": ["pets"],
        "parameters": [
          {"name": "trace", "in": "header", "required": true, "description": "Trace id", "schema": {"type": "string"}}
        ],
        "responses": {"200": {"description": "ok"}}
      },
      "delete": {
        "tags": ["admin"],
        "responses": {"204": {"description": "gone"}}
      }
    },
    "/pets": {
      "post": {
        "operationId": "createPet",
        "description": "Create a pet",
        "tags": ["pets"],
        "requestBody": {
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}
        },
        "responses": {"201": {"description": "created"}}
      }
    }
  },
  "components": {
    "schemas": {
      "Pet": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "tag": {"type": "string"},
          "parent": {"$ref": "#/components/schemas/Pet"}
        }
      }
    }
  }
}`

func parseDoc(t *testing.T, g *Generator, spec string) *Document {
	t.Helper()
	doc, err := g.ParseSpec(context.Background(), []byte(spec))
	require.NoError(t, err)
	return doc
}

func bundleNames(bundles []apitool.Bundle) []string {
	names := make([]string, len(bundles))
	for i, b := range bundles {
		names[i] = b.Name
	}
	return names
}

func TestGenerateBundles_Pets(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, zaptest.NewLogger(t))
	doc := parseDoc(t, g, petsSpec)
	assert.Equal(t, "Pets", doc.Title)
	assert.Equal(t, "1.0.0", doc.Version)

	bundles, err := g.GenerateBundles(doc, GenerateOptions{Provider: "pets"})
	require.NoError(t, err)
	assert.Equal(t, []string{"getPet", "delete_pets_petId", "createPet"}, bundleNames(bundles))

	get := bundles[0]
	assert.Equal(t, "Get a pet", get.Description)
	assert.Equal(t, "pets", get.Provider)
	assert.Equal(t, "getPet", get.Schema.Name)
	assert.Equal(t, "GET", get.Operation.Method)
	assert.Equal(t, "https://eu.example.com/v1/pets/{petId}", get.Operation.ServerURL)
	require.Len(t, get.Operation.Parameters, 2)
	assert.Equal(t, "petId", get.Operation.Parameters[0].Name)
	assert.Equal(t, "trace", get.Operation.Parameters[1].Name)
	assert.True(t, get.Operation.Parameters[1].Required)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"petId": {"type": "string"},
			"trace": {"type": "string", "description": "Trace id"}
		},
		"required": ["petId", "trace"]
	}`, string(get.Schema.Parameters))

	del := bundles[1]
	assert.Equal(t, "DELETE /pets/{petId}", del.Description)
	require.Len(t, del.Operation.Parameters, 2)
	assert.False(t, del.Operation.Parameters[1].Required)

	create := bundles[2]
	assert.Equal(t, "Create a pet", create.Description)
	require.NotNil(t, create.Operation.Body)
	media, ok := create.Operation.Body.Primary()
	require.True(t, ok)
	assert.Equal(t, "application/json", media.ContentType)
	assert.Equal(t, []string{"name"}, media.Required)
	var fields []string
	for _, f := range media.Fields {
		fields = append(fields, f.Name)
	}
	assert.Equal(t, []string{"name", "tag", "parent"}, fields)

	var params struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	require.NoError(t, json.Unmarshal(create.Schema.Parameters, &params))
	assert.Equal(t, []string{"name"}, params.Required)
	assert.Contains(t, params.Properties, "parent")
	// The recursive reference stops one level down.
	assert.Contains(t, string(params.Properties["parent"]), `"parent":{}`)
}

func TestGenerateBundles_Options(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	doc := parseDoc(t, g, petsSpec)

	tests := []struct {
		name   string
		opts   GenerateOptions
		names  []string
		server string
	}{
		{"include tags", GenerateOptions{IncludeTags: []string{"pets"}}, []string{"getPet", "createPet"}, ""},
		{"exclude tags", GenerateOptions{ExcludeTags: []string{"pets"}}, []string{"delete_pets_petId"}, ""},
		{"prefix", GenerateOptions{Prefix: "zoo_", IncludeTags: []string{"admin"}}, []string{"zoo_delete_pets_petId"}, ""},
		{"base url", GenerateOptions{BaseURL: "http://localhost:9000/", IncludeTags: []string{"admin"}}, []string{"delete_pets_petId"}, "http://localhost:9000/pets/{petId}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundles, err := g.GenerateBundles(doc, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.names, bundleNames(bundles))
			if tt.server != "" {
				assert.Equal(t, tt.server, bundles[0].Operation.ServerURL)
			}
			for _, b := range bundles {
				assert.Equal(t, b.Name, b.Schema.Name)
			}
		})
	}
}

func TestGenerateBundles_DuplicateNames(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	doc := parseDoc(t, g, `{
	  "openapi": "3.0.0",
	  "info": {"title": "Dup", "version": "1"},
	  "paths": {
	    "/pets/{id}": {"get": {"parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}], "responses": {"200": {"description": "ok"}}}},
	    "/pets/id": {"get": {"responses": {"200": {"description": "ok"}}}},
	    "/pets/id/": {"get": {"responses": {"200": {"description": "ok"}}}}
	  }
	}`)

	bundles, err := g.GenerateBundles(doc, GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"get_pets_id", "get_pets_id_2", "get_pets_id_3"}, bundleNames(bundles))
}

func TestGenerateBundles_ServerPriority(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	doc := parseDoc(t, g, `{
	  "openapi": "3.0.0",
	  "info": {"title": "Servers", "version": "1"},
	  "servers": [{"url": "https://doc.example.com"}],
	  "paths": {
	    "/a": {
	      "servers": [{"url": "https://path.example.com"}],
	      "get": {"operationId": "a", "responses": {"200": {"description": "ok"}}},
	      "post": {"operationId": "b", "servers": [{"url": "https://op.example.com/"}], "responses": {"200": {"description": "ok"}}}
	    },
	    "/c": {"get": {"operationId": "c", "responses": {"200": {"description": "ok"}}}},
	    "/t": {"trace": {"operationId": "t", "responses": {"200": {"description": "ok"}}}}
	  }
	}`)

	bundles, err := g.GenerateBundles(doc, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, bundles, 3)

	byName := map[string]string{}
	for _, b := range bundles {
		byName[b.Name] = b.Operation.ServerURL
	}
	assert.Equal(t, "https://path.example.com/a", byName["a"])
	assert.Equal(t, "https://op.example.com/a", byName["b"])
	assert.Equal(t, "https://doc.example.com/c", byName["c"])
	assert.NotContains(t, byName, "t")
}

func TestGenerateBundles_RelativeServerFromURL(t *testing.T) {
	spec := `{
	  "openapi": "3.0.0",
	  "info": {"title": "Rel", "version": "1"},
	  "servers": [{"url": "/api"}],
	  "paths": {"/ping": {"get": {"operationId": "ping", "responses": {"200": {"description": "ok"}}}}}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(spec))
	}))
	t.Cleanup(srv.Close)

	g := NewGenerator(GeneratorConfig{HTTPClient: srv.Client()}, nil)
	doc, err := g.LoadSpec(context.Background(), srv.URL+"/specs/rel.json")
	require.NoError(t, err)

	bundles, err := g.GenerateBundles(doc, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.Equal(t, srv.URL+"/api/ping", bundles[0].Operation.ServerURL)
}

func TestGenerateBundles_Swagger2(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	doc := parseDoc(t, g, `{
	  "swagger": "2.0",
	  "info": {"title": "Legacy", "version": "2"},
	  "host": "api.legacy.io",
	  "basePath": "/v2",
	  "schemes": ["https"],
	  "paths": {
	    "/users": {
	      "post": {
	        "operationId": "addUser",
	        "consumes": ["application/json"],
	        "parameters": [
	          {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "required": ["email"], "properties": {"email": {"type": "string"}}}},
	          {"name": "dry", "in": "query", "type": "boolean"}
	        ],
	        "responses": {"200": {"description": "ok"}}
	      }
	    }
	  }
	}`)
	assert.Equal(t, "Legacy", doc.Title)

	bundles, err := g.GenerateBundles(doc, GenerateOptions{})
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	b := bundles[0]
	assert.Equal(t, "addUser", b.Name)
	assert.Equal(t, "POST", b.Operation.Method)
	assert.Equal(t, "https://api.legacy.io/v2/users", b.Operation.ServerURL)
	require.Len(t, b.Operation.Parameters, 1)
	assert.Equal(t, "dry", b.Operation.Parameters[0].Name)
	assert.Equal(t, "boolean", b.Operation.Parameters[0].Type)
	media, ok := b.Operation.Body.Primary()
	require.True(t, ok)
	assert.Equal(t, "application/json", media.ContentType)
	assert.Equal(t, []string{"email"}, media.Required)
}

func TestGenerateBundles_YAMLKeepsOrder(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	doc := parseDoc(t, g, `
openapi: 3.0.0
info:
  title: Ordered
  version: "1"
paths:
  /zebra:
    post:
      operationId: zebra
      requestBody:
        content:
          application/x-www-form-urlencoded:
            schema:
              type: object
              properties:
                zeta: {type: string}
                alpha: {type: integer, default: 3}
      responses:
        "200": {description: ok}
  /apple:
    get:
      operationId: apple
      responses:
        "200": {description: ok}
`)

	bundles, err := g.GenerateBundles(doc, GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"zebra", "apple"}, bundleNames(bundles))

	media, ok := bundles[0].Operation.Body.Primary()
	require.True(t, ok)
	require.Len(t, media.Fields, 2)
	assert.Equal(t, "zeta", media.Fields[0].Name)
	assert.Equal(t, "alpha", media.Fields[1].Name)
	assert.True(t, media.Fields[1].Schema.HasDefault)
	assert.Equal(t, json.Number("3"), media.Fields[1].Schema.Default)
}

func TestFindBundle(t *testing.T) {
	g := NewGenerator(GeneratorConfig{}, nil)
	bundles, err := g.GenerateBundles(parseDoc(t, g, petsSpec), GenerateOptions{Prefix: "p_"})
	require.NoError(t, err)

	b, ok := FindBundle(bundles, "p_getPet")
	require.True(t, ok)
	assert.Equal(t, "getPet", b.Operation.OperationID)

	b, ok = FindBundle(bundles, "createPet")
	require.True(t, ok)
	assert.Equal(t, "p_createPet", b.Name)

	_, ok = FindBundle(bundles, "missing")
	assert.False(t, ok)
}

func TestResolver(t *testing.T) {
	var root apitool.Object
	require.NoError(t, json.Unmarshal([]byte(`{
	  "defs": {
	    "a/b": {"type": "string"},
	    "t~x": {"type": "integer"},
	    "loop": {"items": {"$ref": "#/defs/loop"}}
	  }
	}`), &root))
	r := &resolver{root: root}

	tests := []struct {
		ref  string
		want string
	}{
		{"#/defs/a~1b", `{"type":"string"}`},
		{"#/defs/t~0x", `{"type":"integer"}`},
		{"#/defs/loop", `{"items":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			v, err := r.resolve(apitool.Object{}.Set("$ref", tt.ref), nil)
			require.NoError(t, err)
			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(out))
		})
	}

	_, err := r.resolve(apitool.Object{}.Set("$ref", "#/defs/missing"), nil)
	assert.ErrorContains(t, err, "unresolved reference")
	_, err = r.resolve(apitool.Object{}.Set("$ref", "other.json#/x"), nil)
	assert.ErrorContains(t, err, "unresolved reference")
}

func TestMergeParameters(t *testing.T) {
	param := func(name, in string, required bool) apitool.Object {
		return apitool.Object{}.Set("name", name).Set("in", in).Set("required", required)
	}
	pathLevel := []any{param("id", "path", true), param("q", "query", false), param("q", "header", false)}
	opLevel := []any{param("q", "query", true)}

	merged := mergeParameters(pathLevel, opLevel)
	require.Len(t, merged, 3)
	assert.Equal(t, "path", getString(merged[0].(apitool.Object), "in"))
	assert.Equal(t, "header", getString(merged[1].(apitool.Object), "in"))
	assert.Equal(t, true, valueOf(merged[2].(apitool.Object), "required"))

	assert.Equal(t, []any{}, mergeParameters(nil, nil))
}

func TestSanitizePath(t *testing.T) {
	assert.Equal(t, "pets_petId_toys", sanitizePath("/pets/{petId}/toys"))
	assert.Equal(t, "", sanitizePath("/"))
}
