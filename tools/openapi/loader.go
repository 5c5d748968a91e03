package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/toolbridge/internal/tlsutil"
	"github.com/BaSui01/toolbridge/tools/apitool"
)

// maxSpecSize bounds documents fetched over HTTP.
const maxSpecSize = 16 << 20

// Document is a loaded OpenAPI 3 description. Spec is the validated model;
// the ordered tree behind it keeps declaration order for operations.
type Document struct {
	Title   string
	Version string
	Spec    *openapi3.T

	raw    apitool.Object
	source *url.URL
}

// Generator generates tools from OpenAPI specifications.
type Generator struct {
	httpClient     *http.Client
	skipValidation bool
	allowExternal  bool
	logger         *zap.Logger

	cache map[string]*Document
	mu    sync.RWMutex
}

// GeneratorConfig configures the generator.
type GeneratorConfig struct {
	Timeout time.Duration
	// HTTPClient fetches remote documents. Defaults to a hardened client.
	HTTPClient *http.Client
	// SkipValidation accepts documents that fail OpenAPI validation.
	SkipValidation bool
	// AllowExternalRefs lets documents reference other files or URLs.
	// Operations using them lose declaration order.
	AllowExternalRefs bool
}

// NewGenerator creates a new OpenAPI tool generator.
func NewGenerator(config GeneratorConfig, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := config.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(timeout)
	}
	return &Generator{
		httpClient:     client,
		skipValidation: config.SkipValidation,
		allowExternal:  config.AllowExternalRefs,
		logger:         logger.With(zap.String("component", "openapi_generator")),
		cache:          make(map[string]*Document),
	}
}

// LoadSpec loads an OpenAPI document from a URL or file path. Results are
// cached per source until Invalidate is called.
func (g *Generator) LoadSpec(ctx context.Context, source string) (*Document, error) {
	g.mu.RLock()
	if doc, ok := g.cache[source]; ok {
		g.mu.RUnlock()
		return doc, nil
	}
	g.mu.RUnlock()

	var (
		data     []byte
		location *url.URL
		err      error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		location, err = url.Parse(source)
		if err != nil {
			return nil, fmt.Errorf("invalid spec URL: %w", err)
		}
		data, err = g.fetchFromURL(ctx, source)
	} else {
		var abs string
		abs, err = filepath.Abs(source)
		if err == nil {
			location = &url.URL{Path: filepath.ToSlash(abs)}
			data, err = os.ReadFile(abs)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load spec: %w", err)
	}

	doc, err := g.parse(ctx, data, location)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[source] = doc
	g.mu.Unlock()
	return doc, nil
}

// ParseSpec parses an OpenAPI 3 or Swagger 2 document given as JSON or YAML.
func (g *Generator) ParseSpec(ctx context.Context, data []byte) (*Document, error) {
	return g.parse(ctx, data, nil)
}

// Invalidate drops the cached document for source.
func (g *Generator) Invalidate(source string) {
	g.mu.Lock()
	delete(g.cache, source)
	g.mu.Unlock()
}

func (g *Generator) fetchFromURL(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxSpecSize))
}

func (g *Generator) parse(ctx context.Context, data []byte, location *url.URL) (*Document, error) {
	jsonData, err := toJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse spec: %w", err)
	}
	var raw apitool.Object
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse spec: %w", err)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = g.allowExternal

	var spec *openapi3.T
	if _, ok := raw.Get("swagger"); ok {
		var v2 openapi2.T
		if err := json.Unmarshal(jsonData, &v2); err != nil {
			return nil, fmt.Errorf("failed to parse swagger 2 spec: %w", err)
		}
		if spec, err = openapi2conv.ToV3WithLoader(&v2, loader, location); err != nil {
			return nil, fmt.Errorf("failed to convert swagger 2 spec: %w", err)
		}
		if raw, err = marshalOrdered(spec); err != nil {
			return nil, err
		}
	} else {
		if location != nil {
			spec, err = loader.LoadFromDataWithPath(jsonData, location)
		} else {
			spec, err = loader.LoadFromData(jsonData)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load spec: %w", err)
		}
		if hasExternalRefs(raw) {
			spec.InternalizeRefs(ctx, nil)
			if raw, err = marshalOrdered(spec); err != nil {
				return nil, err
			}
		}
	}

	if !g.skipValidation {
		if err := spec.Validate(ctx); err != nil {
			return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
		}
	}

	doc := &Document{Spec: spec, raw: raw, source: location}
	if spec.Info != nil {
		doc.Title, doc.Version = spec.Info.Title, spec.Info.Version
	}
	paths := 0
	if spec.Paths != nil {
		paths = spec.Paths.Len()
	}
	g.logger.Info("loaded OpenAPI spec",
		zap.String("title", doc.Title),
		zap.String("version", doc.Version),
		zap.Int("paths", paths),
	)
	return doc, nil
}

func marshalOrdered(spec *openapi3.T) (apitool.Object, error) {
	data, err := spec.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode spec: %w", err)
	}
	var raw apitool.Object
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to encode spec: %w", err)
	}
	return raw, nil
}

func hasExternalRefs(v any) bool {
	switch x := v.(type) {
	case apitool.Object:
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			if ref, ok := val.(string); ok && k == "$ref" && !strings.HasPrefix(ref, "#") {
				return true
			}
			if hasExternalRefs(val) {
				return true
			}
		}
	case []any:
		for _, e := range x {
			if hasExternalRefs(e) {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// YAML
// =============================================================================

// toJSON converts YAML input to JSON keeping mapping order. JSON input is
// returned unchanged.
func toJSON(data []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	if trimmed[0] == '{' {
		return trimmed, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	v, err := yamlValue(&node, 0)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

const maxYAMLDepth = 256

func yamlValue(n *yaml.Node, depth int) (any, error) {
	if depth > maxYAMLDepth {
		return nil, fmt.Errorf("yaml nesting exceeds %d levels", maxYAMLDepth)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0], depth+1)
	case yaml.AliasNode:
		return yamlValue(n.Alias, depth+1)
	case yaml.MappingNode:
		obj := apitool.Object{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			v, err := yamlValue(n.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			obj = obj.Set(key, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlValue(c, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			err := n.Decode(&b)
			return b, err
		case "!!int":
			var i int64
			if err := n.Decode(&i); err != nil {
				return nil, err
			}
			return json.Number(fmt.Sprint(i)), nil
		case "!!float":
			var f float64
			err := n.Decode(&f)
			return f, err
		}
		return n.Value, nil
	}
	return nil, fmt.Errorf("unsupported yaml node kind %d", n.Kind)
}
