package openapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/tools/apitool"
	"github.com/BaSui01/toolbridge/types"
)

// GenerateOptions configures tool generation.
type GenerateOptions struct {
	BaseURL     string
	IncludeTags []string
	ExcludeTags []string
	Prefix      string
	Provider    string
}

// methodOrder is the order operations of one path are emitted in.
var methodOrder = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace"}

// supportedMethods are the verbs the invoker can send.
var supportedMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true,
}

const maxRefDepth = 64

// GenerateBundles converts every operation of doc into an apitool.Bundle.
// Local references are inlined before parsing. Paths keep document order
// and names are unique.
func (g *Generator) GenerateBundles(doc *Document, opts GenerateOptions) ([]apitool.Bundle, error) {
	pathsValue, _ := doc.raw.Get("paths")
	paths, _ := pathsValue.(apitool.Object)

	r := &resolver{root: doc.raw}
	seen := make(map[string]int)
	var bundles []apitool.Bundle

	for _, path := range paths.Keys() {
		itemValue, _ := paths.Get(path)
		resolved, err := r.resolve(itemValue, nil)
		if err != nil {
			return nil, fmt.Errorf("path %s: %w", path, err)
		}
		item, ok := resolved.(apitool.Object)
		if !ok {
			continue
		}

		var kinItem *openapi3.PathItem
		if doc.Spec.Paths != nil {
			kinItem = doc.Spec.Paths.Value(path)
		}

		for _, method := range methodOrder {
			opValue, ok := item.Get(method)
			if !ok {
				continue
			}
			op, ok := opValue.(apitool.Object)
			if !ok {
				continue
			}
			if !supportedMethods[method] {
				g.logger.Warn("skipping operation with unsupported method",
					zap.String("path", path), zap.String("method", method))
				continue
			}

			tags := stringList(op, "tags")
			if len(opts.IncludeTags) > 0 && !hasAnyTag(tags, opts.IncludeTags) {
				continue
			}
			if len(opts.ExcludeTags) > 0 && hasAnyTag(tags, opts.ExcludeTags) {
				continue
			}

			var kinOp *openapi3.Operation
			if kinItem != nil {
				kinOp = kinItem.GetOperation(strings.ToUpper(method))
			}
			server := opts.BaseURL
			if server == "" {
				server = doc.serverURL(kinItem, kinOp)
			}

			bundle, err := g.operationToBundle(path, method, item, op, server, opts)
			if err != nil {
				return nil, err
			}
			if n := seen[bundle.Name]; n > 0 {
				bundle.Name = fmt.Sprintf("%s_%d", bundle.Name, n+1)
				bundle.Schema.Name = bundle.Name
			}
			seen[bundle.Name]++
			bundles = append(bundles, bundle)
		}
	}

	g.logger.Info("generated tools", zap.Int("count", len(bundles)), zap.String("provider", opts.Provider))
	return bundles, nil
}

func (g *Generator) operationToBundle(path, method string, item, op apitool.Object, server string, opts GenerateOptions) (apitool.Bundle, error) {
	fail := func(err error) (apitool.Bundle, error) {
		return apitool.Bundle{}, fmt.Errorf("%s %s: %w", strings.ToUpper(method), path, err)
	}

	params := mergeParameters(valueOf(item, "parameters"), valueOf(op, "parameters"))
	opObj := append(apitool.Object{}, op...).Set("parameters", params)

	fragment, err := json.Marshal(opObj)
	if err != nil {
		return fail(err)
	}
	schema, err := apitool.ParseOperation(strings.TrimRight(server, "/")+path, method, fragment)
	if err != nil {
		return fail(err)
	}

	name := getString(opObj, "operationId")
	if name == "" {
		name = fmt.Sprintf("%s_%s", method, sanitizePath(path))
	}
	name = opts.Prefix + name

	description := strings.TrimSpace(getString(opObj, "summary"))
	if description == "" {
		description = strings.TrimSpace(getString(opObj, "description"))
	}
	if description == "" {
		description = fmt.Sprintf("%s %s", strings.ToUpper(method), path)
	}

	parameters, err := toolParameters(schema, params, opObj)
	if err != nil {
		return fail(err)
	}

	return apitool.Bundle{
		Name:        name,
		Description: description,
		Provider:    opts.Provider,
		Operation:   *schema,
		Schema: types.ToolSchema{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}, nil
}

// toolParameters builds the JSON schema shown to the model: operation
// parameters and top-level body properties side by side.
func toolParameters(schema *apitool.OperationSchema, params []any, op apitool.Object) (json.RawMessage, error) {
	properties := apitool.Object{}
	for _, p := range params {
		obj, ok := p.(apitool.Object)
		if !ok {
			continue
		}
		name := getString(obj, "name")
		if name == "" {
			continue
		}
		prop, _ := valueOf(obj, "schema").(apitool.Object)
		prop = append(apitool.Object{}, prop...)
		if _, ok := prop.Get("type"); !ok {
			if _, ok := prop.Get("anyOf"); !ok {
				prop = prop.Set("type", "string")
			}
		}
		if d := getString(obj, "description"); d != "" {
			if _, ok := prop.Get("description"); !ok {
				prop = prop.Set("description", d)
			}
		}
		properties = properties.Set(name, prop)
	}

	if body, ok := valueOf(op, "requestBody").(apitool.Object); ok {
		if content, ok := valueOf(body, "content").(apitool.Object); ok && len(content.Keys()) > 0 {
			media, _ := valueOf(content, content.Keys()[0]).(apitool.Object)
			bodySchema, _ := valueOf(media, "schema").(apitool.Object)
			if props, ok := valueOf(bodySchema, "properties").(apitool.Object); ok {
				for _, k := range props.Keys() {
					v, _ := props.Get(k)
					properties = properties.Set(k, v)
				}
			}
		}
	}

	out := apitool.Object{}.Set("type", "object").Set("properties", properties)
	if required := dedupe(schema.RequiredNames()); len(required) > 0 {
		list := make([]any, len(required))
		for i, r := range required {
			list[i] = r
		}
		out = out.Set("required", list)
	}
	return json.Marshal(out)
}

// mergeParameters keeps path-level parameters the operation does not
// override by name and location.
func mergeParameters(pathLevel, opLevel any) []any {
	ops, _ := opLevel.([]any)
	type key struct{ name, in string }
	overridden := make(map[key]bool, len(ops))
	for _, p := range ops {
		if obj, ok := p.(apitool.Object); ok {
			overridden[key{getString(obj, "name"), getString(obj, "in")}] = true
		}
	}

	var merged []any
	if common, ok := pathLevel.([]any); ok {
		for _, p := range common {
			obj, ok := p.(apitool.Object)
			if ok && overridden[key{getString(obj, "name"), getString(obj, "in")}] {
				continue
			}
			merged = append(merged, p)
		}
	}
	merged = append(merged, ops...)
	if merged == nil {
		merged = []any{}
	}
	return merged
}

// =============================================================================
// Servers
// =============================================================================

// serverURL picks the most specific server and fills in variable defaults.
// Relative URLs are resolved against the document location.
func (d *Document) serverURL(item *openapi3.PathItem, op *openapi3.Operation) string {
	var servers openapi3.Servers
	switch {
	case op != nil && op.Servers != nil && len(*op.Servers) > 0:
		servers = *op.Servers
	case item != nil && len(item.Servers) > 0:
		servers = item.Servers
	default:
		servers = d.Spec.Servers
	}
	if len(servers) == 0 || servers[0] == nil {
		return ""
	}

	s := servers[0]
	u := s.URL
	for name, v := range s.Variables {
		if v != nil {
			u = strings.ReplaceAll(u, "{"+name+"}", v.Default)
		}
	}
	if d.source != nil && (d.source.Scheme == "http" || d.source.Scheme == "https") {
		if ref, err := url.Parse(u); err == nil && !ref.IsAbs() {
			u = d.source.ResolveReference(ref).String()
		}
	}
	return u
}

// =============================================================================
// $ref
// =============================================================================

// resolver inlines local references of the ordered document tree.
type resolver struct {
	root apitool.Object
}

func (r *resolver) resolve(v any, stack []string) (any, error) {
	switch x := v.(type) {
	case apitool.Object:
		if refValue, ok := x.Get("$ref"); ok {
			ref, _ := refValue.(string)
			for _, s := range stack {
				if s == ref {
					// Recursive schema: stop expanding.
					return apitool.Object{}, nil
				}
			}
			if len(stack) >= maxRefDepth {
				return nil, fmt.Errorf("reference chain deeper than %d at %s", maxRefDepth, ref)
			}
			target, err := r.lookup(ref)
			if err != nil {
				return nil, err
			}
			return r.resolve(target, append(stack, ref))
		}
		out := make(apitool.Object, 0, len(x))
		for _, k := range x.Keys() {
			val, _ := x.Get(k)
			rv, err := r.resolve(val, stack)
			if err != nil {
				return nil, err
			}
			out = out.Set(k, rv)
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			rv, err := r.resolve(e, stack)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	}
	return v, nil
}

func (r *resolver) lookup(ref string) (any, error) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, fmt.Errorf("unresolved reference %q", ref)
	}
	var cur any = r.root
	for _, part := range strings.Split(ref[2:], "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if decoded, err := url.PathUnescape(part); err == nil {
			part = decoded
		}
		obj, ok := cur.(apitool.Object)
		if !ok {
			return nil, fmt.Errorf("unresolved reference %q", ref)
		}
		if cur, ok = obj.Get(part); !ok {
			return nil, fmt.Errorf("unresolved reference %q", ref)
		}
	}
	return cur, nil
}

// =============================================================================
// 辅助函数
// =============================================================================

// FindBundle returns the bundle whose name or operation id is key.
func FindBundle(bundles []apitool.Bundle, key string) (apitool.Bundle, bool) {
	for _, b := range bundles {
		if b.Name == key || b.Operation.OperationID == key {
			return b, true
		}
	}
	return apitool.Bundle{}, false
}

func valueOf(obj apitool.Object, key string) any {
	v, _ := obj.Get(key)
	return v
}

func getString(obj apitool.Object, key string) string {
	s, _ := valueOf(obj, key).(string)
	return s
}

func stringList(obj apitool.Object, key string) []string {
	list, _ := valueOf(obj, key).([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func hasAnyTag(tags, targets []string) bool {
	tagSet := make(map[string]bool)
	for _, t := range tags {
		tagSet[t] = true
	}
	for _, t := range targets {
		if tagSet[t] {
			return true
		}
	}
	return false
}

func sanitizePath(path string) string {
	path = strings.ReplaceAll(path, "/", "_")
	path = strings.ReplaceAll(path, "{", "")
	path = strings.ReplaceAll(path, "}", "")
	path = strings.Trim(path, "_")
	return path
}
