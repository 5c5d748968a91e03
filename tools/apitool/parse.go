package apitool

import (
	"fmt"
	"strings"
)

// ParseOperation builds an OperationSchema from the JSON text of one OpenAPI
// operation object. Declaration order of parameters, content types and body
// properties is preserved. References are expected to be resolved already.
func ParseOperation(serverURL, method string, fragment []byte) (*OperationSchema, error) {
	decoded, err := decodeOrdered(fragment)
	if err != nil {
		return nil, fmt.Errorf("parse operation: %w", err)
	}
	root, ok := decoded.(Object)
	if !ok {
		return nil, fmt.Errorf("parse operation: expected object, got %T", decoded)
	}

	op := &OperationSchema{
		ServerURL: serverURL,
		Method:    strings.ToUpper(method),
	}
	if id, ok := root.Get("operationId"); ok {
		op.OperationID, _ = id.(string)
	}

	if raw, ok := root.Get("parameters"); ok {
		list, _ := raw.([]any)
		for i, item := range list {
			obj, ok := item.(Object)
			if !ok {
				return nil, fmt.Errorf("parse operation: parameter %d is not an object", i)
			}
			p, err := parseParameter(obj)
			if err != nil {
				return nil, fmt.Errorf("parse operation: parameter %d: %w", i, err)
			}
			op.Parameters = append(op.Parameters, p)
		}
	}

	if raw, ok := root.Get("requestBody"); ok && raw != nil {
		body, ok := raw.(Object)
		if !ok {
			return nil, fmt.Errorf("parse operation: requestBody is not an object")
		}
		op.Body = parseBody(body)
	}
	return op, nil
}

func parseParameter(obj Object) (ParameterSpec, error) {
	var p ParameterSpec
	p.Name = getString(obj, "name")
	if p.Name == "" {
		return p, fmt.Errorf("missing name")
	}
	p.In = ParameterLocation(getString(obj, "in"))
	if !p.In.Valid() {
		return p, fmt.Errorf("unsupported location %q", p.In)
	}
	p.Required, _ = getValue(obj, "required").(bool)
	// Path parameters are always required in OpenAPI.
	if p.In == LocationPath {
		p.Required = true
	}
	if schema, ok := getValue(obj, "schema").(Object); ok {
		p.Type = getString(schema, "type")
		p.Default, p.HasDefault = schema.Get("default")
	}
	return p, nil
}

func parseBody(body Object) *BodySchema {
	content, _ := getValue(body, "content").(Object)
	if len(content) == 0 {
		return nil
	}
	out := &BodySchema{}
	for _, m := range content {
		media := MediaSchema{ContentType: m.Key}
		if entry, ok := m.Value.(Object); ok {
			if schema, ok := getValue(entry, "schema").(Object); ok {
				if req, ok := getValue(schema, "required").([]any); ok {
					for _, r := range req {
						if s, ok := r.(string); ok {
							media.Required = append(media.Required, s)
						}
					}
				}
				if props, ok := getValue(schema, "properties").(Object); ok {
					for _, prop := range props {
						fs, _ := prop.Value.(Object)
						media.Fields = append(media.Fields, BodyField{Name: prop.Key, Schema: parseFieldSchema(fs)})
					}
				}
			}
		}
		out.Contents = append(out.Contents, media)
	}
	return out
}

// parseFieldSchema reads type, anyOf and default. A list of types (OpenAPI
// 3.1) is read as a union of single types.
func parseFieldSchema(obj Object) FieldSchema {
	var fs FieldSchema
	switch t := getValue(obj, "type").(type) {
	case string:
		fs.Type = t
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				fs.AnyOf = append(fs.AnyOf, FieldSchema{Type: s})
			}
		}
	}
	if fs.Type == "" {
		if options, ok := getValue(obj, "anyOf").([]any); ok {
			for _, o := range options {
				opt, _ := o.(Object)
				fs.AnyOf = append(fs.AnyOf, parseFieldSchema(opt))
			}
		}
	}
	fs.Default, fs.HasDefault = obj.Get("default")
	return fs
}

func getValue(obj Object, key string) any {
	v, _ := obj.Get(key)
	return v
}

func getString(obj Object, key string) string {
	s, _ := getValue(obj, key).(string)
	return s
}
