package apitool

import (
	"github.com/BaSui01/toolbridge/types"
)

// ParameterLocation is where a parameter value is placed in the HTTP request.
type ParameterLocation string

const (
	LocationPath   ParameterLocation = "path"
	LocationQuery  ParameterLocation = "query"
	LocationHeader ParameterLocation = "header"
	LocationCookie ParameterLocation = "cookie"
	// LocationBody marks a parameter carried in the request body. Its value
	// is validated like any other parameter but placed by the body schema.
	LocationBody ParameterLocation = "body"
)

// Valid reports whether l is a known parameter location.
func (l ParameterLocation) Valid() bool {
	switch l {
	case LocationPath, LocationQuery, LocationHeader, LocationCookie, LocationBody:
		return true
	}
	return false
}

// Content types with a dedicated body serialisation.
const (
	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// ParameterSpec describes one non-body parameter of an operation.
type ParameterSpec struct {
	Name     string            `json:"name"`
	In       ParameterLocation `json:"in"`
	Required bool              `json:"required,omitempty"`
	Type     string            `json:"type,omitempty"`

	// Default is only meaningful when HasDefault is set, so an explicit
	// null default can be told apart from no default at all.
	Default    any  `json:"default,omitempty"`
	HasDefault bool `json:"has_default,omitempty"`
}

// FieldSchema is the declared type of one body field: either a single
// Type or a union of candidate schemas in AnyOf.
type FieldSchema struct {
	Type       string        `json:"type,omitempty"`
	AnyOf      []FieldSchema `json:"any_of,omitempty"`
	Default    any           `json:"default,omitempty"`
	HasDefault bool          `json:"has_default,omitempty"`
}

// BodyField is a named entry of a structured request payload.
type BodyField struct {
	Name   string      `json:"name"`
	Schema FieldSchema `json:"schema"`
}

// MediaSchema is the body schema declared for one content type.
type MediaSchema struct {
	ContentType string      `json:"content_type"`
	Required    []string    `json:"required,omitempty"`
	Fields      []BodyField `json:"fields,omitempty"`
}

// IsRequired reports whether the named field is listed as required.
func (m MediaSchema) IsRequired(name string) bool {
	for _, r := range m.Required {
		if r == name {
			return true
		}
	}
	return false
}

// BodySchema holds the declared content types in declaration order.
type BodySchema struct {
	Contents []MediaSchema `json:"contents"`
}

// Primary returns the first declared content type. Only that one is used
// when assembling a request.
func (b *BodySchema) Primary() (MediaSchema, bool) {
	if b == nil || len(b.Contents) == 0 {
		return MediaSchema{}, false
	}
	return b.Contents[0], true
}

// OperationSchema is one HTTP endpoint-and-method pair. It is immutable
// once loaded.
type OperationSchema struct {
	OperationID string          `json:"operation_id,omitempty"`
	ServerURL   string          `json:"server_url"`
	Method      string          `json:"method"`
	Parameters  []ParameterSpec `json:"parameters,omitempty"`
	Body        *BodySchema     `json:"body,omitempty"`
}

// RequiredNames lists every required parameter and body field name.
func (o *OperationSchema) RequiredNames() []string {
	var names []string
	for _, p := range o.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	if media, ok := o.Body.Primary(); ok {
		names = append(names, media.Required...)
	}
	return names
}

// Bundle is an operation plus the metadata a host platform needs to expose
// it as a tool.
type Bundle struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Provider    string           `json:"provider,omitempty"`
	Operation   OperationSchema  `json:"operation"`
	Schema      types.ToolSchema `json:"schema"`
}
