package apitool

import (
	"net/http"
	"net/url"
	"strings"
)

// Parameters are the caller supplied invocation arguments keyed by name.
type Parameters map[string]any

// NameValue is one query or cookie entry.
type NameValue struct {
	Name  string
	Value string
}

// AssembledRequest is the fully resolved request for one invocation. It is
// built fresh on every call and never shared.
type AssembledRequest struct {
	Method      string
	URL         string
	Header      http.Header
	Query       []NameValue
	Cookies     []NameValue
	ContentType string

	// Payload holds the body fields in declaration order. Body is its
	// serialised form for JSON and form content types and nil otherwise,
	// in which case the transport sends Payload form-encoded.
	Payload Object
	Body    []byte
}

// Assemble resolves params against op. Auth headers are applied first so a
// declared header parameter can override them. A required parameter that is
// neither supplied nor defaulted fails the whole assembly.
func Assemble(op *OperationSchema, params Parameters, authHeaders map[string]string) (*AssembledRequest, error) {
	req := &AssembledRequest{
		Method: strings.ToUpper(op.Method),
		URL:    op.ServerURL,
		Header: make(http.Header),
	}
	for name, value := range authHeaders {
		req.Header.Set(name, value)
	}

	var pathValues []NameValue
	for _, p := range op.Parameters {
		value, ok := params[p.Name]
		if !ok && p.HasDefault {
			value, ok = p.Default, true
		}
		if !ok {
			if p.Required {
				return nil, newParameterError("Missing required parameter %s", p.Name)
			}
			continue
		}

		text := stringify(value)
		switch p.In {
		case LocationPath:
			pathValues = append(pathValues, NameValue{Name: p.Name, Value: text})
		case LocationQuery:
			req.Query = append(req.Query, NameValue{Name: p.Name, Value: text})
		case LocationHeader:
			req.Header.Set(p.Name, text)
		case LocationCookie:
			req.Cookies = append(req.Cookies, NameValue{Name: p.Name, Value: text})
		}
	}

	if media, ok := op.Body.Primary(); ok {
		req.ContentType = media.ContentType
		req.Header.Set("Content-Type", media.ContentType)

		payload := make(Object, 0, len(media.Fields))
		for _, f := range media.Fields {
			if value, ok := params[f.Name]; ok {
				v, err := CoerceValue(f.Schema, value)
				if err != nil {
					return nil, newInternalError(err)
				}
				payload = append(payload, member{Key: f.Name, Value: v})
				continue
			}
			if media.IsRequired(f.Name) {
				return nil, newParameterError("Missing required parameter %s in operation %s", f.Name, op.OperationID)
			}
			var v any
			if f.Schema.HasDefault {
				v = f.Schema.Default
			}
			payload = append(payload, member{Key: f.Name, Value: v})
		}
		req.Payload = payload

		body, err := encodeBody(media.ContentType, payload)
		if err != nil {
			return nil, newInternalError(err)
		}
		req.Body = body
	}

	for _, pv := range pathValues {
		req.URL = strings.ReplaceAll(req.URL, "{"+pv.Name+"}", pv.Value)
	}
	return req, nil
}

func encodeBody(contentType string, payload Object) ([]byte, error) {
	switch contentType {
	case ContentTypeJSON:
		s, err := CanonicalJSON(payload)
		if err != nil {
			return nil, err
		}
		return []byte(s), nil
	case ContentTypeForm:
		return []byte(encodeForm(payload)), nil
	}
	return nil, nil
}

// encodeForm url-encodes fields in declaration order.
func encodeForm(payload Object) string {
	var sb strings.Builder
	for i, m := range payload {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(m.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(stringify(m.Value)))
	}
	return sb.String()
}

// encodeQuery is encodeForm for query entries.
func encodeQuery(entries []NameValue) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(e.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(e.Value))
	}
	return sb.String()
}

// FullURL returns URL with the query entries appended.
func (r *AssembledRequest) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + encodeQuery(r.Query)
}
