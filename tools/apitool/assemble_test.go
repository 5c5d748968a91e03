package apitool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/toolbridge/types"
)

func jsonBodyOperation() *OperationSchema {
	return &OperationSchema{
		OperationID: "createItem",
		ServerURL:   "https://api.example.com/items",
		Method:      "post",
		Body: &BodySchema{Contents: []MediaSchema{{
			ContentType: ContentTypeJSON,
			Required:    []string{"x"},
			Fields: []BodyField{
				{Name: "x", Schema: FieldSchema{Type: "integer"}},
				{Name: "y", Schema: FieldSchema{Type: "string", Default: "z", HasDefault: true}},
			},
		}}},
	}
}

func TestAssemble_JSONBodyRoundTrip(t *testing.T) {
	t.Parallel()

	req, err := Assemble(jsonBodyOperation(), Parameters{"x": "5"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, `{"x": 5, "y": "z"}`, string(req.Body))
	assert.Equal(t, ContentTypeJSON, req.Header.Get("Content-Type"))
	assert.Equal(t, ContentTypeJSON, req.ContentType)
}

func TestAssemble_MissingRequiredBodyField(t *testing.T) {
	t.Parallel()

	_, err := Assemble(jsonBodyOperation(), Parameters{"y": "only"}, nil)
	require.Error(t, err)
	assert.True(t, IsParameterValidationError(err))
	assert.Contains(t, err.Error(), "Missing required parameter x in operation createItem")
}

func TestAssemble_OptionalFieldWithoutDefaultIsNull(t *testing.T) {
	t.Parallel()

	op := &OperationSchema{
		ServerURL: "https://api.example.com",
		Method:    "PUT",
		Body: &BodySchema{Contents: []MediaSchema{{
			ContentType: ContentTypeJSON,
			Fields: []BodyField{
				{Name: "note", Schema: FieldSchema{Type: "string"}},
				{Name: "count", Schema: FieldSchema{Type: "integer"}},
			},
		}}},
	}
	req, err := Assemble(op, Parameters{"count": "3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"note": null, "count": 3}`, string(req.Body))
}

func TestAssemble_Parameters(t *testing.T) {
	t.Parallel()

	op := &OperationSchema{
		ServerURL: "https://api.example.com/users/{id}/posts/{postId}",
		Method:    "get",
		Parameters: []ParameterSpec{
			{Name: "id", In: LocationPath, Required: true},
			{Name: "postId", In: LocationPath},
			{Name: "q", In: LocationQuery, Required: true},
			{Name: "limit", In: LocationQuery, Default: 10, HasDefault: true},
			{Name: "offset", In: LocationQuery},
			{Name: "api_key", In: LocationHeader},
			{Name: "session", In: LocationCookie},
		},
	}
	auth := map[string]string{"api_key": "Bearer secret", "X-Extra": "1"}

	req, err := Assemble(op, Parameters{
		"id":      42,
		"q":       "go lang",
		"api_key": "override",
		"session": "s1",
	}, auth)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/users/42/posts/{postId}", req.URL)
	assert.Equal(t, []NameValue{{Name: "q", Value: "go lang"}, {Name: "limit", Value: "10"}}, req.Query)
	assert.Equal(t, "https://api.example.com/users/42/posts/{postId}?q=go+lang&limit=10", req.FullURL())
	assert.Equal(t, "override", req.Header.Get("api_key"))
	assert.Equal(t, "1", req.Header.Get("X-Extra"))
	assert.Equal(t, []NameValue{{Name: "session", Value: "s1"}}, req.Cookies)
	assert.Nil(t, req.Body)
}

func TestAssemble_MissingRequiredParameter(t *testing.T) {
	t.Parallel()

	op := &OperationSchema{
		ServerURL: "https://api.example.com",
		Method:    "GET",
		Parameters: []ParameterSpec{
			{Name: "q", In: LocationQuery, Required: true},
		},
	}
	_, err := Assemble(op, Parameters{}, nil)
	require.Error(t, err)
	assert.True(t, IsParameterValidationError(err))
	assert.Contains(t, err.Error(), "Missing required parameter q")
}

func TestAssemble_RequiredParameterWithDefault(t *testing.T) {
	t.Parallel()

	op := &OperationSchema{
		ServerURL: "https://api.example.com",
		Method:    "GET",
		Parameters: []ParameterSpec{
			{Name: "lang", In: LocationQuery, Required: true, Default: "en", HasDefault: true},
		},
	}
	req, err := Assemble(op, Parameters{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com?lang=en", req.FullURL())
}

func TestAssemble_FormBody(t *testing.T) {
	t.Parallel()

	op := &OperationSchema{
		ServerURL: "https://api.example.com/form?v=1",
		Method:    "POST",
		Parameters: []ParameterSpec{
			{Name: "debug", In: LocationQuery},
		},
		Body: &BodySchema{Contents: []MediaSchema{
			{
				ContentType: ContentTypeForm,
				Fields: []BodyField{
					{Name: "a", Schema: FieldSchema{Type: "string"}},
					{Name: "b", Schema: FieldSchema{Type: "string"}},
				},
			},
			{ContentType: ContentTypeJSON},
		}},
	}
	req, err := Assemble(op, Parameters{"a": "1 2", "debug": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a=1+2&b=", string(req.Body))
	assert.Equal(t, ContentTypeForm, req.Header.Get("Content-Type"))
	assert.Equal(t, "https://api.example.com/form?v=1&debug=true", req.FullURL())
}

func TestAssemble_OtherContentTypePassesPayload(t *testing.T) {
	t.Parallel()

	op := &OperationSchema{
		ServerURL: "https://api.example.com/upload",
		Method:    "POST",
		Body: &BodySchema{Contents: []MediaSchema{{
			ContentType: "multipart/form-data",
			Fields:      []BodyField{{Name: "name", Schema: FieldSchema{Type: "string"}}},
		}}},
	}
	req, err := Assemble(op, Parameters{"name": "report"}, nil)
	require.NoError(t, err)
	assert.Nil(t, req.Body)
	require.Len(t, req.Payload, 1)
	v, ok := req.Payload.Get("name")
	require.True(t, ok)
	assert.Equal(t, "report", v)
}

func TestAssemble_AnyOfDepthIsInternalError(t *testing.T) {
	t.Parallel()

	op := &OperationSchema{
		ServerURL: "https://api.example.com",
		Method:    "POST",
		Body: &BodySchema{Contents: []MediaSchema{{
			ContentType: ContentTypeJSON,
			Fields:      []BodyField{{Name: "v", Schema: nestedAnyOf(MaxAnyOfDepth + 1)}},
		}}},
	}
	_, err := Assemble(op, Parameters{"v": "1"}, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrInternalError, types.GetErrorCode(err))
	assert.True(t, errors.Is(err, ErrMaxAnyOfDepth))
}

func TestAssemble_DoesNotTouchInput(t *testing.T) {
	t.Parallel()

	params := Parameters{"x": "5"}
	_, err := Assemble(jsonBodyOperation(), params, nil)
	require.NoError(t, err)
	assert.Equal(t, Parameters{"x": "5"}, params)
}
