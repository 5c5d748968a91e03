package apitool

// Credential record keys.
const (
	CredentialAuthType     = "auth_type"
	CredentialHeader       = "api_key_header"
	CredentialValue        = "api_key_value"
	CredentialHeaderPrefix = "api_key_header_prefix"
)

// Auth types and header prefix schemes.
const (
	AuthTypeNone   = "none"
	AuthTypeAPIKey = "api_key"

	PrefixBasic  = "basic"
	PrefixBearer = "bearer"
	PrefixCustom = "custom"

	defaultAPIKeyHeader = "api_key"
)

// CredentialRecord is the auth material configured for an API provider.
type CredentialRecord map[string]any

// AuthHeaders derives the auth header for the record. The record itself is
// never modified.
func (c CredentialRecord) AuthHeaders() (map[string]string, error) {
	authType, ok := c[CredentialAuthType]
	if !ok {
		return nil, newCredentialError("Missing auth_type")
	}

	headers := make(map[string]string, 1)
	if authType != AuthTypeAPIKey {
		return headers, nil
	}

	header := defaultAPIKeyHeader
	if h, ok := c[CredentialHeader].(string); ok && h != "" {
		header = h
	}

	raw, ok := c[CredentialValue]
	if !ok {
		return nil, newCredentialError("Missing api_key_value")
	}
	value, ok := raw.(string)
	if !ok {
		return nil, newCredentialError("api_key_value must be a string")
	}

	if value != "" {
		switch c[CredentialHeaderPrefix] {
		case PrefixBasic:
			value = "Basic " + value
		case PrefixBearer:
			value = "Bearer " + value
		}
	}

	headers[header] = value
	return headers, nil
}

// Clone returns a shallow copy of the record.
func (c CredentialRecord) Clone() CredentialRecord {
	if c == nil {
		return nil
	}
	out := make(CredentialRecord, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
