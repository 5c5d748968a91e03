package apitool

// EmptyResponseText is returned for a successful call with no body.
const EmptyResponseText = "Empty response from the tool, please check your parameters and try again."

// NormalizeResponse turns an upstream response into the text handed back to
// the model. JSON bodies are re-serialised canonically; anything else is
// returned verbatim.
func NormalizeResponse(resp *HTTPResponse) (string, error) {
	if resp.StatusCode >= 400 {
		return "", newToolInvokeError(resp.StatusCode, string(resp.Body))
	}
	if len(resp.Body) == 0 {
		return EmptyResponseText, nil
	}
	if text, err := CanonicalizeJSON(resp.Body); err == nil {
		return text, nil
	}
	return string(resp.Body), nil
}
