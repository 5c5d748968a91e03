package rerank

import (
	"net/http"
	"time"

	"github.com/BaSui01/toolbridge/internal/tlsutil"
)

// CohereConfig configures the Cohere reranker provider.
type CohereConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"` // rerank-v3.5
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	HTTPClient *http.Client  `json:"-" yaml:"-"`
}

// ModelhubConfig configures the modelhub cross-embedding provider.
type ModelhubConfig struct {
	Username    string        `json:"username" yaml:"username"`
	Password    string        `json:"password" yaml:"password"`
	EndpointURL string        `json:"endpoint_url" yaml:"endpoint_url"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	HTTPClient  *http.Client  `json:"-" yaml:"-"`
}

// DefaultCohereConfig returns default Cohere reranker config.
func DefaultCohereConfig() CohereConfig {
	return CohereConfig{
		BaseURL: "https://api.cohere.ai",
		Model:   "rerank-v3.5",
		Timeout: 30 * time.Second,
	}
}

// DefaultModelhubConfig returns default modelhub config.
func DefaultModelhubConfig() ModelhubConfig {
	return ModelhubConfig{
		Timeout: 30 * time.Second,
	}
}

func httpClientFor(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return tlsutil.SecureHTTPClient(timeout)
}
