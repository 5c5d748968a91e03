// Package tlsutil provides centralized TLS configuration for the outbound
// HTTP clients and the Redis connection used by toolbridge.
// 安全加固：TLS 1.2+，仅 AEAD 密码套件。
package tlsutil

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Outbound request defaults for API tools.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 60 * time.Second
)

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientOptions shapes an outbound client.
type ClientOptions struct {
	// ConnectTimeout bounds dialing. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the wait for response headers. Zero means
	// DefaultReadTimeout.
	ReadTimeout time.Duration
	// ProxyURL routes every request through an HTTP(S) egress proxy. Empty
	// falls back to the HTTP_PROXY / HTTPS_PROXY environment.
	ProxyURL string
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	return o
}

// SecureTransport returns an http.Transport with TLS hardening.
func SecureTransport(opts ClientOptions) (*http.Transport, error) {
	opts = opts.withDefaults()

	proxy := http.ProxyFromEnvironment
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", opts.ProxyURL)
		}
		proxy = http.ProxyURL(u)
	}

	return &http.Transport{
		Proxy:           proxy,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}, nil
}

// NewHTTPClient returns a hardened client whose overall deadline is the sum
// of the connect and read timeouts.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	opts = opts.withDefaults()
	tr, err := SecureTransport(opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   opts.ConnectTimeout + opts.ReadTimeout,
		Transport: tr,
	}, nil
}

// SecureHTTPClient returns an http.Client with TLS hardening.
// Drop-in replacement for &http.Client{Timeout: timeout}.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	tr, _ := SecureTransport(ClientOptions{})
	return &http.Client{
		Timeout:   timeout,
		Transport: tr,
	}
}
