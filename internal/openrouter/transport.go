package openrouter

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultDialTimeout           = 10 * time.Second
	defaultKeepAlive             = 30 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultResponseHeaderTimeout = 60 * time.Second
)

// NewHTTPClient builds the shared HTTP client. There is no overall client
// timeout because streamed responses may legitimately run for minutes;
// request-level deadlines are applied per call instead.
func NewHTTPClient() *http.Client {
	return NewHTTPClientWithHeaderTimeout(defaultResponseHeaderTimeout)
}

// NewHTTPClientWithHeaderTimeout is NewHTTPClient with a custom limit on
// waiting for response headers.
func NewHTTPClientWithHeaderTimeout(headerTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}
