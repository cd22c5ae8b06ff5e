package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// Options configures the HTTP client used to reach the management service.
type Options struct {
	Timeout            time.Duration
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
	// HTTP2 forces an HTTP/2 transport for https endpoints.
	HTTP2 bool
}

func buildClient(endpoint string, opts Options) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q must use http or https", endpoint)
	}
	if u.Scheme == "http" {
		return &http.Client{Timeout: timeout}, nil
	}

	tlsConfig, err := buildTLSConfig(opts)
	if err != nil {
		return nil, err
	}
	if opts.HTTP2 {
		return &http.Client{
			Timeout:   timeout,
			Transport: &http2.Transport{TLSClientConfig: tlsConfig},
		}, nil
	}
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig
	return &http.Client{Timeout: timeout, Transport: base}, nil
}

func buildTLSConfig(opts Options) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	if opts.CAFile != "" {
		caCert, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("parse CA certificate %q: no PEM certificates found", opts.CAFile)
		}
		cfg.RootCAs = pool
	}

	switch {
	case opts.CertFile != "" && opts.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	case opts.CertFile != "" || opts.KeyFile != "":
		return nil, fmt.Errorf("client certificate requires both cert_file and key_file")
	}
	return cfg, nil
}
