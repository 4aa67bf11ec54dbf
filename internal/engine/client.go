package engine

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

// NewHTTPClient builds the client shared by probes, transfers and fetches.
// It has no overall timeout because transfer bodies stream for as long as
// they need; per-operation deadlines come from contexts.
func NewHTTPClient(runtime *types.RuntimeConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   types.DialTimeout,
		KeepAlive: types.KeepAliveDuration,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		Proxy:                 http.ProxyFromEnvironment,
	}

	if runtime != nil && runtime.ProxyURL != "" {
		configureProxy(transport, runtime.ProxyURL)
	}

	if runtime != nil && runtime.SkipTLSVerification {
		utils.Debug("HTTP client: TLS verification disabled")
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	return &http.Client{
		Timeout:   0,
		Transport: transport,
	}
}

func configureProxy(transport *http.Transport, rawProxy string) {
	parsedURL, err := url.Parse(rawProxy)
	if err != nil {
		utils.Debug("HTTP client: Invalid proxy URL %s: %v", rawProxy, err)
		return
	}

	if !strings.HasPrefix(parsedURL.Scheme, "socks5") {
		transport.Proxy = http.ProxyURL(parsedURL)
		return
	}

	utils.Debug("HTTP client: Using SOCKS5 proxy: %s", rawProxy)
	var auth *proxy.Auth
	if parsedURL.User != nil {
		password, _ := parsedURL.User.Password()
		auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
	}

	socks, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
	if err != nil {
		utils.Debug("HTTP client: Failed to create SOCKS5 dialer: %v", err)
		return
	}

	transport.Proxy = nil
	if cd, ok := socks.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return socks.Dial(network, addr)
		}
	}
}

// newRequest creates a request carrying the configured User-Agent.
func newRequest(ctx context.Context, method, rawurl string, runtime *types.RuntimeConfig) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawurl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", runtime.GetUserAgent())
	return req, nil
}

// NewRequest is the exported form of newRequest for the transfer package.
func NewRequest(ctx context.Context, method, rawurl string, runtime *types.RuntimeConfig) (*http.Request, error) {
	return newRequest(ctx, method, rawurl, runtime)
}

// CheckStatus returns a StatusError for 4xx and 5xx responses.
func CheckStatus(resp *http.Response) error {
	return checkStatus(resp)
}
