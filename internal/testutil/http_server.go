package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// listenIPv4 binds a loopback IPv4 port; IPv6 listeners are unavailable in
// some sandboxes.
func listenIPv4() (net.Listener, error) {
	return net.Listen("tcp4", "127.0.0.1:0")
}

func startServer(ln net.Listener, handler http.Handler) *httptest.Server {
	srv := &httptest.Server{
		Listener: ln,
		Config:   &http.Server{Handler: handler},
	}
	srv.Start()
	return srv
}

// NewHTTPServer starts an httptest server bound to IPv4, falling back to
// httptest's default listener.
func NewHTTPServer(handler http.Handler) *httptest.Server {
	ln, err := listenIPv4()
	if err != nil {
		return httptest.NewServer(handler)
	}
	return startServer(ln, handler)
}

// NewHTTPServerT starts an httptest server bound to IPv4 that is closed when
// the test ends. The test is skipped if binding fails.
func NewHTTPServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := listenIPv4()
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
		return nil
	}
	srv := startServer(ln, handler)
	t.Cleanup(srv.Close)
	return srv
}

// NewRedirectServerT answers every request with a 302 to target.
func NewRedirectServerT(t *testing.T, target string) *httptest.Server {
	t.Helper()
	return NewHTTPServerT(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target, http.StatusFound)
	}))
}
