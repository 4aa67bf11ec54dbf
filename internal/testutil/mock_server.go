// Package testutil provides testing utilities for the trickle downloader.
package testutil

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// MockServer is a configurable HTTP test server for transfer testing.
type MockServer struct {
	Server *httptest.Server

	// Configuration
	FileSize          int64         // Size of the served body
	ContentType       string        // Content-Type header value
	Filename          string        // Filename in Content-Disposition header
	LastModified      time.Time     // Last-Modified header value (zero = omitted)
	RandomData        bool          // If true, serve random data; otherwise serve zeros
	OmitContentLength bool          // Stream with chunked encoding and no length
	StatusCode        int           // Status for every request (0 = 200)
	HeadStatus        int           // Status for HEAD only (0 = StatusCode)
	Latency           time.Duration // Artificial latency per request
	ByteLatency       time.Duration // Pause after each written chunk
	WriteChunk        int64         // Bytes per write (0 = 32KB)
	FailAfterBytes    int64         // Abort the connection after this many body bytes (0 = no fail)
	StallAfterBytes   int64         // Stop sending after this many body bytes until the client leaves (0 = no stall)
	FailOnNthRequest  int           // Fail on Nth request (0 = don't fail)

	// Tracking
	RequestCount   atomic.Int64
	HeadRequests   atomic.Int64
	GetRequests    atomic.Int64
	BytesServed    atomic.Int64
	FailedRequests atomic.Int64
	requestCountMu sync.Mutex
	internalReqNum int

	// Internal
	data          []byte
	dataSet       bool
	CustomHandler http.HandlerFunc
}

// MockServerOption is a function that configures a MockServer.
type MockServerOption func(*MockServer)

// WithHandler sets a custom request handler.
func WithHandler(h http.HandlerFunc) MockServerOption {
	return func(m *MockServer) {
		m.CustomHandler = h
	}
}

// WithFileSize sets the body size to serve.
func WithFileSize(size int64) MockServerOption {
	return func(m *MockServer) {
		m.FileSize = size
	}
}

// WithData serves exactly b.
func WithData(b []byte) MockServerOption {
	return func(m *MockServer) {
		m.data = b
		m.dataSet = true
		m.FileSize = int64(len(b))
	}
}

// WithContentType sets the Content-Type header.
func WithContentType(ct string) MockServerOption {
	return func(m *MockServer) {
		m.ContentType = ct
	}
}

// WithFilename sets the filename in Content-Disposition header.
func WithFilename(name string) MockServerOption {
	return func(m *MockServer) {
		m.Filename = name
	}
}

// WithLastModified sets the Last-Modified header.
func WithLastModified(t time.Time) MockServerOption {
	return func(m *MockServer) {
		m.LastModified = t
	}
}

// WithRandomData enables serving random bytes instead of zeros.
func WithRandomData(random bool) MockServerOption {
	return func(m *MockServer) {
		m.RandomData = random
	}
}

// WithoutContentLength streams the body with no Content-Length header.
func WithoutContentLength() MockServerOption {
	return func(m *MockServer) {
		m.OmitContentLength = true
	}
}

// WithStatus answers every request with code and no body.
func WithStatus(code int) MockServerOption {
	return func(m *MockServer) {
		m.StatusCode = code
	}
}

// WithHeadStatus answers HEAD requests with code.
func WithHeadStatus(code int) MockServerOption {
	return func(m *MockServer) {
		m.HeadStatus = code
	}
}

// WithLatency adds artificial latency per request.
func WithLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.Latency = d
	}
}

// WithByteLatency adds a pause after every written chunk.
func WithByteLatency(d time.Duration) MockServerOption {
	return func(m *MockServer) {
		m.ByteLatency = d
	}
}

// WithWriteChunk sets how many bytes each write carries.
func WithWriteChunk(n int64) MockServerOption {
	return func(m *MockServer) {
		m.WriteChunk = n
	}
}

// WithFailAfterBytes aborts the connection after serving N body bytes.
func WithFailAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.FailAfterBytes = n
	}
}

// WithStallAfterBytes stops sending after N body bytes and holds the
// connection open until the client goes away.
func WithStallAfterBytes(n int64) MockServerOption {
	return func(m *MockServer) {
		m.StallAfterBytes = n
	}
}

// WithFailOnNthRequest causes the Nth request to fail.
func WithFailOnNthRequest(n int) MockServerOption {
	return func(m *MockServer) {
		m.FailOnNthRequest = n
	}
}

func newMockServer(opts []MockServerOption) *MockServer {
	m := &MockServer{
		FileSize:    1024 * 1024, // 1MB default
		ContentType: "application/octet-stream",
		Filename:    "testfile.bin",
	}

	for _, opt := range opts {
		opt(m)
	}

	if !m.dataSet {
		m.data = make([]byte, m.FileSize)
		if m.RandomData {
			_, _ = rand.Read(m.data)
		}
	}
	return m
}

// NewMockServer creates a new mock HTTP server with the given options.
func NewMockServer(opts ...MockServerOption) *MockServer {
	m := newMockServer(opts)
	m.Server = NewHTTPServer(http.HandlerFunc(m.handleRequest))
	return m
}

// NewMockServerT creates a new mock HTTP server and skips the test if binding fails.
// The server is closed when the test ends.
func NewMockServerT(t *testing.T, opts ...MockServerOption) *MockServer {
	t.Helper()
	m := newMockServer(opts)
	m.Server = NewHTTPServerT(t, http.HandlerFunc(m.handleRequest))
	t.Cleanup(m.Close)
	return m
}

// URL returns the server's URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// Data returns the full body the server serves.
func (m *MockServer) Data() []byte {
	return m.data
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	if m.Server != nil {
		m.Server.CloseClientConnections()
		m.Server.Close()
	}
}

// Reset clears all tracking counters.
func (m *MockServer) Reset() {
	m.RequestCount.Store(0)
	m.HeadRequests.Store(0)
	m.GetRequests.Store(0)
	m.BytesServed.Store(0)
	m.FailedRequests.Store(0)
	m.requestCountMu.Lock()
	m.internalReqNum = 0
	m.requestCountMu.Unlock()
}

// Stats returns a summary of server statistics.
func (m *MockServer) Stats() MockServerStats {
	return MockServerStats{
		TotalRequests:  m.RequestCount.Load(),
		HeadRequests:   m.HeadRequests.Load(),
		GetRequests:    m.GetRequests.Load(),
		BytesServed:    m.BytesServed.Load(),
		FailedRequests: m.FailedRequests.Load(),
	}
}

// MockServerStats contains server statistics.
type MockServerStats struct {
	TotalRequests  int64
	HeadRequests   int64
	GetRequests    int64
	BytesServed    int64
	FailedRequests int64
}

func (m *MockServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if m.CustomHandler != nil {
		m.CustomHandler(w, r)
		return
	}

	m.RequestCount.Add(1)

	// Track request number for fail-on-nth logic
	m.requestCountMu.Lock()
	m.internalReqNum++
	reqNum := m.internalReqNum
	m.requestCountMu.Unlock()

	// Fail on Nth request if configured
	if m.FailOnNthRequest > 0 && reqNum == m.FailOnNthRequest {
		m.FailedRequests.Add(1)
		http.Error(w, "Simulated failure", http.StatusInternalServerError)
		return
	}

	if m.Latency > 0 {
		time.Sleep(m.Latency)
	}

	if r.Method == http.MethodHead {
		m.HeadRequests.Add(1)
		status := m.HeadStatus
		if status == 0 {
			status = m.StatusCode
		}
		if status >= http.StatusBadRequest {
			m.FailedRequests.Add(1)
			w.WriteHeader(status)
			return
		}
		m.setCommonHeaders(w)
		w.WriteHeader(http.StatusOK)
		return
	}

	m.GetRequests.Add(1)
	if m.StatusCode >= http.StatusBadRequest {
		m.FailedRequests.Add(1)
		http.Error(w, http.StatusText(m.StatusCode), m.StatusCode)
		return
	}

	m.setCommonHeaders(w)
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	// Flushing before any body forces chunked encoding when no length is set
	if m.OmitContentLength && flusher != nil {
		flusher.Flush()
	}

	m.serveBody(w, r, flusher)
}

func (m *MockServer) serveBody(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
	length := m.FileSize
	bytesWritten := int64(0)

	chunkSize := m.WriteChunk
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}

	for bytesWritten < length {
		if m.FailAfterBytes > 0 && bytesWritten >= m.FailAfterBytes {
			m.FailedRequests.Add(1)
			if flusher != nil {
				flusher.Flush()
			}
			// Abruptly close the connection mid-body
			panic(http.ErrAbortHandler)
		}
		if m.StallAfterBytes > 0 && bytesWritten >= m.StallAfterBytes {
			if flusher != nil {
				flusher.Flush()
			}
			<-r.Context().Done()
			return
		}

		n := chunkSize
		if remaining := length - bytesWritten; remaining < n {
			n = remaining
		}
		// Never write past a configured failure or stall point
		for _, limit := range []int64{m.FailAfterBytes, m.StallAfterBytes} {
			if limit > 0 && bytesWritten < limit && bytesWritten+n > limit {
				n = limit - bytesWritten
			}
		}

		written, err := w.Write(m.data[bytesWritten : bytesWritten+n])
		if err != nil {
			return // Client disconnected
		}

		bytesWritten += int64(written)
		m.BytesServed.Add(int64(written))

		if m.OmitContentLength && flusher != nil {
			flusher.Flush()
		}
		if m.ByteLatency > 0 {
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(m.ByteLatency)
		}
	}
}

func (m *MockServer) setCommonHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", m.ContentType)
	if !m.OmitContentLength {
		w.Header().Set("Content-Length", strconv.FormatInt(m.FileSize, 10))
	}
	if m.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, m.Filename))
	}
	if !m.LastModified.IsZero() {
		w.Header().Set("Last-Modified", m.LastModified.UTC().Format(http.TimeFormat))
	}
}

// AssertFileContent checks that path holds exactly want.
func AssertFileContent(path string, want []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return fmt.Errorf("expected %d bytes, got %d", len(want), len(got))
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("content differs at byte %d", i)
		}
	}
	return nil
}
