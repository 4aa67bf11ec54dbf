package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// UnknownSize marks a payload whose length has not been determined.
const UnknownSize int64 = -1

// Transfer tuning
const (
	ChunkSize     = 4 * KB // Bytes read from the response body per iteration
	FetchMaxBytes = 8 * MB // Cap on text accumulated by FetchText

	// FallbackFilename replaces a URL's last path segment when it is empty or carries a query
	FallbackFilename = "downloaded_file"
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 30 * time.Second
	FetchTimeout                 = 60 * time.Second
)

// Channel buffer sizes
const (
	ProgressChannelBuffer = 100
)

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	UserAgent           string
	ProxyURL            string
	SkipTLSVerification bool
	OutputDir           string
	FallbackFilename    string

	ChunkSize     int
	PacingDelay   time.Duration
	ProbeTimeout  time.Duration
	FetchTimeout  time.Duration
	FetchMaxBytes int64
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return r.UserAgent
}

// GetOutputDir returns the configured output directory or the working directory
func (r *RuntimeConfig) GetOutputDir() string {
	if r == nil || r.OutputDir == "" {
		return "."
	}
	return r.OutputDir
}

// GetFallbackFilename returns configured value or default
func (r *RuntimeConfig) GetFallbackFilename() string {
	if r == nil || r.FallbackFilename == "" {
		return FallbackFilename
	}
	return r.FallbackFilename
}

// GetChunkSize returns configured value or default
func (r *RuntimeConfig) GetChunkSize() int {
	if r == nil || r.ChunkSize <= 0 {
		return ChunkSize
	}
	return r.ChunkSize
}

// GetPacingDelay returns the delay inserted after each progress update.
// Zero (the default) disables pacing.
func (r *RuntimeConfig) GetPacingDelay() time.Duration {
	if r == nil || r.PacingDelay < 0 {
		return 0
	}
	return r.PacingDelay
}

// GetProbeTimeout returns configured value or default
func (r *RuntimeConfig) GetProbeTimeout() time.Duration {
	if r == nil || r.ProbeTimeout <= 0 {
		return ProbeTimeout
	}
	return r.ProbeTimeout
}

// GetFetchTimeout returns configured value or default
func (r *RuntimeConfig) GetFetchTimeout() time.Duration {
	if r == nil || r.FetchTimeout <= 0 {
		return FetchTimeout
	}
	return r.FetchTimeout
}

// GetFetchMaxBytes returns the text fetch cap. Zero selects the default,
// a negative value disables the cap.
func (r *RuntimeConfig) GetFetchMaxBytes() int64 {
	if r == nil || r.FetchMaxBytes == 0 {
		return FetchMaxBytes
	}
	if r.FetchMaxBytes < 0 {
		return 0
	}
	return r.FetchMaxBytes
}
