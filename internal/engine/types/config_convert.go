package types

import "github.com/surge-downloader/trickle/internal/config"

// ConvertRuntimeConfig converts the app-level RuntimeConfig to the engine-level RuntimeConfig.
func ConvertRuntimeConfig(rc *config.RuntimeConfig) *RuntimeConfig {
	if rc == nil {
		return &RuntimeConfig{}
	}
	return &RuntimeConfig{
		UserAgent:           rc.UserAgent,
		ProxyURL:            rc.ProxyURL,
		SkipTLSVerification: rc.SkipTLSVerification,
		OutputDir:           rc.OutputDir,
		FallbackFilename:    rc.FallbackFilename,
		ChunkSize:           rc.ChunkSize,
		PacingDelay:         rc.PacingDelay,
		ProbeTimeout:        rc.ProbeTimeout,
		FetchTimeout:        rc.FetchTimeout,
		FetchMaxBytes:       rc.FetchMaxBytes,
	}
}
