package engine

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/vfaronov/httpheader"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

// ProbeResult contains the metadata returned by a HEAD request
type ProbeResult struct {
	Size           int64 // types.UnknownSize when the server sent no usable Content-Length
	ContentType    string
	ServerFilename string // From Content-Disposition, if any
	LastModified   time.Time
}

// Known reports whether the probe determined the resource size.
func (r *ProbeResult) Known() bool {
	return r != nil && r.Size >= 0
}

// Probe issues a single HEAD request to learn the size of rawurl.
// The request is bounded by the configured probe timeout. A missing or
// unparsable Content-Length is not an error; Size is UnknownSize instead.
func Probe(ctx context.Context, client *http.Client, rawurl string, runtime *types.RuntimeConfig) (*ProbeResult, error) {
	utils.Debug("Probing server: %s", rawurl)

	probeCtx, cancel := context.WithTimeout(ctx, runtime.GetProbeTimeout())
	defer cancel()

	req, err := newRequest(probeCtx, http.MethodHead, rawurl, runtime)
	if err != nil {
		return nil, &ProbeError{URL: rawurl, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProbeError{URL: rawurl, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	utils.Debug("Probe response status: %d", resp.StatusCode)

	if err := checkStatus(resp); err != nil {
		return nil, &ProbeError{URL: rawurl, Err: err}
	}

	result := &ProbeResult{
		Size:        contentLength(resp),
		ContentType: resp.Header.Get("Content-Type"),
	}
	_, result.ServerFilename, _ = httpheader.ContentDisposition(resp.Header)
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		result.LastModified, _ = http.ParseTime(lm)
	}

	utils.Debug("Probe complete - size: %d, type: %s", result.Size, result.ContentType)
	return result, nil
}

// contentLength prefers the length parsed by net/http and falls back to the raw header.
func contentLength(resp *http.Response) int64 {
	if resp.ContentLength >= 0 {
		return resp.ContentLength
	}
	raw := resp.Header.Get("Content-Length")
	if raw == "" {
		return types.UnknownSize
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return types.UnknownSize
	}
	return n
}

// ProbeAll probes every distinct URL concurrently. Failed probes are
// reported in errs; results holds the rest.
func ProbeAll(ctx context.Context, client *http.Client, urls []string, runtime *types.RuntimeConfig) (results map[string]*ProbeResult, errs map[string]error) {
	unique := make(map[string]bool)
	for _, u := range urls {
		unique[u] = true
	}

	utils.Debug("Probing %d urls...", len(unique))

	results = make(map[string]*ProbeResult, len(unique))
	errs = make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for target := range unique {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()

			result, err := Probe(ctx, client, target, runtime)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[target] = err
				return
			}
			results[target] = result
		}(target)
	}

	wg.Wait()
	utils.Debug("Probing complete: %d ok, %d failed", len(results), len(errs))
	return results, errs
}
