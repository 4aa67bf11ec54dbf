package engine

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

// FetchText retrieves rawurl with a GET and returns its body as text.
// Each line of the body is followed by exactly one "\n" in the result,
// whatever terminator the server used. Invalid UTF-8 is replaced with U+FFFD.
// Bodies larger than the configured cap fail with ErrFetchTooLarge.
func FetchText(ctx context.Context, client *http.Client, rawurl string, runtime *types.RuntimeConfig) (string, error) {
	utils.Debug("Fetching page source: %s", rawurl)

	fetchCtx, cancel := context.WithTimeout(ctx, runtime.GetFetchTimeout())
	defer cancel()

	req, err := newRequest(fetchCtx, http.MethodGet, rawurl, runtime)
	if err != nil {
		return "", &FetchError{URL: rawurl, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawurl, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return "", &FetchError{URL: rawurl, Err: err}
	}

	limit := runtime.GetFetchMaxBytes()
	var body io.Reader = resp.Body
	var limited *io.LimitedReader
	if limit > 0 {
		limited = &io.LimitedReader{R: resp.Body, N: limit + 1}
		body = limited
	}

	text, err := readLines(body)
	if err != nil {
		return "", &FetchError{URL: rawurl, Err: err}
	}
	if limited != nil && limited.N == 0 {
		return "", &FetchError{URL: rawurl, Err: ErrFetchTooLarge}
	}

	utils.Debug("Fetched %d bytes of text from %s", len(text), rawurl)
	return text, nil
}

func readLines(r io.Reader) (string, error) {
	reader := bufio.NewReader(r)
	var sb strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			sb.WriteString(strings.ToValidUTF8(line, "\uFFFD"))
			sb.WriteByte('\n')
		}
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
	}
}
