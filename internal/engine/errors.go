package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrFetchTooLarge is wrapped by FetchError when a page exceeds the size cap.
var ErrFetchTooLarge = errors.New("response exceeds size limit")

// StatusError reports an HTTP response whose status signals failure.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d %s", e.Code, http.StatusText(e.Code))
}

// checkStatus mirrors what a plain connection does: 4xx and 5xx are errors.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// ProbeError is returned when the size probe fails. It is never fatal:
// callers continue as if the size were unknown.
type ProbeError struct {
	URL string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// FetchError is returned by FetchText.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TransferError describes the I/O failure that ended a transfer.
// Op is one of "request", "connect", "open", "read" or "write".
type TransferError struct {
	URL string
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
