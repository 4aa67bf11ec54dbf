// Package transfer streams one HTTP resource to a local file and reports
// progress as an ordered event stream.
package transfer

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/h2non/filetype"

	"github.com/surge-downloader/trickle/internal/engine"
	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

var (
	// ErrAlreadyStarted is returned when Start or Run is called on a task
	// that has left the Idle state.
	ErrAlreadyStarted = errors.New("transfer already started")

	// ErrCancelled is returned by Err for a cancelled task.
	ErrCancelled = errors.New("transfer cancelled")
)

// State is a task's lifecycle position
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return types.StatusRunning
	case StateCompleted:
		return types.StatusCompleted
	case StateCancelled:
		return types.StatusCancelled
	case StateFailed:
		return types.StatusFailed
	default:
		return "unknown"
	}
}

// Terminal reports whether s is one of the final states.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// SinkOpener creates the destination a task writes into.
type SinkOpener func(path string) (io.WriteCloser, error)

// CreateFile is the default SinkOpener. It creates missing parent
// directories and truncates an existing file.
func CreateFile(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

// Option configures a Task
type Option func(*Task)

// WithID sets the download ID carried by every event.
func WithID(id string) Option {
	return func(t *Task) { t.ID = id }
}

// WithSinkOpener replaces the file-creating sink.
func WithSinkOpener(open SinkOpener) Option {
	return func(t *Task) { t.openSink = open }
}

// Task performs a single streamed transfer. A task is used once: it moves
// from Idle to Running and ends in exactly one of Completed, Cancelled or
// Failed. It exclusively owns its connection and its sink.
type Task struct {
	ID       string
	Request  types.DownloadRequest
	DestPath string

	client   *http.Client
	runtime  *types.RuntimeConfig
	openSink SinkOpener

	state     atomic.Int32
	cancelled atomic.Bool
	bytesRead atomic.Uint64
	totalSize atomic.Int64

	events   chan events.Event
	done     chan struct{}
	cancelCh chan struct{}

	mu       sync.Mutex
	cancelFn context.CancelFunc
	result   events.Event
}

// New prepares a task for req. An empty req.Filename is derived from the URL.
func New(req types.DownloadRequest, client *http.Client, runtime *types.RuntimeConfig, opts ...Option) *Task {
	if req.Filename == "" {
		req.Filename = utils.DeriveFilename(req.URL, runtime.GetFallbackFilename())
	}
	dir := req.OutputDir
	if dir == "" {
		dir = runtime.GetOutputDir()
	}
	if client == nil {
		client = engine.NewHTTPClient(runtime)
	}

	t := &Task{
		ID:       req.URL,
		Request:  req,
		DestPath: filepath.Join(dir, req.Filename),
		client:   client,
		runtime:  runtime,
		openSink: CreateFile,
		events:   make(chan events.Event, types.ProgressChannelBuffer),
		done:     make(chan struct{}),
		cancelCh: make(chan struct{}),
	}
	t.totalSize.Store(types.UnknownSize)
	if req.SizeKnown() {
		t.totalSize.Store(req.ExpectedSize)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events returns the progress stream. It is closed right after the terminal event.
func (t *Task) Events() <-chan events.Event { return t.events }

// Done is closed once the task has reached a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// State returns the current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// BytesRead returns the number of bytes written to the sink so far.
func (t *Task) BytesRead() uint64 { return t.bytesRead.Load() }

// TotalSize returns the effective size, or types.UnknownSize.
func (t *Task) TotalSize() int64 { return t.totalSize.Load() }

// SetSizeHint records a size learned after construction, typically from a
// probe. It only has an effect while the task is Idle.
func (t *Task) SetSizeHint(size int64) bool {
	if t.State() != StateIdle || size < 0 {
		return false
	}
	t.totalSize.Store(size)
	return true
}

// CancelRequested is closed by the first successful Cancel.
func (t *Task) CancelRequested() <-chan struct{} { return t.cancelCh }

// IsCancelled reports whether Cancel has been called.
func (t *Task) IsCancelled() bool { return t.cancelled.Load() }

// Result returns the terminal event, or nil while the task is unfinished.
func (t *Task) Result() events.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Err maps the terminal event to an error: nil on completion,
// ErrCancelled on cancellation and the transfer error on failure.
func (t *Task) Err() error {
	switch m := t.Result().(type) {
	case events.CancelledMsg:
		return ErrCancelled
	case events.FailedMsg:
		return m.Err
	default:
		return nil
	}
}

// Start moves the task to Running and streams in a new goroutine.
func (t *Task) Start(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	go t.run(ctx)
	return nil
}

// Run streams on the calling goroutine and returns Err once finished.
// The caller must drain Events concurrently.
func (t *Task) Run(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	t.run(ctx)
	return t.Err()
}

// Cancel requests cooperative cancellation. The flag is checked before every
// chunk, and the in-flight request is aborted so a blocked read returns.
// Ending the context passed to Start has the same effect.
// It reports whether this call initiated cancellation.
func (t *Task) Cancel() bool {
	if t.State().Terminal() {
		return false
	}
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	close(t.cancelCh)
	t.mu.Lock()
	if t.cancelFn != nil {
		t.cancelFn()
	}
	t.mu.Unlock()
	utils.Debug("Transfer %s: cancellation requested", t.ID)
	return true
}

func (t *Task) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	t.mu.Lock()
	t.cancelFn = cancel
	t.mu.Unlock()
	if t.cancelled.Load() {
		cancel()
	}

	t.finish(t.stream(ctx))
}

// aborted reports whether Cancel was called or the parent context ended.
func (t *Task) aborted(ctx context.Context) bool {
	return t.cancelled.Load() || ctx.Err() != nil
}

func (t *Task) header() events.Header {
	return events.Header{DownloadID: t.ID, URL: t.Request.URL}
}

func (t *Task) emit(e events.Event) {
	t.events <- e
}

func (t *Task) finish(e events.Event) {
	var state State
	switch e.(type) {
	case events.CompleteMsg:
		state = StateCompleted
	case events.CancelledMsg:
		state = StateCancelled
	default:
		state = StateFailed
	}

	t.mu.Lock()
	t.result = e
	t.mu.Unlock()
	t.state.Store(int32(state))

	t.emit(e)
	close(t.events)
	close(t.done)
}

func (t *Task) cancelledMsg() events.Event {
	utils.Debug("Transfer %s: cancelled after %d bytes", t.ID, t.BytesRead())
	return events.CancelledMsg{Header: t.header(), Downloaded: t.BytesRead()}
}

func (t *Task) failedMsg(op string, err error) events.Event {
	utils.Debug("Transfer %s: %s error: %v", t.ID, op, err)
	return events.FailedMsg{
		Header:     t.header(),
		Downloaded: t.BytesRead(),
		Err:        &engine.TransferError{URL: t.Request.URL, Op: op, Err: err},
	}
}

// stream performs the transfer and returns the terminal event
func (t *Task) stream(ctx context.Context) events.Event {
	if t.aborted(ctx) {
		return t.cancelledMsg()
	}

	req, err := engine.NewRequest(ctx, http.MethodGet, t.Request.URL, t.runtime)
	if err != nil {
		return t.failedMsg("request", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if t.aborted(ctx) {
			return t.cancelledMsg()
		}
		return t.failedMsg("connect", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			utils.Debug("Error closing response body: %v", err)
		}
	}()

	if err := engine.CheckStatus(resp); err != nil {
		return t.failedMsg("connect", err)
	}

	size := t.totalSize.Load()
	if size < 0 {
		size = resp.ContentLength
	}
	if size < 0 {
		size = types.UnknownSize
	}
	t.totalSize.Store(size)

	sink, err := t.openSink(t.DestPath)
	if err != nil {
		return t.failedMsg("open", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			utils.Debug("Error closing %s: %v", t.DestPath, err)
		}
	}()

	utils.Debug("Transfer %s: streaming to %s (size %d)", t.ID, t.DestPath, size)

	percentMode := size > 0
	if !percentMode {
		t.emit(events.StartedMsg{Header: t.header(), Filename: t.Request.Filename})
	}

	start := time.Now()
	buf := make([]byte, t.runtime.GetChunkSize())
	var written uint64
	lastPercent := -1
	mimeType := ""
	sniffed := false

	for {
		if t.aborted(ctx) {
			return t.cancelledMsg()
		}

		nr, readErr := resp.Body.Read(buf)
		// A chunk that arrives after Cancel is dropped
		if t.aborted(ctx) {
			return t.cancelledMsg()
		}
		if nr > 0 {
			if !sniffed {
				mimeType = sniffMIME(buf[:nr], resp.Header.Get("Content-Type"))
				sniffed = true
			}

			nw, writeErr := sink.Write(buf[:nr])
			if nw > 0 {
				written += uint64(nw)
				t.bytesRead.Store(written)
			}
			if writeErr != nil {
				return t.failedMsg("write", writeErr)
			}
			if nr != nw {
				return t.failedMsg("write", io.ErrShortWrite)
			}

			if percentMode {
				percent := int(written * 100 / uint64(size))
				if percent > 100 {
					percent = 100
				}
				if percent > lastPercent {
					lastPercent = percent
					t.emit(events.PercentMsg{Header: t.header(), Percent: percent})
					t.pace(ctx)
				}
			} else {
				t.emit(events.BytesMsg{Header: t.header(), Bytes: written})
				t.pace(ctx)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if t.aborted(ctx) {
				return t.cancelledMsg()
			}
			return t.failedMsg("read", readErr)
		}
	}

	if t.aborted(ctx) {
		return t.cancelledMsg()
	}
	if percentMode && lastPercent < 100 {
		t.emit(events.PercentMsg{Header: t.header(), Percent: 100})
	}

	elapsed := time.Since(start)
	if secs := elapsed.Seconds(); secs > 0 {
		utils.Debug("Downloaded %s in %s (%s/s)",
			t.DestPath,
			elapsed.Round(time.Millisecond),
			utils.ConvertBytesToHumanReadable(int64(float64(written)/secs)),
		)
	}

	return events.CompleteMsg{
		Header:   t.header(),
		Filename: t.Request.Filename,
		DestPath: t.DestPath,
		Total:    written,
		MimeType: mimeType,
	}
}

// pace sleeps for the configured pacing delay unless ctx ends first
func (t *Task) pace(ctx context.Context) {
	d := t.runtime.GetPacingDelay()
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// sniffMIME detects the type from the leading bytes and falls back to the
// media type the server declared.
func sniffMIME(head []byte, declared string) string {
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if declared == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return ""
	}
	return mediaType
}
