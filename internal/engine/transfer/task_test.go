package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/surge-downloader/trickle/internal/engine"
	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/testutil"
)

// collect drains a task's event stream until it closes.
func collect(t *testing.T, task *Task) []events.Event {
	t.Helper()
	var got []events.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e, ok := <-task.Events():
			if !ok {
				return got
			}
			got = append(got, e)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(got))
			return got
		}
	}
}

func newRequest(t *testing.T, rawurl string, size int64) types.DownloadRequest {
	t.Helper()
	return types.DownloadRequest{
		URL:          rawurl,
		Filename:     "out.bin",
		OutputDir:    t.TempDir(),
		ExpectedSize: size,
	}
}

func percents(t *testing.T, evs []events.Event) []int {
	t.Helper()
	var out []int
	for _, e := range evs {
		if p, ok := e.(events.PercentMsg); ok {
			out = append(out, p.Percent)
		}
	}
	return out
}

func TestTask_PercentMode(t *testing.T) {
	size := int64(100 * types.KB)
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(size),
		testutil.WithRandomData(true),
		testutil.WithWriteChunk(1024),
	)

	task := New(newRequest(t, server.URL()+"/out.bin", types.UnknownSize), nil, nil, WithID("dl-1"))
	if task.State() != StateIdle {
		t.Fatalf("Expected idle, got %s", task.State())
	}
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	evs := collect(t, task)
	<-task.Done()

	if len(evs) < 2 {
		t.Fatalf("Expected progress and completion, got %d events", len(evs))
	}
	for _, e := range evs[:len(evs)-1] {
		if _, ok := e.(events.PercentMsg); !ok {
			t.Fatalf("Expected only percent updates before the end, got %T", e)
		}
		if e.ID() != "dl-1" {
			t.Errorf("Expected ID dl-1, got %s", e.ID())
		}
	}

	ps := percents(t, evs)
	for i := 1; i < len(ps); i++ {
		if ps[i] <= ps[i-1] {
			t.Fatalf("Percent sequence not strictly increasing: %v", ps)
		}
	}
	if ps[len(ps)-1] != 100 {
		t.Errorf("Expected last percent 100, got %d", ps[len(ps)-1])
	}

	done, ok := evs[len(evs)-1].(events.CompleteMsg)
	if !ok {
		t.Fatalf("Expected CompleteMsg last, got %T", evs[len(evs)-1])
	}
	if done.Total != uint64(size) {
		t.Errorf("Expected total %d, got %d", size, done.Total)
	}
	if done.DestPath != task.DestPath {
		t.Errorf("Expected dest %s, got %s", task.DestPath, done.DestPath)
	}

	if task.State() != StateCompleted {
		t.Errorf("Expected completed, got %s", task.State())
	}
	if task.BytesRead() != uint64(size) {
		t.Errorf("Expected %d bytes read, got %d", size, task.BytesRead())
	}
	if task.TotalSize() != size {
		t.Errorf("Expected total size %d, got %d", size, task.TotalSize())
	}
	if task.Err() != nil {
		t.Errorf("Expected nil error, got %v", task.Err())
	}
	if err := testutil.AssertFileContent(task.DestPath, server.Data()); err != nil {
		t.Error(err)
	}
}

func TestTask_SizeHintAppendsFinalHundred(t *testing.T) {
	size := int64(10 * types.KB)
	server := testutil.NewMockServerT(t, testutil.WithFileSize(size))

	// A hint larger than the body means the loop never reaches 100
	task := New(newRequest(t, server.URL(), 4*size), nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)

	ps := percents(t, evs)
	if len(ps) == 0 {
		t.Fatal("Expected percent updates")
	}
	hundreds := 0
	for i, p := range ps {
		if p == 100 {
			hundreds++
		}
		if i > 0 && p <= ps[i-1] {
			t.Fatalf("Percent sequence not strictly increasing: %v", ps)
		}
	}
	if hundreds != 1 || ps[len(ps)-1] != 100 {
		t.Errorf("Expected exactly one trailing 100, got %v", ps)
	}
	if _, ok := evs[len(evs)-1].(events.CompleteMsg); !ok {
		t.Errorf("Expected CompleteMsg last, got %T", evs[len(evs)-1])
	}
}

func TestTask_ByteMode(t *testing.T) {
	size := int64(20 * types.KB)
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(size),
		testutil.WithoutContentLength(),
		testutil.WithWriteChunk(2048),
	)

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)

	started, ok := evs[0].(events.StartedMsg)
	if !ok {
		t.Fatalf("Expected StartedMsg first, got %T", evs[0])
	}
	if started.Filename != "out.bin" {
		t.Errorf("Expected filename out.bin, got %s", started.Filename)
	}

	var last uint64
	for _, e := range evs[1 : len(evs)-1] {
		b, ok := e.(events.BytesMsg)
		if !ok {
			t.Fatalf("Expected only byte updates in byte mode, got %T", e)
		}
		if b.Bytes <= last {
			t.Fatalf("Byte counts must grow, got %d after %d", b.Bytes, last)
		}
		last = b.Bytes
	}
	if last != uint64(size) {
		t.Errorf("Expected last byte count %d, got %d", size, last)
	}

	if _, ok := evs[len(evs)-1].(events.CompleteMsg); !ok {
		t.Errorf("Expected CompleteMsg last, got %T", evs[len(evs)-1])
	}
	if task.TotalSize() != types.UnknownSize {
		t.Errorf("Expected unknown total size, got %d", task.TotalSize())
	}
	if err := testutil.VerifyFileSize(task.DestPath, size); err != nil {
		t.Error(err)
	}
}

func TestTask_ZeroLength(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(0))

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)

	if len(evs) != 2 {
		t.Fatalf("Expected Started and Complete, got %d events", len(evs))
	}
	if _, ok := evs[0].(events.StartedMsg); !ok {
		t.Errorf("Expected StartedMsg, got %T", evs[0])
	}
	if _, ok := evs[1].(events.CompleteMsg); !ok {
		t.Errorf("Expected CompleteMsg, got %T", evs[1])
	}
	if err := testutil.VerifyFileSize(task.DestPath, 0); err != nil {
		t.Error(err)
	}
}

func TestTask_Cancel(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(64*types.KB),
		testutil.WithStallAfterBytes(8*types.KB),
	)

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var evs []events.Event
	select {
	case e := <-task.Events():
		evs = append(evs, e)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first event")
	}

	if !task.Cancel() {
		t.Error("First Cancel should report true")
	}
	if task.Cancel() {
		t.Error("Second Cancel should report false")
	}
	evs = append(evs, collect(t, task)...)

	cancelled := 0
	for _, e := range evs {
		if _, ok := e.(events.CancelledMsg); ok {
			cancelled++
		}
		if p, ok := e.(events.PercentMsg); ok && p.Percent == 100 {
			t.Error("Cancelled transfer must not report 100")
		}
	}
	if cancelled != 1 {
		t.Errorf("Expected exactly one CancelledMsg, got %d", cancelled)
	}
	msg, ok := evs[len(evs)-1].(events.CancelledMsg)
	if !ok {
		t.Fatalf("Expected CancelledMsg last, got %T", evs[len(evs)-1])
	}
	if msg.Downloaded != task.BytesRead() {
		t.Errorf("Expected downloaded %d, got %d", task.BytesRead(), msg.Downloaded)
	}

	if task.State() != StateCancelled {
		t.Errorf("Expected cancelled, got %s", task.State())
	}
	if !errors.Is(task.Err(), ErrCancelled) {
		t.Errorf("Expected ErrCancelled, got %v", task.Err())
	}
	if task.Cancel() {
		t.Error("Cancel after termination should report false")
	}

	// Partial output is kept
	if err := testutil.VerifyFileSize(task.DestPath, int64(task.BytesRead())); err != nil {
		t.Error(err)
	}
	if task.BytesRead() > 8*types.KB {
		t.Errorf("Read past the stall point: %d", task.BytesRead())
	}
}

func TestTask_CancelBeforeStart(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(1024))

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if !task.Cancel() {
		t.Fatal("Cancel on idle task should report true")
	}
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)

	if len(evs) != 1 {
		t.Fatalf("Expected only CancelledMsg, got %d events", len(evs))
	}
	if _, ok := evs[0].(events.CancelledMsg); !ok {
		t.Errorf("Expected CancelledMsg, got %T", evs[0])
	}
	if server.Stats().GetRequests != 0 {
		t.Error("Cancelled task should not connect")
	}
}

func TestTask_ParentContextCancel(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(64*types.KB),
		testutil.WithStallAfterBytes(4*types.KB),
	)

	ctx, cancel := context.WithCancel(context.Background())
	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if err := task.Start(ctx); err != nil {
		t.Fatal(err)
	}
	<-task.Events()
	cancel()
	evs := collect(t, task)

	if _, ok := evs[len(evs)-1].(events.CancelledMsg); !ok {
		t.Fatalf("Expected CancelledMsg when the parent context ends, got %T", evs[len(evs)-1])
	}
	if task.State() != StateCancelled {
		t.Errorf("Expected cancelled, got %s", task.State())
	}
}

func TestTask_FailMidStream(t *testing.T) {
	size := int64(64 * types.KB)
	failAt := int64(10 * types.KB)
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(size),
		testutil.WithRandomData(true),
		testutil.WithFailAfterBytes(failAt),
	)

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	result := make(chan error, 1)
	go func() { result <- task.Run(context.Background()) }()
	evs := collect(t, task)
	err := <-result

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Expected unexpected EOF, got %v", err)
	}
	var transferErr *engine.TransferError
	if !errors.As(err, &transferErr) || transferErr.Op != "read" {
		t.Errorf("Expected read TransferError, got %v", err)
	}

	failed, ok := evs[len(evs)-1].(events.FailedMsg)
	if !ok {
		t.Fatalf("Expected FailedMsg last, got %T", evs[len(evs)-1])
	}
	if failed.Downloaded != uint64(failAt) {
		t.Errorf("Expected %d bytes downloaded, got %d", failAt, failed.Downloaded)
	}
	for _, p := range percents(t, evs) {
		if p == 100 {
			t.Error("Failed transfer must not report 100")
		}
	}
	if task.State() != StateFailed {
		t.Errorf("Expected failed, got %s", task.State())
	}

	// Partial output is kept
	if err := testutil.AssertFileContent(task.DestPath, server.Data()[:failAt]); err != nil {
		t.Error(err)
	}
}

func TestTask_HTTPError(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithStatus(http.StatusNotFound))

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)

	if len(evs) != 1 {
		t.Fatalf("Expected a single FailedMsg, got %d events", len(evs))
	}
	failed, ok := evs[0].(events.FailedMsg)
	if !ok {
		t.Fatalf("Expected FailedMsg, got %T", evs[0])
	}
	var statusErr *engine.StatusError
	if !errors.As(failed.Err, &statusErr) || statusErr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 StatusError, got %v", failed.Err)
	}
	if testutil.FileExists(task.DestPath) {
		t.Error("No file should be created for an error response")
	}
}

func TestTask_ConnectError(t *testing.T) {
	server := testutil.NewMockServerT(t)
	url := server.URL()
	server.Close()

	task := New(newRequest(t, url, types.UnknownSize), nil, nil)
	result := make(chan error, 1)
	go func() { result <- task.Run(context.Background()) }()
	evs := collect(t, task)
	err := <-result

	var transferErr *engine.TransferError
	if !errors.As(err, &transferErr) || transferErr.Op != "connect" {
		t.Fatalf("Expected connect TransferError, got %v", err)
	}
	if len(evs) != 1 {
		t.Errorf("Expected only the FailedMsg, got %d events", len(evs))
	}
}

func TestTask_StartTwice(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(1024))

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := task.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}
	collect(t, task)
	if err := task.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Expected ErrAlreadyStarted from Run, got %v", err)
	}
}

func TestTask_Pacing(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(16*types.KB))

	delay := 20 * time.Millisecond
	runtime := &types.RuntimeConfig{PacingDelay: delay}
	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, runtime)

	start := time.Now()
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)
	elapsed := time.Since(start)

	updates := len(percents(t, evs))
	if updates == 0 {
		t.Fatal("Expected percent updates")
	}
	// The final 100 may be appended without a pause
	if min := time.Duration(updates-1) * delay; elapsed < min {
		t.Errorf("Expected at least %v with pacing, took %v", min, elapsed)
	}
}

func TestTask_PacingInterruptedByCancel(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(16*types.KB))

	runtime := &types.RuntimeConfig{PacingDelay: time.Hour}
	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, runtime)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-task.Events()
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Cancel should interrupt the pacing delay")
	}
	if task.State() != StateCancelled {
		t.Errorf("Expected cancelled, got %s", task.State())
	}
}

func TestTask_MimeSniff(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 256)...)
	server := testutil.NewMockServerT(t, testutil.WithData(png))

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)

	done, ok := evs[len(evs)-1].(events.CompleteMsg)
	if !ok {
		t.Fatalf("Expected CompleteMsg, got %T", evs[len(evs)-1])
	}
	if done.MimeType != "image/png" {
		t.Errorf("Expected image/png, got %q", done.MimeType)
	}
}

func TestTask_MimeFallsBackToHeader(t *testing.T) {
	server := testutil.NewMockServerT(t,
		testutil.WithData([]byte("plain words")),
		testutil.WithContentType("text/plain; charset=utf-8"),
	)

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)

	done := evs[len(evs)-1].(events.CompleteMsg)
	if done.MimeType != "text/plain" {
		t.Errorf("Expected text/plain, got %q", done.MimeType)
	}
}

func TestTask_DerivesFilename(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(10))
	dir := t.TempDir()

	tests := []struct {
		url  string
		want string
	}{
		{server.URL() + "/files/report.pdf", "report.pdf"},
		{server.URL() + "/download?id=3", "downloaded_file"},
		{server.URL() + "/", "downloaded_file"},
	}

	for _, tt := range tests {
		task := New(types.DownloadRequest{URL: tt.url, OutputDir: dir, ExpectedSize: types.UnknownSize}, nil, nil)
		if got := filepath.Base(task.DestPath); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.url, tt.want, got)
		}
	}
}

func TestTask_OutputDirFromRuntime(t *testing.T) {
	dir := t.TempDir()
	runtime := &types.RuntimeConfig{OutputDir: dir}

	task := New(types.DownloadRequest{URL: "http://example.com/a.txt", ExpectedSize: types.UnknownSize}, nil, runtime)
	if task.DestPath != filepath.Join(dir, "a.txt") {
		t.Errorf("Expected dest in runtime output dir, got %s", task.DestPath)
	}
}

type recordingSink struct {
	bytes.Buffer
	closed    atomic.Bool
	failAfter int // Fail writes once this many bytes are stored (0 = never)
	short     bool
}

func (s *recordingSink) Write(p []byte) (int, error) {
	if s.short && len(p) > 1 {
		return s.Buffer.Write(p[:len(p)-1])
	}
	if s.failAfter > 0 && s.Len() >= s.failAfter {
		return 0, errors.New("disk full")
	}
	return s.Buffer.Write(p)
}

func (s *recordingSink) Close() error {
	s.closed.Store(true)
	return errors.New("close failure is swallowed")
}

func TestTask_SinkWriteError(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(32*types.KB))

	sink := &recordingSink{failAfter: 1}
	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil,
		WithSinkOpener(func(string) (io.WriteCloser, error) { return sink, nil }))
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	evs := collect(t, task)

	failed, ok := evs[len(evs)-1].(events.FailedMsg)
	if !ok {
		t.Fatalf("Expected FailedMsg, got %T", evs[len(evs)-1])
	}
	if !strings.Contains(failed.Err.Error(), "disk full") {
		t.Errorf("Expected the write error message, got %v", failed.Err)
	}
	var transferErr *engine.TransferError
	if !errors.As(failed.Err, &transferErr) || transferErr.Op != "write" {
		t.Errorf("Expected write TransferError, got %v", failed.Err)
	}
	if !sink.closed.Load() {
		t.Error("Sink should be closed after a failure")
	}
}

func TestTask_ShortWrite(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(8*types.KB))

	sink := &recordingSink{short: true}
	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil,
		WithSinkOpener(func(string) (io.WriteCloser, error) { return sink, nil }))
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	collect(t, task)

	if !errors.Is(task.Err(), io.ErrShortWrite) {
		t.Errorf("Expected short write, got %v", task.Err())
	}
}

func TestTask_SinkClosedOnSuccess(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(8*types.KB), testutil.WithRandomData(true))

	sink := &recordingSink{}
	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil,
		WithSinkOpener(func(string) (io.WriteCloser, error) { return sink, nil }))
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	collect(t, task)

	if task.State() != StateCompleted {
		t.Fatalf("Close errors must not fail the transfer, got %s: %v", task.State(), task.Err())
	}
	if !sink.closed.Load() {
		t.Error("Sink should be closed after completion")
	}
	if !bytes.Equal(sink.Bytes(), server.Data()) {
		t.Error("Sink content differs from served data")
	}
}

func TestTask_SinkOpenError(t *testing.T) {
	server := testutil.NewMockServerT(t, testutil.WithFileSize(1024))

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil,
		WithSinkOpener(func(string) (io.WriteCloser, error) { return nil, errors.New("read-only") }))
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	collect(t, task)

	var transferErr *engine.TransferError
	if !errors.As(task.Err(), &transferErr) || transferErr.Op != "open" {
		t.Errorf("Expected open TransferError, got %v", task.Err())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:      "idle",
		StateRunning:   "running",
		StateCompleted: "completed",
		StateCancelled: "cancelled",
		StateFailed:    "failed",
		State(42):      "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %s, want %s", s, s.String(), want)
		}
	}
	if StateRunning.Terminal() || !StateFailed.Terminal() {
		t.Error("Terminal() misclassifies states")
	}
}

func TestTask_SetSizeHint(t *testing.T) {
	size := int64(12 * types.KB)
	server := testutil.NewMockServerT(t,
		testutil.WithFileSize(size),
		testutil.WithoutContentLength(),
	)

	task := New(newRequest(t, server.URL(), types.UnknownSize), nil, nil)
	if task.SetSizeHint(-5) {
		t.Error("Negative hints should be rejected")
	}
	if !task.SetSizeHint(size) {
		t.Fatal("Hint should be accepted while idle")
	}
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if task.SetSizeHint(1) {
		t.Error("Hint should be rejected once started")
	}
	evs := collect(t, task)

	// The hint selects percent mode even though the response has no length
	if _, ok := evs[0].(events.PercentMsg); !ok {
		t.Fatalf("Expected percent updates, got %T first", evs[0])
	}
	ps := percents(t, evs)
	if ps[len(ps)-1] != 100 {
		t.Errorf("Expected to end at 100, got %v", ps)
	}
}

func TestTask_CancelRequestedChannel(t *testing.T) {
	task := New(types.DownloadRequest{URL: "http://example.com/x", OutputDir: t.TempDir(), ExpectedSize: types.UnknownSize}, nil, nil)

	select {
	case <-task.CancelRequested():
		t.Fatal("Channel should be open before Cancel")
	default:
	}
	if task.IsCancelled() {
		t.Error("IsCancelled should be false before Cancel")
	}

	task.Cancel()
	select {
	case <-task.CancelRequested():
	default:
		t.Fatal("Channel should be closed after Cancel")
	}
	if !task.IsCancelled() {
		t.Error("IsCancelled should be true after Cancel")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// gatedBody returns one chunk, then blocks its second Read until gate is
// closed and returns another chunk anyway.
type gatedBody struct {
	reads   int
	entered chan struct{}
	gate    chan struct{}
}

func (b *gatedBody) Read(p []byte) (int, error) {
	b.reads++
	switch b.reads {
	case 1:
		return copy(p, bytes.Repeat([]byte("a"), 10)), nil
	case 2:
		close(b.entered)
		<-b.gate
		return copy(p, bytes.Repeat([]byte("b"), 10)), nil
	default:
		return 0, io.EOF
	}
}

func (b *gatedBody) Close() error { return nil }

func TestTask_ChunkAfterCancelDropped(t *testing.T) {
	body := &gatedBody{entered: make(chan struct{}), gate: make(chan struct{})}
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode:    http.StatusOK,
			Header:        http.Header{},
			Body:          body,
			ContentLength: -1,
			Request:       r,
		}, nil
	})}

	task := New(newRequest(t, "http://files.invalid/data.bin", types.UnknownSize), client, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-body.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the second read")
	}
	task.Cancel()
	close(body.gate)

	evs := collect(t, task)
	for _, e := range evs {
		if b, ok := e.(events.BytesMsg); ok && b.Bytes > 10 {
			t.Errorf("Progress reported after cancel: %d bytes", b.Bytes)
		}
	}
	msg, ok := evs[len(evs)-1].(events.CancelledMsg)
	if !ok {
		t.Fatalf("Expected CancelledMsg last, got %T", evs[len(evs)-1])
	}
	if msg.Downloaded != 10 {
		t.Errorf("Expected 10 bytes downloaded, got %d", msg.Downloaded)
	}
	if err := testutil.AssertFileContent(task.DestPath, bytes.Repeat([]byte("a"), 10)); err != nil {
		t.Error(err)
	}
}
