// Package download coordinates transfers: it probes, registers, starts and
// watches each one and records the outcome.
package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/surge-downloader/trickle/internal/core"
	"github.com/surge-downloader/trickle/internal/engine"
	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/state"
	"github.com/surge-downloader/trickle/internal/engine/transfer"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

var (
	// ErrInvalidURL is returned by Add for input that is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid download URL")

	// ErrShutdown is returned by Add after Shutdown.
	ErrShutdown = errors.New("download manager is shut down")
)

// DefaultMaxConcurrent limits how many transfers stream at once.
const DefaultMaxConcurrent = 3

var _ core.DownloadService = (*Manager)(nil)

// Manager runs transfers on background goroutines and forwards their events
// to a single channel.
type Manager struct {
	client   *http.Client
	runtime  *types.RuntimeConfig
	registry *Registry
	events   chan events.Event
	history  bool
	sem      chan struct{}
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started map[string]time.Time // Download ID -> start time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClient replaces the HTTP client built from the runtime config.
func WithClient(c *http.Client) ManagerOption {
	return func(m *Manager) { m.client = c }
}

// WithHistory enables or disables recording finished transfers.
func WithHistory(enabled bool) ManagerOption {
	return func(m *Manager) { m.history = enabled }
}

// WithMaxConcurrent sets how many transfers may stream at once.
func WithMaxConcurrent(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.sem = make(chan struct{}, n)
		}
	}
}

// WithEventBuffer sets the capacity of the forwarded event channel.
func WithEventBuffer(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 0 {
			m.events = make(chan events.Event, n)
		}
	}
}

// NewManager creates a manager. Callers must drain Events.
func NewManager(runtime *types.RuntimeConfig, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runtime:  runtime,
		registry: NewRegistry(),
		events:   make(chan events.Event, types.ProgressChannelBuffer),
		sem:      make(chan struct{}, DefaultMaxConcurrent),
		log:      utils.Logger("manager"),
		ctx:      ctx,
		cancel:   cancel,
		started:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil {
		m.client = engine.NewHTTPClient(runtime)
	}
	return m
}

// Registry exposes the in-flight task registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Events returns the channel all transfer events are forwarded to.
func (m *Manager) Events() <-chan events.Event { return m.events }

// ValidateURL trims raw and checks that it is an absolute http(s) URL.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidURL, raw)
	}
	return raw, nil
}

// Add registers rawURL and starts its transfer in the background:
// probe, start, forward events, deregister on the terminal event and
// record the outcome. A URL already in flight is rejected with
// ErrDuplicateTask.
func (m *Manager) Add(rawURL string) (string, error) {
	return m.AddRequest(types.DownloadRequest{URL: rawURL, ExpectedSize: types.UnknownSize})
}

// AddRequest is Add with an explicit filename, output directory or size hint.
func (m *Manager) AddRequest(req types.DownloadRequest) (string, error) {
	rawURL, err := ValidateURL(req.URL)
	if err != nil {
		return "", err
	}
	req.URL = rawURL

	id := uuid.New().String()
	task := transfer.New(req, m.client, m.runtime, transfer.WithID(id))

	// Holding mu orders wg.Add before Shutdown's cancel and Wait
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return "", ErrShutdown
	}

	if err := m.registry.Register(rawURL, task); err != nil {
		m.log.Debug().Str("url", rawURL).Msg("rejected duplicate download")
		return "", err
	}

	m.log.Info().Str("id", id).Str("url", rawURL).Str("dest", task.DestPath).Msg("download added")

	m.wg.Add(1)
	go m.run(task)
	return id, nil
}

func (m *Manager) run(task *transfer.Task) {
	defer m.wg.Done()

	// Wait for a free slot; a task cancelled while queued still reports Cancelled
	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-task.CancelRequested():
	case <-m.ctx.Done():
		task.Cancel()
	}

	if task.TotalSize() < 0 && !task.IsCancelled() && m.ctx.Err() == nil {
		probe, err := engine.Probe(m.ctx, m.client, task.Request.URL, m.runtime)
		if err != nil {
			m.log.Warn().Err(err).Str("url", task.Request.URL).Msg("size probe failed, continuing with unknown size")
		} else if probe.Known() {
			task.SetSizeHint(probe.Size)
		}
	}

	m.mu.Lock()
	m.started[task.ID] = time.Now()
	m.mu.Unlock()

	if err := task.Start(m.ctx); err != nil {
		m.log.Error().Err(err).Str("id", task.ID).Msg("failed to start transfer")
		m.registry.Remove(task.Request.URL, task)
		return
	}

	for e := range task.Events() {
		if events.IsTerminal(e) {
			m.registry.Remove(task.Request.URL, task)
			m.record(task, e)
		}
		m.events <- e
	}
}

// record stores the terminal outcome in the history database.
func (m *Manager) record(task *transfer.Task, e events.Event) {
	m.mu.Lock()
	startedAt := m.started[task.ID]
	delete(m.started, task.ID)
	m.mu.Unlock()

	rec := types.TransferRecord{
		ID:         task.ID,
		URL:        task.Request.URL,
		Filename:   task.Request.Filename,
		DestPath:   task.DestPath,
		TotalSize:  task.TotalSize(),
		Downloaded: int64(task.BytesRead()),
		StartedAt:  startedAt.Unix(),
		FinishedAt: time.Now().Unix(),
	}
	logEvent := m.log.Info()

	switch msg := e.(type) {
	case events.CompleteMsg:
		rec.Status = types.StatusCompleted
		rec.MimeType = msg.MimeType
	case events.CancelledMsg:
		rec.Status = types.StatusCancelled
	case events.FailedMsg:
		rec.Status = types.StatusFailed
		if msg.Err != nil {
			rec.Error = msg.Err.Error()
		}
		logEvent = m.log.Warn().Str("error", rec.Error)
	}

	logEvent.Str("id", rec.ID).Str("status", rec.Status).Int64("bytes", rec.Downloaded).Msg("download finished")

	if !m.history {
		return
	}
	if err := state.RecordTransfer(rec); err != nil {
		m.log.Error().Err(err).Str("id", rec.ID).Msg("failed to record history")
	}
}

// Cancel requests cancellation of the download with the given ID.
func (m *Manager) Cancel(id string) bool {
	task, ok := m.registry.FindByID(id)
	if !ok {
		return false
	}
	return task.Cancel()
}

// CancelURL requests cancellation of the download registered for rawURL.
func (m *Manager) CancelURL(rawURL string) bool {
	task, ok := m.registry.Get(strings.TrimSpace(rawURL))
	if !ok {
		return false
	}
	return task.Cancel()
}

// List returns a snapshot of every in-flight download.
func (m *Manager) List() []types.DownloadStatus {
	tasks := m.registry.List()
	out := make([]types.DownloadStatus, 0, len(tasks))
	for _, task := range tasks {
		status := task.State().String()
		if task.State() == transfer.StateIdle {
			status = "queued"
		}
		out = append(out, types.DownloadStatus{
			ID:         task.ID,
			URL:        task.Request.URL,
			Filename:   task.Request.Filename,
			TotalSize:  task.TotalSize(),
			Downloaded: int64(task.BytesRead()),
			Status:     status,
		})
	}
	return out
}

// History returns finished downloads from the history database.
func (m *Manager) History(limit int) ([]types.TransferRecord, error) {
	return state.ListHistory(limit)
}

// Wait blocks until every added download has finished or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every in-flight download and waits for them to stop.
// Events must still be drained until Shutdown returns.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	n := m.registry.CancelAll()
	m.log.Debug().Int("cancelled", n).Msg("manager shutting down")
	m.wg.Wait()
}
