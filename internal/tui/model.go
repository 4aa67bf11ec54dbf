package tui

import (
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/trickle/internal/config"
	"github.com/surge-downloader/trickle/internal/core"
	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

type UIState int

const (
	DashboardState UIState = iota
	InputState
	HistoryState
	SettingsState
)

// DownloadModel is the view state of one transfer
type DownloadModel struct {
	ID       string
	URL      string
	Filename string

	Percent       int
	Downloaded    uint64
	Indeterminate bool // Size unknown, byte counts only
	Status        string
	MimeType      string

	StartTime time.Time
	Elapsed   time.Duration

	progress progress.Model

	done      bool
	cancelled bool
	err       error
}

// NewDownloadModel creates a queued download row
func NewDownloadModel(id, url, filename string) *DownloadModel {
	return &DownloadModel{
		ID:        id,
		URL:       url,
		Filename:  filename,
		Status:    StatusQueued,
		StartTime: time.Now(),
		progress:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(DefaultProgressWidth)),
	}
}

// Done reports whether the transfer has reached a terminal state.
func (d *DownloadModel) Done() bool { return d.done }

// Err returns the failure, if any.
func (d *DownloadModel) Err() error { return d.err }

type RootModel struct {
	service  core.DownloadService
	settings *config.Settings

	downloads []*DownloadModel
	width     int
	height    int
	state     UIState

	input   textinput.Model
	spinner spinner.Model
	help    help.Model

	// Navigation
	cursor int

	notice      string
	noticeError bool

	history    []types.TransferRecord
	historyErr error

	SettingsActiveTab int

	readClipboard func() (string, error)
}

// ModelOption configures a RootModel
type ModelOption func(*RootModel)

// WithClipboardReader replaces the system clipboard, mainly for tests.
func WithClipboardReader(read func() (string, error)) ModelOption {
	return func(m *RootModel) { m.readClipboard = read }
}

// WithDownload shows a card for a download added before the program starts.
func WithDownload(id, url string) ModelOption {
	return func(m *RootModel) { m.downloadFor(id, url) }
}

// InitialRootModel builds the dashboard around service.
func InitialRootModel(service core.DownloadService, settings *config.Settings, opts ...ModelOption) RootModel {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com/file.zip"
	urlInput.Width = InputWidth
	urlInput.Prompt = ""

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StatusWarnStyle

	m := RootModel{
		service:       service,
		settings:      settings,
		downloads:     make([]*DownloadModel, 0),
		state:         DashboardState,
		input:         urlInput,
		spinner:       s,
		help:          help.New(),
		readClipboard: clipboard.ReadAll,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Downloads returns the rows in display order.
func (m RootModel) Downloads() []*DownloadModel { return m.downloads }

// State returns the active page.
func (m RootModel) State() UIState { return m.state }

// Notice returns the last message shown in the status line.
func (m RootModel) Notice() string { return m.notice }

type tickMsg time.Time

type historyLoadedMsg struct {
	records []types.TransferRecord
	err     error
}

func (m RootModel) Init() tea.Cmd {
	return tea.Batch(listenForActivity(m.service.Events()), m.spinner.Tick, tickCmd())
}

// listenForActivity waits for the next forwarded transfer event
func listenForActivity(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-sub
		if !ok {
			return nil
		}
		return e
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(TickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func loadHistoryCmd(service core.DownloadService) tea.Cmd {
	return func() tea.Msg {
		records, err := service.History(HistoryLimit)
		return historyLoadedMsg{records: records, err: err}
	}
}

// downloadFor returns the row for id, creating it for transfers added
// outside the TUI.
func (m *RootModel) downloadFor(id, url string) *DownloadModel {
	for _, d := range m.downloads {
		if d.ID == id {
			return d
		}
	}
	d := NewDownloadModel(id, url, utils.DeriveFilename(url, m.settings.General.FallbackFilename))
	d.progress.Width = m.progressWidth()
	m.downloads = append(m.downloads, d)
	return d
}

func (m RootModel) progressWidth() int {
	if m.width == 0 {
		return DefaultProgressWidth
	}
	w := m.width - ProgressBarWidthOffset*2
	if w < 10 {
		w = 10
	}
	return w
}

// CalculateStats returns counts of active, completed and failed downloads.
func (m RootModel) CalculateStats() (active, completed, failed int) {
	for _, d := range m.downloads {
		switch {
		case !d.done:
			active++
		case d.err != nil:
			failed++
		case !d.cancelled:
			completed++
		}
	}
	return active, completed, failed
}
