package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/trickle/internal/config"
	"github.com/surge-downloader/trickle/internal/download"
	"github.com/surge-downloader/trickle/internal/engine/events"
	"github.com/surge-downloader/trickle/internal/utils"
)

// Update handles messages and updates the model
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case events.StartedMsg:
		d := m.downloadFor(msg.DownloadID, msg.URL)
		if msg.Filename != "" {
			d.Filename = msg.Filename
		}
		d.Indeterminate = true
		d.Status = StatusSizeUnknown
		cmds = append(cmds, listenForActivity(m.service.Events()))

	case events.PercentMsg:
		d := m.downloadFor(msg.DownloadID, msg.URL)
		if !d.done {
			d.Percent = msg.Percent
			d.Status = statusDownloading + d.Filename
			d.Elapsed = time.Since(d.StartTime)
			cmds = append(cmds, d.progress.SetPercent(float64(msg.Percent)/100))
		}
		cmds = append(cmds, listenForActivity(m.service.Events()))

	case events.BytesMsg:
		d := m.downloadFor(msg.DownloadID, msg.URL)
		if !d.done {
			d.Indeterminate = true
			d.Downloaded = msg.Bytes
			d.Status = statusDownloadedFmt + utils.FormatBytes(msg.Bytes)
			d.Elapsed = time.Since(d.StartTime)
		}
		cmds = append(cmds, listenForActivity(m.service.Events()))

	case events.CompleteMsg:
		d := m.downloadFor(msg.DownloadID, msg.URL)
		d.done = true
		d.Downloaded = msg.Total
		d.MimeType = msg.MimeType
		d.Elapsed = time.Since(d.StartTime)
		d.Status = StatusCompleted
		if msg.Filename != "" {
			d.Filename = msg.Filename
		}
		if !d.Indeterminate {
			d.Percent = 100
			cmds = append(cmds, d.progress.SetPercent(1.0))
		}
		cmds = append(cmds, listenForActivity(m.service.Events()))

	case events.CancelledMsg:
		d := m.downloadFor(msg.DownloadID, msg.URL)
		d.done = true
		d.cancelled = true
		d.Downloaded = msg.Downloaded
		d.Status = StatusCancelled
		cmds = append(cmds, listenForActivity(m.service.Events()))

	case events.FailedMsg:
		d := m.downloadFor(msg.DownloadID, msg.URL)
		d.done = true
		d.err = msg.Err
		if d.err == nil {
			d.err = errors.New("transfer failed")
		}
		d.Downloaded = msg.Downloaded
		d.Status = statusErrorPrefix + d.err.Error()
		cmds = append(cmds, listenForActivity(m.service.Events()))

	case historyLoadedMsg:
		m.history = msg.records
		m.historyErr = msg.err
		return m, nil

	case tickMsg:
		for _, d := range m.downloads {
			if !d.done {
				d.Elapsed = time.Since(d.StartTime)
			}
		}
		return m, tickCmd()

	case progress.FrameMsg:
		for _, d := range m.downloads {
			newModel, cmd := d.progress.Update(msg)
			if p, ok := newModel.(progress.Model); ok {
				d.progress = p
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		for _, d := range m.downloads {
			d.progress.Width = m.progressWidth()
		}
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m RootModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case InputState:
		switch {
		case key.Matches(msg, InputKeys.Back):
			m.state = DashboardState
			m.input.Blur()
			return m, nil
		case key.Matches(msg, InputKeys.Submit):
			url := m.input.Value()
			m.input.Blur()
			m.input.SetValue("")
			m.state = DashboardState
			return m.addDownload(url), nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case HistoryState:
		switch {
		case key.Matches(msg, ViewKeys.Back):
			m.state = DashboardState
		case key.Matches(msg, ViewKeys.Refresh):
			return m, loadHistoryCmd(m.service)
		}
		return m, nil

	case SettingsState:
		n := len(config.CategoryOrder())
		switch {
		case key.Matches(msg, ViewKeys.Back):
			m.state = DashboardState
		case key.Matches(msg, ViewKeys.Left):
			m.SettingsActiveTab = (m.SettingsActiveTab + n - 1) % n
		case key.Matches(msg, ViewKeys.Right):
			m.SettingsActiveTab = (m.SettingsActiveTab + 1) % n
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, DashboardKeys.Quit):
		return m, tea.Quit

	case key.Matches(msg, DashboardKeys.Add):
		m.state = InputState
		m.input.SetValue("")
		return m, m.input.Focus()

	case key.Matches(msg, DashboardKeys.Paste):
		if !m.settings.General.ClipboardMonitor {
			m.setNotice("Clipboard access is disabled in settings", true)
			return m, nil
		}
		text, err := m.readClipboard()
		if err != nil {
			m.setNotice(fmt.Sprintf("Clipboard: %v", err), true)
			return m, nil
		}
		return m.addDownload(text), nil

	case key.Matches(msg, DashboardKeys.Cancel):
		if m.cursor < len(m.downloads) {
			d := m.downloads[m.cursor]
			if !d.done && !m.service.Cancel(d.ID) {
				m.setNotice("Nothing to cancel", true)
			}
		}

	case key.Matches(msg, DashboardKeys.History):
		m.state = HistoryState
		return m, loadHistoryCmd(m.service)

	case key.Matches(msg, DashboardKeys.Settings):
		m.state = SettingsState

	case key.Matches(msg, DashboardKeys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, DashboardKeys.Down):
		if m.cursor < len(m.downloads)-1 {
			m.cursor++
		}
	}
	return m, nil
}

// addDownload submits url to the service and adds its card on success.
func (m RootModel) addDownload(url string) RootModel {
	url = strings.TrimSpace(url)
	id, err := m.service.Add(url)
	if err != nil {
		switch {
		case errors.Is(err, download.ErrDuplicateTask):
			m.setNotice("Already downloading "+url, true)
		case errors.Is(err, download.ErrInvalidURL):
			m.setNotice("Not a valid http(s) URL", true)
		default:
			m.setNotice(err.Error(), true)
		}
		return m
	}
	utils.Debug("tui: added %s as %s", url, id)
	m.downloadFor(id, url)
	m.cursor = len(m.downloads) - 1
	m.setNotice("", false)
	return m
}

func (m *RootModel) setNotice(text string, isError bool) {
	m.notice = text
	m.noticeError = isError
}
