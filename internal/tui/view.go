package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/surge-downloader/trickle/internal/engine/types"
	"github.com/surge-downloader/trickle/internal/utils"
)

func (m RootModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.state {
	case InputState:
		return m.viewInput()
	case HistoryState:
		return m.viewHistory()
	case SettingsState:
		return m.viewSettings()
	}
	return m.viewDashboard()
}

func (m RootModel) viewDashboard() string {
	active, completed, failed := m.CalculateStats()
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		TitleStyle.Render("trickle"),
		StatsStyle.Render(fmt.Sprintf("Active: %d  Completed: %d  Failed: %d", active, completed, failed)),
	)

	var cards []string
	if len(m.downloads) == 0 {
		cards = append(cards, LabelStyle.Render("No downloads yet. Press [a] to add one."))
	}
	cardWidth := m.width - HeaderWidthOffset*2
	for i, d := range m.downloads {
		cards = append(cards, m.renderCard(d, i == m.cursor, cardWidth))
	}

	notice := ""
	if m.notice != "" {
		if m.noticeError {
			notice = StatusErrorStyle.Render(m.notice)
		} else {
			notice = StatusDoneStyle.Render(m.notice)
		}
	}

	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		lipgloss.JoinVertical(lipgloss.Left, cards...),
		notice,
		m.help.View(DashboardKeys),
	))
}

// renderCard draws one download: name, status line and either a percent bar
// or a spinner with the byte count when the size is unknown.
func (m RootModel) renderCard(d *DownloadModel, selected bool, width int) string {
	style := CardStyle
	if selected {
		style = SelectedCardStyle
	}
	if width > 4 {
		style = style.Width(width - 4)
	}

	var bar string
	switch {
	case d.err != nil || d.cancelled:
		bar = ""
	case d.Indeterminate && !d.done:
		bar = m.spinner.View() + " " + CardStatsStyle.Render(utils.FormatBytes(d.Downloaded))
	case d.Indeterminate:
		bar = CardStatsStyle.Render(utils.FormatBytes(d.Downloaded))
	default:
		bar = d.progress.ViewAs(float64(d.Percent) / 100)
	}

	meta := d.Elapsed.Round(time.Second).String()
	if d.MimeType != "" {
		meta += "  " + d.MimeType
	}

	lines := []string{
		CardTitleStyle.Render(truncateString(d.Filename, width-8)),
		renderStatus(d),
	}
	if bar != "" {
		lines = append(lines, bar)
	}
	lines = append(lines, CardStatsStyle.Render(meta))
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderStatus(d *DownloadModel) string {
	switch {
	case d.err != nil:
		return StatusErrorStyle.Render("✖ " + d.Status)
	case d.cancelled:
		return StatusWarnStyle.Render("⏹ " + d.Status)
	case d.done:
		return StatusDoneStyle.Render("✔ " + d.Status)
	default:
		return ValueStyle.Render(d.Status)
	}
}

func (m RootModel) viewInput() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		"",
		lipgloss.JoinHorizontal(lipgloss.Left, LabelStyle.Width(6).Render("URL:"), m.input.View()),
		"",
		m.help.View(InputKeys),
	)
	padded := lipgloss.NewStyle().Padding(0, 2).Render(content)
	box := renderBtopBox("Add Download", padded, InputWidth+14, 6, ColorSecondary, false)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m RootModel) viewHistory() string {
	width := m.width - 4
	height := m.height - 2
	if height < 6 {
		height = 6
	}

	var lines []string
	switch {
	case m.historyErr != nil:
		lines = append(lines, StatusErrorStyle.Render("History unavailable: "+m.historyErr.Error()))
	case len(m.history) == 0:
		lines = append(lines, LabelStyle.Render("No finished transfers recorded."))
	default:
		for _, r := range m.history {
			lines = append(lines, renderHistoryLine(r, width-4))
		}
	}
	lines = append(lines, "", m.help.View(ViewKeys))

	content := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	return renderBtopBox("History", content, width, height, ColorPrimary, false)
}

func renderHistoryLine(r types.TransferRecord, width int) string {
	var status string
	switch r.Status {
	case types.StatusCompleted:
		status = StatusDoneStyle.Render("✔")
	case types.StatusFailed:
		status = StatusErrorStyle.Render("✖")
	default:
		status = StatusWarnStyle.Render("⏹")
	}

	size := humanize.Bytes(uint64(max(r.Downloaded, 0)))
	when := humanize.Time(time.Unix(r.FinishedAt, 0))
	name := truncateString(r.Filename, max(width-30, 10))
	return fmt.Sprintf("%s %s  %s  %s", status, ValueStyle.Render(name), LabelStyle.Render(size), LabelStyle.Render(when))
}

func truncateString(s string, i int) string {
	if i <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) > i {
		return string(runes[:i]) + "..."
	}
	return s
}

// renderBtopBox creates a btop-style box with title embedded in the top border
// titleRight: if true, title appears on the right side; if false, title appears on the left
// Example (left):  ╭─ TITLE ─────────────────────────────────╮
func renderBtopBox(title string, content string, width, height int, borderColor lipgloss.Color, titleRight bool) string {
	const (
		topLeft     = "╭"
		topRight    = "╮"
		bottomLeft  = "╰"
		bottomRight = "╯"
		horizontal  = "─"
		vertical    = "│"
	)

	innerWidth := width - 2
	if innerWidth < 1 {
		innerWidth = 1
	}

	titleText := fmt.Sprintf(" %s ", title)
	remainingWidth := innerWidth - lipgloss.Width(titleText) - 1
	if remainingWidth < 0 {
		remainingWidth = 0
	}

	border := lipgloss.NewStyle().Foreground(borderColor)
	titleStyle := lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	var topBorder string
	if titleRight {
		topBorder = border.Render(topLeft+strings.Repeat(horizontal, remainingWidth)) +
			titleStyle.Render(titleText) +
			border.Render(horizontal+topRight)
	} else {
		topBorder = border.Render(topLeft+horizontal) +
			titleStyle.Render(titleText) +
			border.Render(strings.Repeat(horizontal, remainingWidth)+topRight)
	}

	bottomBorder := border.Render(bottomLeft + strings.Repeat(horizontal, innerWidth) + bottomRight)

	contentLines := strings.Split(content, "\n")
	innerHeight := height - 2

	wrapped := make([]string, 0, innerHeight)
	for i := 0; i < innerHeight; i++ {
		line := ""
		if i < len(contentLines) {
			line = contentLines[i]
		}
		w := lipgloss.Width(line)
		if w < innerWidth {
			line += strings.Repeat(" ", innerWidth-w)
		} else if w > innerWidth {
			line = lipgloss.NewStyle().MaxWidth(innerWidth).Render(line)
		}
		wrapped = append(wrapped, border.Render(vertical)+line+border.Render(vertical))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		topBorder,
		strings.Join(wrapped, "\n"),
		bottomBorder,
	)
}
