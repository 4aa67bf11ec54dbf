package tui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/trickle/internal/config"
	"github.com/surge-downloader/trickle/internal/utils"
)

// viewSettings renders the Btop-style settings page. Values are read-only
// here; `trickle config set` edits them.
func (m RootModel) viewSettings() string {
	width := 76
	height := 20
	if m.width < width+4 {
		width = m.width - 4
	}
	if m.height < height+4 {
		height = m.height - 4
	}

	categories := config.CategoryOrder()
	metadata := config.GetSettingsMetadata()

	var tabItems []string
	for i, cat := range categories {
		label := fmt.Sprintf("[%d] %s", i+1, cat)
		if i == m.SettingsActiveTab {
			tabItems = append(tabItems, ActiveTabStyle.Render(label))
		} else {
			tabItems = append(tabItems, TabStyle.Render(label))
		}
	}
	tabBar := lipgloss.JoinHorizontal(lipgloss.Left, tabItems...)

	category := categories[m.SettingsActiveTab]
	values := m.getSettingsValues(category)

	labelWidth := 26
	descStyle := lipgloss.NewStyle().Foreground(ColorSubtext).PaddingLeft(2).Width(width - 8)

	var rows []string
	for _, meta := range metadata[category] {
		row := lipgloss.JoinHorizontal(lipgloss.Left,
			LabelStyle.Width(labelWidth).Render(meta.Label),
			ValueStyle.Render(formatSettingValue(values[meta.Key], meta.Type)),
		)
		rows = append(rows, row, descStyle.Render(meta.Description))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		tabBar,
		"",
		strings.Join(rows, "\n"),
		"",
		LabelStyle.Render(config.GetSettingsPath()),
		m.help.View(ViewKeys),
	)

	box := renderBtopBox("Settings", lipgloss.NewStyle().Padding(0, 1).Render(content), width, height, ColorSecondary, false)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// getSettingsValues returns a map of setting key -> value for a category.
// The JSON encoding keeps the keys in step with the metadata.
func (m RootModel) getSettingsValues(category string) map[string]any {
	values := make(map[string]any)
	data, err := json.Marshal(m.settings)
	if err != nil {
		return values
	}
	var sections map[string]map[string]any
	if err := json.Unmarshal(data, &sections); err != nil {
		return values
	}
	for k, v := range sections[config.CategorySection(category)] {
		values[k] = v
	}
	return values
}

// formatSettingValue formats a decoded JSON value for display
func formatSettingValue(value any, typ string) string {
	if value == nil {
		return "-"
	}

	switch typ {
	case "bool":
		if b, ok := value.(bool); ok {
			if b {
				return "True"
			}
			return "False"
		}
	case "duration":
		if f, ok := value.(float64); ok {
			return time.Duration(int64(f)).String()
		}
	case "int64":
		if f, ok := value.(float64); ok {
			if f < 0 {
				return "unlimited"
			}
			return utils.FormatBytes(uint64(f))
		}
	case "int":
		if f, ok := value.(float64); ok {
			return fmt.Sprintf("%d", int64(f))
		}
	case "string":
		if s, ok := value.(string); ok {
			if s == "" {
				return "(default)"
			}
			return truncateString(s, 40)
		}
	}
	return fmt.Sprintf("%v", value)
}
