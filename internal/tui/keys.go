package tui

import "github.com/charmbracelet/bubbles/key"

// DashboardKeyMap holds the bindings active on the main list
type DashboardKeyMap struct {
	Add      key.Binding
	Paste    key.Binding
	Cancel   key.Binding
	History  key.Binding
	Settings key.Binding
	Up       key.Binding
	Down     key.Binding
	Quit     key.Binding
}

// InputKeyMap holds the bindings of the add-download popup
type InputKeyMap struct {
	Submit key.Binding
	Back   key.Binding
}

// ViewKeyMap holds the bindings of the history and settings pages
type ViewKeyMap struct {
	Left    key.Binding
	Right   key.Binding
	Refresh key.Binding
	Back    key.Binding
}

var DashboardKeys = DashboardKeyMap{
	Add:      key.NewBinding(key.WithKeys("a", "g"), key.WithHelp("a", "add")),
	Paste:    key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "add from clipboard")),
	Cancel:   key.NewBinding(key.WithKeys("c", "x"), key.WithHelp("c", "cancel")),
	History:  key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
	Settings: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
	Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var InputKeys = InputKeyMap{
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "start")),
	Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
}

var ViewKeys = ViewKeyMap{
	Left:    key.NewBinding(key.WithKeys("left", "shift+tab"), key.WithHelp("←", "prev tab")),
	Right:   key.NewBinding(key.WithKeys("right", "tab"), key.WithHelp("→", "next tab")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Back:    key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("esc", "back")),
}

func (k DashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Add, k.Paste, k.Cancel, k.History, k.Settings, k.Quit}
}

func (k DashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Add, k.Paste, k.Cancel}, {k.Up, k.Down}, {k.History, k.Settings, k.Quit}}
}

func (k InputKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Back}
}

func (k InputKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func (k ViewKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Right, k.Refresh, k.Back}
}

func (k ViewKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
