package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down, Left, Right key.Binding
	Activate              key.Binding
	Cancel                key.Binding
	Toggle                key.Binding
	Blur                  key.Binding
	Narrow, Widen         key.Binding
	Menu                  key.Binding
	SelectAll             key.Binding
	Filter                key.Binding
	Reload                key.Binding
	Quit                  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Activate:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "edit/confirm")),
		Cancel:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Toggle:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle")),
		Blur:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "leave cell")),
		Narrow:    key.NewBinding(key.WithKeys("<"), key.WithHelp("<", "narrow")),
		Widen:     key.NewBinding(key.WithKeys(">"), key.WithHelp(">", "widen")),
		Menu:      key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "column menu")),
		SelectAll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "select all")),
		Filter:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
		Reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Activate, k.Toggle, k.Cancel, k.Menu, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Activate, k.Cancel, k.Toggle, k.Blur},
		{k.Narrow, k.Widen, k.Menu, k.SelectAll, k.Filter, k.Reload, k.Quit},
	}
}
