package ui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Random key.Binding
	Bulk   key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Random: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "random trade"),
		),
		Bulk: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "bulk trades"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
