package cmd

import "github.com/charmbracelet/bubbles/key"

type helpKeyMap struct {
	selectSong   key.Binding
	previousSong key.Binding
	nextSong     key.Binding
	pickSong     key.Binding
	stop         key.Binding
	toggleAudio  key.Binding
	help         key.Binding
	quit         key.Binding
}

var helpKeys = helpKeyMap{
	selectSong: key.NewBinding(
		key.WithKeys("up", "k", "down", "j"),
		key.WithHelp("up/k/down/j", "choose song"),
	),
	previousSong: key.NewBinding(
		key.WithKeys("up", "k"),
	),
	nextSong: key.NewBinding(
		key.WithKeys("down", "j"),
	),
	pickSong: key.NewBinding(
		key.WithKeys("enter", " "),
		key.WithHelp("enter/space", "play song"),
	),
	stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop"),
	),
	toggleAudio: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "audio on/off"),
	),
	help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more"),
	),
	quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q/esc", "quit"),
	),
}

func (k helpKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.pickSong, k.stop, k.help, k.quit}
}
func (k helpKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.selectSong, k.pickSong},
		{k.stop, k.toggleAudio},
		{k.help, k.quit},
	}
}
