package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Scan          key.Binding
	SignIn        key.Binding
	SignOut       key.Binding
	Settings      key.Binding
	ToggleMark    key.Binding
	KeepOldest    key.Binding
	KeepNewest    key.Binding
	ClearMarks    key.Binding
	Delete        key.Binding
	ToggleConfirm key.Binding
	Back          key.Binding
	Help          key.Binding
	Quit          key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Scan: key.NewBinding(
			key.WithKeys("enter", "r"),
			key.WithHelp("enter/r", "scan"),
		),
		SignIn: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "sign in"),
		),
		SignOut: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "sign out"),
		),
		Settings: key.NewBinding(
			key.WithKeys(","),
			key.WithHelp(",", "settings"),
		),
		ToggleMark: key.NewBinding(
			key.WithKeys(" ", "space"),
			key.WithHelp("space", "select"),
		),
		KeepOldest: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "keep oldest"),
		),
		KeepNewest: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "keep newest"),
		),
		ClearMarks: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "deselect all"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d", "D"),
			key.WithHelp("d", "move to trash"),
		),
		ToggleConfirm: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "toggle confirm"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?", "h"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// forView enables only the bindings that do something in v. Disabled
// bindings neither match nor show up in help.
func (k keyMap) forView(v view, busy bool) keyMap {
	idle := !busy
	k.Scan.SetEnabled(idle && v != viewScanning)
	k.SignIn.SetEnabled(idle && v == viewIntro)
	k.SignOut.SetEnabled(idle && v != viewScanning)
	k.Settings.SetEnabled(idle && v != viewScanning)
	inResults := idle && v == viewResults
	k.ToggleMark.SetEnabled(inResults)
	k.KeepOldest.SetEnabled(inResults)
	k.KeepNewest.SetEnabled(inResults)
	k.ClearMarks.SetEnabled(inResults)
	k.Delete.SetEnabled(inResults)
	k.ToggleConfirm.SetEnabled(inResults)
	k.Back.SetEnabled(idle && (v == viewResults || v == viewDone))
	return k
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Scan, k.SignIn, k.Settings, k.ToggleMark, k.KeepOldest, k.KeepNewest, k.Delete, k.Back, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Scan, k.SignIn, k.SignOut, k.Settings},
		{k.ToggleMark, k.KeepOldest, k.KeepNewest, k.ClearMarks, k.Delete, k.ToggleConfirm},
		{k.Back, k.Help, k.Quit},
	}
}
