// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui provides the terminal chat surface.
//
// This file defines keyboard bindings and shortcuts for the chat
// interface, with help text generation for the status bar.
package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat interface.
type KeyMap struct {
	Up             key.Binding
	Down           key.Binding
	PageUp         key.Binding
	PageDown       key.Binding
	Submit         key.Binding
	Quit           key.Binding
	FocusSidebar   key.Binding
	NewConv        key.Binding
	DeleteConv     key.Binding
	RenameConv     key.Binding
	ToggleMode     key.Binding
	ModelPicker    key.Binding
	Download       key.Binding
	CancelDownload key.Binding
	Upload         key.Binding
	Escape         key.Binding
}

// DefaultKeyMap returns the default key bindings for the chat interface.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("up/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("down/j", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "page down"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-q", "quit"),
		),
		FocusSidebar: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("Tab", "conversations"),
		),
		NewConv: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new conversation"),
		),
		DeleteConv: key.NewBinding(
			key.WithKeys("ctrl+d"),
			key.WithHelp("C-d", "delete conversation"),
		),
		RenameConv: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "rename conversation"),
		),
		ToggleMode: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("C-t", "local/remote mode"),
		),
		ModelPicker: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("C-p", "pick model"),
		),
		Download: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("C-g", "download model"),
		),
		CancelDownload: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("C-x", "cancel download"),
		),
		Upload: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "upload document"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "back"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.FocusSidebar, k.NewConv, k.ModelPicker, k.Quit}
}
