// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME
// =============================================================================

// Theme bundles the composed styles used by the chat surface.
type Theme struct {
	Header       lipgloss.Style
	Sidebar      lipgloss.Style
	SidebarItem  lipgloss.Style
	SidebarFocus lipgloss.Style
	UserLabel    lipgloss.Style
	BotLabel     lipgloss.Style
	UserText     lipgloss.Style
	BotText      lipgloss.Style
	Pending      lipgloss.Style
	StatusBar    lipgloss.Style
	StatusNotice lipgloss.Style
	StatusError  lipgloss.Style
	InputFrame   lipgloss.Style
	Help         lipgloss.Style
}

// Default returns the standard theme.
func Default() Theme {
	return Theme{
		Header: lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true).
			Padding(0, 1),
		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(Overlay).
			Padding(0, 1),
		SidebarItem: lipgloss.NewStyle().
			Foreground(TextSecondary),
		SidebarFocus: lipgloss.NewStyle().
			Foreground(TextPrimary).
			Background(SelectionBg).
			Bold(true),
		UserLabel: lipgloss.NewStyle().
			Foreground(UserBubbleBorder).
			Bold(true),
		BotLabel: lipgloss.NewStyle().
			Foreground(AssistantBubbleBorder).
			Bold(true),
		UserText: lipgloss.NewStyle().
			Foreground(UserBubbleFg),
		BotText: lipgloss.NewStyle().
			Foreground(AssistantBubbleFg),
		Pending: lipgloss.NewStyle().
			Foreground(TextMuted).
			Italic(true),
		StatusBar: lipgloss.NewStyle().
			Foreground(TextSecondary).
			Padding(0, 1),
		StatusNotice: lipgloss.NewStyle().
			Foreground(Emerald).
			Bold(true),
		StatusError: lipgloss.NewStyle().
			Foreground(Rose).
			Bold(true),
		InputFrame: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(Overlay),
		Help: lipgloss.NewStyle().
			Foreground(TextMuted),
	}
}

// ForceProfile pins the color profile, overriding terminal detection.
// "light" and "dark" both keep truecolor; anything else is ignored.
func ForceProfile(theme string) {
	switch theme {
	case "light":
		lipgloss.SetColorProfile(termenv.TrueColor)
		lipgloss.SetHasDarkBackground(false)
	case "dark":
		lipgloss.SetColorProfile(termenv.TrueColor)
		lipgloss.SetHasDarkBackground(true)
	}
}
