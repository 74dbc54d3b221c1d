// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatrag-tui/internal/orchestrator"
	"github.com/jeranaias/chatrag-tui/internal/ui/styles"
)

// Layout constants.
const (
	sidebarWidth  = 30
	headerHeight  = 2
	inputHeight   = 2
	statusHeight  = 1
	markdownWidth = 80
)

// focusArea tracks which surface receives keystrokes.
type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
	focusPicker
)

// inputMode tracks what the text input submits as.
type inputMode int

const (
	inputChat inputMode = iota
	inputRename
	inputUpload
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the bubbletea model for the chat surface. It renders the
// orchestrator's state and translates keystrokes into operations; it
// owns no session state of its own.
type Model struct {
	orc      *orchestrator.Orchestrator
	theme    styles.Theme
	keys     KeyMap
	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer
	markdown bool

	width  int
	height int
	ready  bool
	loaded bool

	focus        focusArea
	mode         inputMode
	sidebarIndex int
	pickerIndex  int

	status  string
	notice  string
	expired bool
}

// New creates the chat surface over an orchestrator. Markdown
// rendering of assistant replies can be disabled.
func New(orc *orchestrator.Orchestrator, markdown bool) Model {
	input := textinput.New()
	input.Placeholder = "Posez votre question..."
	input.Focus()
	input.CharLimit = 0

	spin := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(styles.Purple)),
	)

	var renderer *glamour.TermRenderer
	if markdown {
		// Falls back to plain text when the renderer cannot be built.
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(markdownWidth),
		)
	}

	return Model{
		orc:      orc,
		theme:    styles.Default(),
		keys:     DefaultKeyMap(),
		input:    input,
		spin:     spin,
		renderer: renderer,
		markdown: markdown,
	}
}

// Init starts the session load and the event pumps.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		bootstrapCmd(m.orc),
		listenOrchestrator(m.orc),
		listenMonitor(m.orc),
		m.spin.Tick,
		textinput.Blink,
	)
}
