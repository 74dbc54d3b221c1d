// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatrag-tui/internal/download"
	"github.com/jeranaias/chatrag-tui/internal/gateway"
	"github.com/jeranaias/chatrag-tui/internal/model"
	"github.com/jeranaias/chatrag-tui/internal/orchestrator"
)

// Update handles all program messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.orc.Sending() || m.orc.Uploading() {
			// The pending placeholder in the viewport carries the
			// spinner frame, so the content must follow the ticks.
			m = m.refreshLog()
		}
		return m, cmd

	case bootstrapDoneMsg:
		m.loaded = true
		if msg.err != nil {
			m.status = errorText(msg.err)
		}
		m = m.syncSidebar()
		m = m.refreshLog()
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			m.status = errorText(msg.err)
		}
		m = m.syncSidebar()
		m = m.refreshLog()
		return m, nil

	case orchestratorEventMsg:
		m = m.applyOrchestratorEvent(msg.event)
		return m, listenOrchestrator(m.orc)

	case monitorEventMsg:
		m = m.applyMonitorEvent(msg.event)
		return m, listenMonitor(m.orc)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// resize recomputes the layout after a terminal size change.
func (m Model) resize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height

	chatWidth := m.width - sidebarWidth - 3
	chatHeight := m.height - headerHeight - inputHeight - statusHeight
	if chatWidth < 20 {
		chatWidth = 20
	}
	if chatHeight < 3 {
		chatHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(chatWidth, chatHeight)
		m.ready = true
	} else {
		m.viewport.Width = chatWidth
		m.viewport.Height = chatHeight
	}
	m.input.Width = chatWidth - 4
	return m.refreshLog()
}

// =============================================================================
// EVENTS
// =============================================================================

func (m Model) applyOrchestratorEvent(ev orchestrator.Event) Model {
	switch ev.Kind {
	case orchestrator.EventLogChanged:
		if ev.ConversationID == "" || ev.ConversationID == m.orc.Store().SelectedID() {
			m = m.refreshLog()
		}
	case orchestrator.EventConversationsChanged:
		m = m.syncSidebar()
		m = m.refreshLog()
	case orchestrator.EventSessionExpired:
		m.expired = true
		m.status = "Session expirée. Relancez l'application avec un jeton valide."
		m = m.refreshLog()
	}
	return m
}

func (m Model) applyMonitorEvent(ev download.Event) Model {
	switch ev.Kind {
	case download.EventStateChanged:
		switch ev.State.Phase {
		case model.PhaseCompleted:
			m.notice = "Modèle téléchargé avec succès"
		case model.PhaseFailed:
			m.status = "Le téléchargement a échoué"
		case model.PhaseCancelled:
			m.status = "Téléchargement annulé"
		}
	case download.EventNoticeExpired:
		m.notice = ""
	}
	return m
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.orc.Close()
		return m, tea.Quit
	}

	switch m.focus {
	case focusPicker:
		return m.handlePickerKey(msg)
	case focusSidebar:
		return m.handleSidebarKey(msg)
	default:
		return m.handleInputKey(msg)
	}
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	models := m.orc.Models()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.pickerIndex > 0 {
			m.pickerIndex--
		}
	case key.Matches(msg, m.keys.Down):
		if m.pickerIndex < len(models)-1 {
			m.pickerIndex++
		}
	case key.Matches(msg, m.keys.Submit):
		m.focus = focusInput
		if m.pickerIndex < len(models) {
			if err := m.orc.SelectModel(models[m.pickerIndex].ID); err != nil {
				m.status = errorText(err)
			}
		}
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.ModelPicker):
		m.focus = focusInput
	}
	return m, nil
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	convs := m.orc.Store().Conversations()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.sidebarIndex > 0 {
			m.sidebarIndex--
		}
	case key.Matches(msg, m.keys.Down):
		if m.sidebarIndex < len(convs)-1 {
			m.sidebarIndex++
		}
	case key.Matches(msg, m.keys.Submit):
		m.focus = focusInput
		if m.sidebarIndex < len(convs) {
			return m, selectConvCmd(m.orc, convs[m.sidebarIndex].ID)
		}
	case key.Matches(msg, m.keys.DeleteConv):
		if m.sidebarIndex < len(convs) {
			return m, deleteConvCmd(m.orc, convs[m.sidebarIndex].ID)
		}
	case key.Matches(msg, m.keys.RenameConv):
		if m.sidebarIndex < len(convs) {
			m.focus = focusInput
			m.mode = inputRename
			m.input.SetValue(convs[m.sidebarIndex].Title)
			m.input.Placeholder = "Nouveau titre..."
		}
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.FocusSidebar):
		m.focus = focusInput
	}
	return m, nil
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.Escape):
		if m.mode != inputChat {
			m = m.resetInput()
		}
		return m, nil

	case key.Matches(msg, m.keys.FocusSidebar):
		m.focus = focusSidebar
		return m.syncSidebar(), nil

	case key.Matches(msg, m.keys.NewConv):
		return m, newConvCmd(m.orc)

	case key.Matches(msg, m.keys.DeleteConv):
		if id := m.orc.Store().SelectedID(); id != "" {
			return m, deleteConvCmd(m.orc, id)
		}
		return m, nil

	case key.Matches(msg, m.keys.RenameConv):
		if conv, ok := m.orc.Store().Selected(); ok {
			m.mode = inputRename
			m.input.SetValue(conv.Title)
			m.input.Placeholder = "Nouveau titre..."
		}
		return m, nil

	case key.Matches(msg, m.keys.Upload):
		m.mode = inputUpload
		m.input.SetValue("")
		m.input.Placeholder = "Chemin du document..."
		return m, nil

	case key.Matches(msg, m.keys.ToggleMode):
		next := model.ModeRemote
		if m.orc.Mode() == model.ModeRemote {
			next = model.ModeLocal
		}
		return m, switchModeCmd(m.orc, next)

	case key.Matches(msg, m.keys.ModelPicker):
		m.focus = focusPicker
		m.pickerIndex = m.selectedModelIndex()
		return m, nil

	case key.Matches(msg, m.keys.Download):
		return m, startDownloadCmd(m.orc)

	case key.Matches(msg, m.keys.CancelDownload):
		return m, cancelDownloadCmd(m.orc)

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches the input content according to the input mode.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())

	switch m.mode {
	case inputRename:
		id := m.orc.Store().SelectedID()
		if convs := m.orc.Store().Conversations(); m.sidebarIndex < len(convs) {
			id = convs[m.sidebarIndex].ID
		}
		m = m.resetInput()
		if text == "" || id == "" {
			return m, nil
		}
		return m, renameConvCmd(m.orc, id, text)

	case inputUpload:
		m = m.resetInput()
		if text == "" {
			return m, nil
		}
		return m, uploadCmd(m.orc, text)

	default:
		if text == "" {
			return m, nil
		}
		if m.orc.Sending() || m.orc.Uploading() {
			m.status = errorText(orchestrator.ErrBusy)
			return m, nil
		}
		m.input.SetValue("")
		m.status = ""
		return m, sendCmd(m.orc, text)
	}
}

// resetInput returns the text input to chat mode.
func (m Model) resetInput() Model {
	m.mode = inputChat
	m.input.SetValue("")
	m.input.Placeholder = "Posez votre question..."
	return m
}

// =============================================================================
// STATE SYNC
// =============================================================================

// syncSidebar points the sidebar cursor at the selected conversation.
func (m Model) syncSidebar() Model {
	convs := m.orc.Store().Conversations()
	selected := m.orc.Store().SelectedID()
	for i, c := range convs {
		if c.ID == selected {
			m.sidebarIndex = i
			return m
		}
	}
	if m.sidebarIndex >= len(convs) {
		m.sidebarIndex = 0
	}
	return m
}

// refreshLog rebuilds the viewport content from the selected
// conversation's log and pins the view to the bottom.
func (m Model) refreshLog() Model {
	if !m.ready {
		return m
	}
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
	return m
}

// selectedModelIndex returns the catalog index of the active model.
func (m Model) selectedModelIndex() int {
	desc, ok := m.orc.SelectedModel()
	if !ok {
		return 0
	}
	for i, d := range m.orc.Models() {
		if d.ID == desc.ID {
			return i
		}
	}
	return 0
}

// errorText maps an operation error to a status line message.
func errorText(err error) string {
	switch {
	case errors.Is(err, gateway.ErrSessionExpired):
		return "Session expirée. Relancez l'application avec un jeton valide."
	case errors.Is(err, gateway.ErrNoCredential):
		return "Aucun jeton de session. Utilisez -token ou CHATRAG_TOKEN."
	case errors.Is(err, orchestrator.ErrBusy):
		return "Une requête est déjà en cours."
	case errors.Is(err, orchestrator.ErrNoConversation):
		return "Aucune conversation sélectionnée."
	case errors.Is(err, download.ErrDownloadActive):
		return "Téléchargement déjà en cours."
	default:
		return err.Error()
	}
}
