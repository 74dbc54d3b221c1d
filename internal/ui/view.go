// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/chatrag-tui/internal/model"
	"github.com/jeranaias/chatrag-tui/internal/ui/styles"
)

// View renders the full chat surface.
func (m Model) View() string {
	if !m.ready {
		return "Initialisation..."
	}
	if !m.loaded {
		return m.spin.View() + " Chargement de la session..."
	}

	header := m.renderHeader()
	body := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderSidebar(),
		m.renderChat(),
	)
	status := m.renderStatus()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.Header.Render("chatRAG")

	mode := "local"
	modeStyle := lipgloss.NewStyle().Foreground(styles.Emerald)
	if m.orc.Mode() == model.ModeRemote {
		mode = "en ligne"
		modeStyle = lipgloss.NewStyle().Foreground(styles.Amber)
	}

	modelLabel := "aucun modèle"
	if desc, ok := m.orc.SelectedModel(); ok {
		modelLabel = desc.DisplayName
		if modelLabel == "" {
			modelLabel = desc.ID
		}
	}

	left := title + "  " + modeStyle.Render("["+mode+"]") + "  " +
		m.theme.StatusBar.Render(modelLabel)
	right := m.renderDownloadLine()

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	line := left + strings.Repeat(" ", gap) + right

	rule := lipgloss.NewStyle().Foreground(styles.Overlay).
		Render(strings.Repeat("─", max(m.width, 1)))
	return line + "\n" + rule
}

// renderDownloadLine shows the selected model's download status.
func (m Model) renderDownloadLine() string {
	desc, ok := m.orc.SelectedModel()
	if !ok || desc.IsRemote() {
		return ""
	}
	state := m.orc.Monitor().State(desc.ID)
	return downloadStatusLine(state, m.spin.View(), m.notice)
}

// downloadStatusLine formats one download state for the header. The
// finished notice, when set, replaces the phase text.
func downloadStatusLine(state model.DownloadState, spinFrame, notice string) string {
	if notice != "" {
		return styles.RenderSuccess(notice)
	}

	switch state.Phase {
	case model.PhaseNotDownloaded:
		return styles.RenderInfo("modèle non téléchargé (C-g)")
	case model.PhaseDownloading:
		return spinFrame + " " + styles.RenderWarning(fmt.Sprintf(
			"téléchargement %s / %s (%.0f%%)",
			humanize.Bytes(uint64(state.DownloadedBytes)),
			humanize.Bytes(uint64(state.TotalBytes)),
			state.Percent(),
		))
	case model.PhaseCancelling:
		return spinFrame + " " + styles.RenderWarning("annulation...")
	case model.PhaseCompleted:
		return styles.RenderSuccess("modèle prêt")
	case model.PhaseFailed:
		return styles.RenderError("téléchargement échoué")
	case model.PhaseCancelled:
		return styles.RenderWarning("téléchargement annulé")
	}
	return ""
}

// =============================================================================
// SIDEBAR
// =============================================================================

func (m Model) renderSidebar() string {
	convs := m.orc.Store().Conversations()
	selected := m.orc.Store().SelectedID()
	height := m.height - headerHeight - statusHeight

	var b strings.Builder
	b.WriteString(m.theme.Header.Render("Conversations"))
	b.WriteString("\n")

	for i, c := range convs {
		title := runewidth.Truncate(c.Title, sidebarWidth-4, "…")
		line := "  " + title
		switch {
		case m.focus == focusSidebar && i == m.sidebarIndex:
			line = m.theme.SidebarFocus.Render("> " + title)
		case c.ID == selected:
			line = m.theme.SidebarFocus.Render("  " + title)
		default:
			line = m.theme.SidebarItem.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return m.theme.Sidebar.
		Width(sidebarWidth).
		Height(height).
		Render(b.String())
}

// =============================================================================
// CHAT AREA
// =============================================================================

func (m Model) renderChat() string {
	if m.focus == focusPicker {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderPicker(),
			m.renderInput(),
		)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		m.renderInput(),
	)
}

// renderLog formats the selected conversation's message log.
func (m Model) renderLog() string {
	id := m.orc.Store().SelectedID()
	if id == "" {
		return m.theme.Pending.Render("Aucune conversation.")
	}
	msgs, _ := m.orc.Store().Messages(id)

	var b strings.Builder
	for _, msg := range msgs {
		if msg.Placeholder {
			pending := "..."
			if msg.Text != "" {
				pending = msg.Text
			}
			b.WriteString(m.theme.BotLabel.Render(msg.Sender.DisplayName() + ":"))
			b.WriteString("\n")
			b.WriteString(m.theme.Pending.Render(m.spin.View() + " " + pending))
			b.WriteString("\n\n")
			continue
		}

		switch msg.Sender {
		case model.SenderUser:
			b.WriteString(m.theme.UserLabel.Render(msg.Sender.DisplayName() + ":"))
			b.WriteString("\n")
			b.WriteString(m.theme.UserText.Render(msg.Text))
		default:
			b.WriteString(m.theme.BotLabel.Render(msg.Sender.DisplayName() + ":"))
			b.WriteString("\n")
			b.WriteString(m.renderAssistantText(msg.Text))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

// renderAssistantText renders a reply as markdown when enabled.
func (m Model) renderAssistantText(text string) string {
	if m.renderer != nil {
		if out, err := m.renderer.Render(text); err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return m.theme.BotText.Render(text)
}

// renderPicker shows the model catalog in place of the viewport.
func (m Model) renderPicker() string {
	models := m.orc.Models()
	var b strings.Builder
	b.WriteString(m.theme.Header.Render("Modèles"))
	b.WriteString("\n\n")

	for i, d := range models {
		name := d.DisplayName
		if name == "" {
			name = d.ID
		}
		detail := ""
		if d.IsRemote() {
			detail = " (hébergé)"
		} else if d.SizeBytes > 0 {
			detail = " (" + humanize.Bytes(uint64(d.SizeBytes)) + ")"
		}
		line := "  " + name + detail
		if i == m.pickerIndex {
			line = m.theme.SidebarFocus.Render("> " + name + detail)
		} else {
			line = m.theme.SidebarItem.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.theme.Help.Render("Enter: choisir  Esc: fermer"))

	return lipgloss.NewStyle().
		Width(m.viewport.Width).
		Height(m.viewport.Height).
		Render(b.String())
}

func (m Model) renderInput() string {
	prompt := "> "
	if m.orc.Sending() || m.orc.Uploading() {
		prompt = m.spin.View() + " "
	}
	return m.theme.InputFrame.
		Width(m.viewport.Width).
		Render(prompt + m.input.View())
}

// =============================================================================
// STATUS BAR
// =============================================================================

func (m Model) renderStatus() string {
	if m.status != "" {
		style := m.theme.StatusError
		if m.expired {
			style = style.Underline(true)
		}
		return m.theme.StatusBar.Render(style.Render(m.status))
	}

	var hints []string
	for _, b := range m.keys.ShortHelp() {
		hints = append(hints, b.Help().Key+" "+b.Help().Desc)
	}
	return m.theme.StatusBar.Render(m.theme.Help.Render(strings.Join(hints, "  ·  ")))
}
