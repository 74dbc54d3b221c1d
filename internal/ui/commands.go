// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/chatrag-tui/internal/model"
	"github.com/jeranaias/chatrag-tui/internal/orchestrator"
)

// =============================================================================
// COMMANDS
// =============================================================================

// bootstrapCmd loads the session in the background.
func bootstrapCmd(o *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return bootstrapDoneMsg{err: o.Bootstrap(context.Background())}
	}
}

// sendCmd runs one chat turn.
func sendCmd(o *orchestrator.Orchestrator, text string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.Send(context.Background(), text)}
	}
}

// selectConvCmd switches the selected conversation.
func selectConvCmd(o *orchestrator.Orchestrator, id string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.SelectConversation(context.Background(), id)}
	}
}

// newConvCmd creates and selects a fresh conversation.
func newConvCmd(o *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.NewConversation(context.Background())}
	}
}

// deleteConvCmd deletes a conversation.
func deleteConvCmd(o *orchestrator.Orchestrator, id string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.DeleteConversation(context.Background(), id)}
	}
}

// renameConvCmd renames a conversation.
func renameConvCmd(o *orchestrator.Orchestrator, id, title string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.RenameConversation(context.Background(), id, title)}
	}
}

// uploadCmd sends a local document for ingestion.
func uploadCmd(o *orchestrator.Orchestrator, path string) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.UploadFiles(context.Background(), []string{path})}
	}
}

// switchModeCmd flips the agent mode.
func switchModeCmd(o *orchestrator.Orchestrator, mode model.AgentMode) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.SwitchMode(context.Background(), mode)}
	}
}

// startDownloadCmd begins downloading the selected model.
func startDownloadCmd(o *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.StartDownload(context.Background())}
	}
}

// cancelDownloadCmd cancels the selected model's download.
func cancelDownloadCmd(o *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: o.CancelDownload(context.Background())}
	}
}

// listenOrchestrator pumps one orchestrator event into the program.
// The returned message re-arms the listener from Update.
func listenOrchestrator(o *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return orchestratorEventMsg{event: <-o.Events()}
	}
}

// listenMonitor pumps one download monitor event into the program.
func listenMonitor(o *orchestrator.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return monitorEventMsg{event: <-o.Monitor().Events()}
	}
}
