// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"github.com/jeranaias/chatrag-tui/internal/download"
	"github.com/jeranaias/chatrag-tui/internal/orchestrator"
)

// =============================================================================
// TEA MESSAGES
// =============================================================================

// bootstrapDoneMsg reports the result of the initial session load.
type bootstrapDoneMsg struct {
	err error
}

// opDoneMsg reports the result of a fire-and-forget operation (send,
// create, delete, rename, upload, mode switch, download control).
type opDoneMsg struct {
	err error
}

// orchestratorEventMsg wraps one orchestrator notification.
type orchestratorEventMsg struct {
	event orchestrator.Event
}

// monitorEventMsg wraps one download monitor observation.
type monitorEventMsg struct {
	event download.Event
}
