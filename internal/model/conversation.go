// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// model descriptors, and download state.
package model

import "strings"

// DefaultTitle is the title the backend assigns to a freshly created
// conversation. The orchestrator's naming policy only rewrites titles
// that still carry this value.
const DefaultTitle = "Nouvelle Conversation"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a backend-owned conversation. Identity is immutable;
// the title may change through rename or the first-question policy.
type Conversation struct {
	ID    string `json:"conversation_id"`
	Title string `json:"title"`
}

// HasDefaultTitle returns true if the conversation still carries the
// server-assigned default title.
func (c Conversation) HasDefaultTitle() bool {
	return c.Title == DefaultTitle
}

// =============================================================================
// AGENT MODE
// =============================================================================

// AgentMode selects between on-device generation and the remote-hosted
// backend. The wire values match the backend's agent_type parameter.
type AgentMode string

const (
	// ModeLocal runs generation against a locally downloaded model.
	ModeLocal AgentMode = "local"

	// ModeRemote runs generation against a remote-hosted model.
	ModeRemote AgentMode = "enligne"
)

// String returns the wire representation of the mode.
func (m AgentMode) String() string {
	return string(m)
}

// Valid reports whether the mode is one of the known agent modes.
func (m AgentMode) Valid() bool {
	return m == ModeLocal || m == ModeRemote
}

// =============================================================================
// MODEL DESCRIPTOR
// =============================================================================

// ModelDescriptor is an immutable snapshot of one entry from the model
// catalog. The active list is replaced wholesale when the agent mode
// changes.
type ModelDescriptor struct {
	// ID is the backend's model identifier ("value" on the wire). For
	// remote-hosted variants this can be a URL.
	ID string

	// DisplayName is the human-readable model name.
	DisplayName string

	// SizeBytes is the total model size, zero when unknown.
	SizeBytes int64

	// RemoteURL is set for remote-hosted variants whose identifier is
	// an endpoint URL.
	RemoteURL string

	// Downloaded reports whether the backend considers the model fully
	// downloaded.
	Downloaded bool

	// Status is the backend's raw download status, empty when the
	// backend did not report one.
	Status string

	// DownloadedBytes is the byte count already fetched, when reported.
	DownloadedBytes int64
}

// IsRemote returns true for cloud-hosted descriptors.
func (d ModelDescriptor) IsRemote() bool {
	return d.RemoteURL != ""
}

// InitialPhase derives the download phase for a freshly selected model
// from its catalog snapshot: an explicit status wins, otherwise the
// downloaded flag decides between completed and not downloaded.
func (d ModelDescriptor) InitialPhase() Phase {
	if d.Status != "" {
		return PhaseFromStatus(d.Status, d.Downloaded)
	}
	if d.Downloaded {
		return PhaseCompleted
	}
	return PhaseNotDownloaded
}

// InitialState builds the seed DownloadState for this descriptor.
func (d ModelDescriptor) InitialState() DownloadState {
	return DownloadState{
		ModelID:         d.ID,
		DownloadedBytes: d.DownloadedBytes,
		TotalBytes:      d.SizeBytes,
		Phase:           d.InitialPhase(),
	}
}

// FindDescriptor returns the descriptor with the given id from a
// catalog snapshot, or false when absent.
func FindDescriptor(models []ModelDescriptor, id string) (ModelDescriptor, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// DescriptorIsRemoteValue reports whether a raw catalog value names a
// remote endpoint rather than a local model file.
func DescriptorIsRemoteValue(value string) bool {
	return strings.HasPrefix(value, "http")
}
