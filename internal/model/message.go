// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// model descriptors, and download state.
package model

import (
	"github.com/google/uuid"
)

// =============================================================================
// SENDER TYPE
// =============================================================================

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// String returns the string representation of the sender.
func (s Sender) String() string {
	return string(s)
}

// DisplayName returns a human-readable name for the sender.
func (s Sender) DisplayName() string {
	switch s {
	case SenderUser:
		return "You"
	case SenderAssistant:
		return "Assistant"
	default:
		return string(s)
	}
}

// SenderFromWire maps the backend's history "from" field to a Sender.
// The backend reports "user" for user messages and "bot" for generated
// ones; anything unrecognized is treated as assistant output.
func SenderFromWire(from string) Sender {
	if from == "user" {
		return SenderUser
	}
	return SenderAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in a conversation log.
//
// Placeholder messages are synthesized locally while a chat turn or an
// upload is in flight. They are never sent to the backend and never
// survive a reconciliation: every settle path removes them.
type Message struct {
	// ID is a locally generated identity so placeholder replacement
	// works by identity rather than by log position.
	ID string `json:"id"`

	Sender Sender `json:"sender"`
	Text   string `json:"text"`

	// Placeholder marks a transient, locally synthesized entry.
	Placeholder bool `json:"-"`
}

// NewUserMessage creates a user-authored message.
func NewUserMessage(text string) Message {
	return Message{
		ID:     uuid.New().String(),
		Sender: SenderUser,
		Text:   text,
	}
}

// NewAssistantMessage creates an assistant-authored message.
func NewAssistantMessage(text string) Message {
	return Message{
		ID:     uuid.New().String(),
		Sender: SenderAssistant,
		Text:   text,
	}
}

// NewPlaceholderMessage creates a transient assistant message shown
// while a request is pending.
func NewPlaceholderMessage(text string) Message {
	return Message{
		ID:          uuid.New().String(),
		Sender:      SenderAssistant,
		Text:        text,
		Placeholder: true,
	}
}

// IsEmpty returns true if the message carries no text.
func (m Message) IsEmpty() bool {
	return len(m.Text) == 0
}
