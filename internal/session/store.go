// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session provides the in-memory store for conversations and
// their message logs.
package session

import (
	"errors"
	"sync"

	"github.com/jeranaias/chatrag-tui/internal/model"
)

// ErrUnknownConversation is returned when an operation names a
// conversation id that is not in the current list.
var ErrUnknownConversation = errors.New("unknown conversation")

// =============================================================================
// SESSION STORE
// =============================================================================

// Store holds the conversation list, the single selection, and the
// lazily fetched per-conversation message logs.
//
// The store is the authoritative client-side view between fetches:
// optimistic edits (placeholder insert/remove) never survive the next
// full refetch of a log. All methods are safe for concurrent use; the
// UI goroutine and background request goroutines share one instance.
type Store struct {
	mu sync.Mutex

	conversations []model.Conversation
	selected      string

	// logs maps conversation id to its ordered message log. A missing
	// key means the history has not been fetched yet; an empty slice
	// means it was fetched and is empty.
	logs map[string][]model.Message
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		logs: make(map[string][]model.Message),
	}
}

// =============================================================================
// CONVERSATION LIST
// =============================================================================

// Conversations returns a copy of the current conversation list in
// server order.
func (s *Store) Conversations() []model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Count returns the number of conversations.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// SetConversations replaces the list with a fresh server snapshot and
// applies the selection policy: keep the previous selection when it is
// still present, otherwise select the first conversation, otherwise
// clear the selection.
func (s *Store) SetConversations(list []model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make([]model.Conversation, len(list))
	copy(s.conversations, list)

	if s.selected != "" && s.findLocked(s.selected) >= 0 {
		return
	}
	if len(s.conversations) > 0 {
		s.selected = s.conversations[0].ID
		return
	}
	s.selected = ""
}

// AddConversation inserts a new conversation at the head of the list,
// selects it, and initializes its log as fetched-and-empty.
func (s *Store) AddConversation(c model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = append([]model.Conversation{c}, s.conversations...)
	s.selected = c.ID
	s.logs[c.ID] = []model.Message{}
}

// Rename updates a conversation's title locally.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(id)
	if i < 0 {
		return ErrUnknownConversation
	}
	s.conversations[i].Title = title
	return nil
}

// Remove deletes a conversation and its log. When the removed
// conversation was selected, the next remaining conversation becomes
// selected. The second return value is true when the list is now empty
// and the caller must create a fresh conversation to restore the
// "one conversation selected" invariant.
func (s *Store) Remove(id string) (removed bool, needNew bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(id)
	if i < 0 {
		return false, false
	}

	s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
	delete(s.logs, id)

	if s.selected == id {
		if len(s.conversations) > 0 {
			// Prefer the conversation that took the removed slot.
			if i >= len(s.conversations) {
				i = len(s.conversations) - 1
			}
			s.selected = s.conversations[i].ID
		} else {
			s.selected = ""
			return true, true
		}
	}
	return true, false
}

// =============================================================================
// SELECTION
// =============================================================================

// Select makes the given conversation current. Selecting an id that is
// not in the list is rejected, which keeps the selection invariant
// intact by construction.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(id) < 0 {
		return ErrUnknownConversation
	}
	s.selected = id
	return nil
}

// SelectedID returns the selected conversation id, empty when none.
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Selected returns the selected conversation, false when none.
func (s *Store) Selected() (model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(s.selected)
	if i < 0 {
		return model.Conversation{}, false
	}
	return s.conversations[i], true
}

// =============================================================================
// MESSAGE LOGS
// =============================================================================

// Messages returns a copy of the message log for a conversation and
// whether that log has been fetched yet.
func (s *Store) Messages(id string) ([]model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.logs[id]
	if !ok {
		return nil, false
	}
	out := make([]model.Message, len(log))
	copy(out, log)
	return out, true
}

// SetMessages replaces a conversation's log with a fetched history.
// The fetched log is authoritative: any optimistic placeholder entries
// are gone after this call.
func (s *Store) SetMessages(id string, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := make([]model.Message, len(msgs))
	copy(log, msgs)
	s.logs[id] = log
}

// Append adds a message to the end of a conversation's log.
func (s *Store) Append(id string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[id] = append(s.logs[id], msg)
}

// ReplacePlaceholder removes every placeholder entry from the log and
// appends the final message in one step, so no settle path can leave a
// dangling placeholder behind.
func (s *Store) ReplacePlaceholder(id string, final model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[id] = append(withoutPlaceholders(s.logs[id]), final)
}

// RemovePlaceholders strips placeholder entries without appending
// anything.
func (s *Store) RemovePlaceholders(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok := s.logs[id]; ok {
		s.logs[id] = withoutPlaceholders(log)
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Reset clears the store back to its initial state. Called on logout
// and on session expiry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.selected = ""
	s.logs = make(map[string][]model.Message)
}

// =============================================================================
// HELPERS
// =============================================================================

// findLocked returns the index of a conversation id, -1 when absent.
// Callers must hold s.mu.
func (s *Store) findLocked(id string) int {
	for i, c := range s.conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// withoutPlaceholders filters placeholder entries from a log in place.
func withoutPlaceholders(log []model.Message) []model.Message {
	out := log[:0]
	for _, m := range log {
		if !m.Placeholder {
			out = append(out, m)
		}
	}
	return out
}
