// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"

	"github.com/jeranaias/chatrag-tui/internal/model"
)

func convs(ids ...string) []model.Conversation {
	out := make([]model.Conversation, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Conversation{ID: id, Title: model.DefaultTitle})
	}
	return out
}

func TestSetConversationsSelectionPolicy(t *testing.T) {
	s := NewStore()

	// Empty list: nothing selected.
	s.SetConversations(nil)
	if s.SelectedID() != "" {
		t.Error("Empty list should leave no selection")
	}

	// First fetch: first conversation selected.
	s.SetConversations(convs("a", "b", "c"))
	if s.SelectedID() != "a" {
		t.Errorf("SelectedID = %q, want a", s.SelectedID())
	}

	// Selection survives a refetch that still contains it.
	if err := s.Select("b"); err != nil {
		t.Fatalf("Select(b) failed: %v", err)
	}
	s.SetConversations(convs("a", "b"))
	if s.SelectedID() != "b" {
		t.Error("Existing selection should survive a refetch")
	}

	// Selection falls back to the first entry when it vanished.
	s.SetConversations(convs("x", "y"))
	if s.SelectedID() != "x" {
		t.Errorf("SelectedID = %q, want x after selection vanished", s.SelectedID())
	}
}

func TestSelectUnknownRejected(t *testing.T) {
	s := NewStore()
	s.SetConversations(convs("a"))

	if err := s.Select("nope"); err != ErrUnknownConversation {
		t.Errorf("Select(unknown) = %v, want ErrUnknownConversation", err)
	}
	if s.SelectedID() != "a" {
		t.Error("Failed select should not move the selection")
	}
}

func TestAddConversationPrependsAndSelects(t *testing.T) {
	s := NewStore()
	s.SetConversations(convs("a"))

	s.AddConversation(model.Conversation{ID: "new", Title: model.DefaultTitle})

	list := s.Conversations()
	if len(list) != 2 || list[0].ID != "new" {
		t.Error("New conversation should be at the head of the list")
	}
	if s.SelectedID() != "new" {
		t.Error("New conversation should be selected")
	}
	if msgs, fetched := s.Messages("new"); !fetched || len(msgs) != 0 {
		t.Error("New conversation log should be fetched and empty")
	}
}

func TestRemoveReselects(t *testing.T) {
	s := NewStore()
	s.SetConversations(convs("a", "b", "c"))
	if err := s.Select("b"); err != nil {
		t.Fatal(err)
	}

	removed, needNew := s.Remove("b")
	if !removed || needNew {
		t.Fatalf("Remove(b) = (%v, %v), want (true, false)", removed, needNew)
	}
	if s.SelectedID() == "" || s.SelectedID() == "b" {
		t.Errorf("SelectedID = %q, want a surviving conversation", s.SelectedID())
	}

	// Removing an unselected conversation leaves the selection alone.
	prev := s.SelectedID()
	other := "a"
	if prev == "a" {
		other = "c"
	}
	s.Remove(other)
	if s.SelectedID() != prev {
		t.Error("Removing an unselected conversation moved the selection")
	}
}

func TestRemoveLastRequestsNewConversation(t *testing.T) {
	s := NewStore()
	s.SetConversations(convs("only"))

	removed, needNew := s.Remove("only")
	if !removed || !needNew {
		t.Errorf("Remove(last) = (%v, %v), want (true, true)", removed, needNew)
	}
	if s.SelectedID() != "" {
		t.Error("No selection should remain after removing the last conversation")
	}
}

func TestMessageLogLifecycle(t *testing.T) {
	s := NewStore()
	s.SetConversations(convs("a"))

	// Unfetched log.
	if _, fetched := s.Messages("a"); fetched {
		t.Error("Log should start unfetched")
	}

	s.SetMessages("a", []model.Message{model.NewUserMessage("hi")})
	msgs, fetched := s.Messages("a")
	if !fetched || len(msgs) != 1 {
		t.Fatalf("Messages = %d entries, fetched=%v", len(msgs), fetched)
	}

	s.Append("a", model.NewPlaceholderMessage("Veuillez patienter"))
	msgs, _ = s.Messages("a")
	if len(msgs) != 2 || !msgs[1].Placeholder {
		t.Fatal("Placeholder should be appended")
	}

	// Replace removes every placeholder and appends the reply.
	s.ReplacePlaceholder("a", model.NewAssistantMessage("bonjour"))
	msgs, _ = s.Messages("a")
	if len(msgs) != 2 {
		t.Fatalf("Log has %d entries after replace, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Placeholder {
			t.Error("No placeholder should survive ReplacePlaceholder")
		}
	}
	if msgs[1].Text != "bonjour" {
		t.Errorf("Final message = %q, want bonjour", msgs[1].Text)
	}
}

func TestRefetchDropsPlaceholders(t *testing.T) {
	s := NewStore()
	s.SetConversations(convs("a"))
	s.SetMessages("a", nil)
	s.Append("a", model.NewPlaceholderMessage("pending"))

	// A full refetch is authoritative.
	s.SetMessages("a", []model.Message{model.NewUserMessage("q"), model.NewAssistantMessage("r")})
	msgs, _ := s.Messages("a")
	if len(msgs) != 2 {
		t.Fatalf("Log has %d entries, want 2", len(msgs))
	}
	for _, m := range msgs {
		if m.Placeholder {
			t.Error("Refetch should drop optimistic placeholders")
		}
	}
}

func TestRemovePlaceholders(t *testing.T) {
	s := NewStore()
	s.SetConversations(convs("a"))
	s.SetMessages("a", []model.Message{model.NewUserMessage("q")})
	s.Append("a", model.NewPlaceholderMessage("pending"))

	s.RemovePlaceholders("a")
	msgs, _ := s.Messages("a")
	if len(msgs) != 1 || msgs[0].Placeholder {
		t.Error("RemovePlaceholders should strip only placeholder entries")
	}
}

func TestReset(t *testing.T) {
	s := NewStore()
	s.SetConversations(convs("a", "b"))
	s.SetMessages("a", []model.Message{model.NewUserMessage("q")})

	s.Reset()

	if s.Count() != 0 || s.SelectedID() != "" {
		t.Error("Reset should clear conversations and selection")
	}
	if _, fetched := s.Messages("a"); fetched {
		t.Error("Reset should clear message logs")
	}
}
