// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestrator coordinates the session store, the backend
// gateway, and the download monitor behind the chat surface. All
// mutations of session state flow through here; the UI only reads.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeranaias/chatrag-tui/internal/download"
	"github.com/jeranaias/chatrag-tui/internal/gateway"
	"github.com/jeranaias/chatrag-tui/internal/model"
	"github.com/jeranaias/chatrag-tui/internal/session"
	"github.com/jeranaias/chatrag-tui/internal/util"
)

// titleRuneLimit caps the conversation title derived from the first
// question.
const titleRuneLimit = 50

// Synthetic assistant replies shown for local failures. The backend
// speaks French; local notices match.
const (
	replyHistoryError   = "Impossible de charger l'historique de cette conversation."
	replyModelNotReady  = "Veuillez d'abord télécharger le modèle sélectionné."
	replyNoModel        = "Veuillez d'abord sélectionner un modèle."
	replyNotLoggedIn    = "Veuillez vous connecter pour continuer."
	replyUploadProgress = "Traitement des documents en cours..."
	replyUploadDone     = "Documents traités."

	replyServerErrorPrefix = "Erreur lors de la communication avec le serveur: "
	replyUploadErrorPrefix = "Erreur d'upload: "
)

// Error variables for operations the caller must surface directly.
var (
	// ErrBusy is returned while a chat turn is already in flight.
	ErrBusy = errors.New("a request is already in progress")

	// ErrNoConversation is returned when an operation needs a selected
	// conversation and none exists.
	ErrNoConversation = errors.New("no conversation selected")
)

// Backend is the gateway surface the orchestrator drives. Satisfied by
// *gateway.Client.
type Backend interface {
	HasCredential() bool
	ClearCredential()
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	CreateConversation(ctx context.Context) (model.Conversation, error)
	RenameConversation(ctx context.Context, id, newTitle string) error
	DeleteConversation(ctx context.Context, id string) error
	ConversationHistory(ctx context.Context, id string) ([]model.Message, error)
	Chat(ctx context.Context, conversationID string, mode model.AgentMode, modelID, question string) (string, error)
	UploadDocuments(ctx context.Context, conversationID string, files []gateway.Upload) (string, error)
	ListModels(ctx context.Context, mode model.AgentMode) ([]model.ModelDescriptor, error)
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind discriminates orchestrator events.
type EventKind int

const (
	// EventLogChanged reports that a conversation's message log changed
	// mid-operation (placeholder inserted or resolved).
	EventLogChanged EventKind = iota

	// EventConversationsChanged reports a change to the conversation
	// list or the selection.
	EventConversationsChanged

	// EventSessionExpired reports that the backend rejected the
	// credential and the session was reset.
	EventSessionExpired
)

// Event is one notification delivered on the orchestrator's channel.
type Event struct {
	Kind           EventKind
	ConversationID string
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Orchestrator owns the chat session: conversation list and selection,
// per-conversation logs, the active agent mode and model, and the chat
// turn in flight. Methods are safe for concurrent use; blocking work
// is expected to run off the UI goroutine.
type Orchestrator struct {
	store   *session.Store
	backend Backend
	monitor *download.Monitor

	mu             sync.Mutex
	mode           model.AgentMode
	models         []model.ModelDescriptor
	selectedModel  string
	preferredModel string
	sending        bool
	uploading      bool

	events chan Event
}

// New creates an orchestrator over the given collaborators. The
// initial agent mode is local.
func New(store *session.Store, backend Backend, monitor *download.Monitor) *Orchestrator {
	return &Orchestrator{
		store:   store,
		backend: backend,
		monitor: monitor,
		mode:    model.ModeLocal,
		events:  make(chan Event, 32),
	}
}

// WithInitialMode sets the agent mode Bootstrap loads the catalog for.
// Unknown modes are ignored.
func (o *Orchestrator) WithInitialMode(mode model.AgentMode) *Orchestrator {
	if mode.Valid() {
		o.mode = mode
	}
	return o
}

// WithPreferredModel preselects a model by id when the catalog carries
// it; otherwise the catalog's first entry is selected.
func (o *Orchestrator) WithPreferredModel(id string) *Orchestrator {
	o.preferredModel = id
	return o
}

// Events returns the notification channel. It is never closed.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Store exposes the session store for read access.
func (o *Orchestrator) Store() *session.Store {
	return o.store
}

// Monitor exposes the download monitor for read access.
func (o *Orchestrator) Monitor() *download.Monitor {
	return o.monitor
}

// Mode returns the active agent mode.
func (o *Orchestrator) Mode() model.AgentMode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Models returns the catalog for the active mode.
func (o *Orchestrator) Models() []model.ModelDescriptor {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]model.ModelDescriptor, len(o.models))
	copy(out, o.models)
	return out
}

// SelectedModel returns the active model descriptor, false when none
// is selected.
func (o *Orchestrator) SelectedModel() (model.ModelDescriptor, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return model.FindDescriptor(o.models, o.selectedModel)
}

// Sending reports whether a chat turn is in flight.
func (o *Orchestrator) Sending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sending
}

// Uploading reports whether a document upload is in flight.
func (o *Orchestrator) Uploading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.uploading
}

// Close tears down the download monitor.
func (o *Orchestrator) Close() {
	o.monitor.Stop()
}

// =============================================================================
// BOOTSTRAP
// =============================================================================

// Bootstrap loads the conversation list, the selected conversation's
// history, and the model catalog for the initial mode. An empty
// account gets a fresh conversation so a selection always exists.
func (o *Orchestrator) Bootstrap(ctx context.Context) error {
	if !o.backend.HasCredential() {
		return gateway.ErrNoCredential
	}

	convs, err := o.backend.ListConversations(ctx)
	if err != nil {
		return o.checkSession(err)
	}
	o.store.SetConversations(convs)

	if o.store.Count() == 0 {
		if err := o.NewConversation(ctx); err != nil {
			return err
		}
	} else if id := o.store.SelectedID(); id != "" {
		if err := o.loadHistory(ctx, id); err != nil {
			return err
		}
	}

	if err := o.loadModels(ctx, o.Mode()); err != nil {
		return err
	}
	o.emit(Event{Kind: EventConversationsChanged})
	return nil
}

// =============================================================================
// CONVERSATION OPERATIONS
// =============================================================================

// RefreshConversations refetches the conversation list. The selection
// is kept when the selected conversation still exists.
func (o *Orchestrator) RefreshConversations(ctx context.Context) error {
	convs, err := o.backend.ListConversations(ctx)
	if err != nil {
		return o.checkSession(err)
	}
	before := o.store.SelectedID()
	o.store.SetConversations(convs)
	if id := o.store.SelectedID(); id != "" && id != before {
		if err := o.loadHistory(ctx, id); err != nil {
			return err
		}
	}
	o.emit(Event{Kind: EventConversationsChanged})
	return nil
}

// NewConversation creates a conversation on the backend and selects
// it. New conversations are inserted at the head of the list.
func (o *Orchestrator) NewConversation(ctx context.Context) error {
	conv, err := o.backend.CreateConversation(ctx)
	if err != nil {
		return o.checkSession(err)
	}
	o.store.AddConversation(conv)
	o.emit(Event{Kind: EventConversationsChanged, ConversationID: conv.ID})
	return nil
}

// SelectConversation switches the selection and loads the history on
// first visit. A history that cannot be fetched shows a synthetic
// notice instead of an empty log.
func (o *Orchestrator) SelectConversation(ctx context.Context, id string) error {
	if err := o.store.Select(id); err != nil {
		return err
	}
	o.emit(Event{Kind: EventConversationsChanged, ConversationID: id})

	if _, fetched := o.store.Messages(id); fetched {
		return nil
	}
	return o.loadHistory(ctx, id)
}

// RenameConversation pushes a new title to the backend, then mirrors
// it locally.
func (o *Orchestrator) RenameConversation(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title must not be empty")
	}
	if err := o.backend.RenameConversation(ctx, id, title); err != nil {
		return o.checkSession(err)
	}
	if err := o.store.Rename(id, title); err != nil {
		return err
	}
	o.emit(Event{Kind: EventConversationsChanged, ConversationID: id})
	return nil
}

// DeleteConversation removes a conversation on the backend and
// locally. Deleting the selected conversation reselects a neighbor;
// deleting the last one creates a fresh conversation so the surface
// never goes empty.
func (o *Orchestrator) DeleteConversation(ctx context.Context, id string) error {
	if err := o.backend.DeleteConversation(ctx, id); err != nil {
		return o.checkSession(err)
	}
	removed, needNew := o.store.Remove(id)
	if !removed {
		return nil
	}
	if needNew {
		return o.NewConversation(ctx)
	}
	o.emit(Event{Kind: EventConversationsChanged})

	if sel := o.store.SelectedID(); sel != "" {
		if _, fetched := o.store.Messages(sel); !fetched {
			return o.loadHistory(ctx, sel)
		}
	}
	return nil
}

// loadHistory fetches and installs a conversation's message log. A
// fetch failure that is not a session expiry installs a synthetic
// notice so the user sees why the log is empty.
func (o *Orchestrator) loadHistory(ctx context.Context, id string) error {
	msgs, err := o.backend.ConversationHistory(ctx, id)
	if err != nil {
		if sessErr := o.checkSession(err); errors.Is(sessErr, gateway.ErrSessionExpired) {
			return sessErr
		}
		o.store.SetMessages(id, []model.Message{model.NewAssistantMessage(replyHistoryError)})
		o.emit(Event{Kind: EventLogChanged, ConversationID: id})
		return err
	}
	o.store.SetMessages(id, msgs)
	o.emit(Event{Kind: EventLogChanged, ConversationID: id})
	return nil
}

// =============================================================================
// CHAT
// =============================================================================

// Send runs one chat turn: the question is appended with a pending
// placeholder, the backend is asked, and the placeholder is replaced
// by the reply. Local precondition failures resolve the turn with a
// synthetic assistant notice and never touch the network.
func (o *Orchestrator) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	convID := o.store.SelectedID()
	if convID == "" {
		return ErrNoConversation
	}

	o.mu.Lock()
	if o.sending {
		o.mu.Unlock()
		return ErrBusy
	}
	o.sending = true
	mode := o.mode
	desc, hasModel := model.FindDescriptor(o.models, o.selectedModel)
	o.mu.Unlock()
	defer o.clearSending()

	// Precondition failures are answered locally.
	if !hasModel {
		o.resolveLocally(convID, text, replyNoModel)
		return nil
	}
	if mode == model.ModeLocal && !o.monitor.State(desc.ID).Phase.Ready() {
		o.resolveLocally(convID, text, replyModelNotReady)
		return nil
	}

	o.store.Append(convID, model.NewUserMessage(text))
	o.store.Append(convID, model.NewPlaceholderMessage(""))
	o.emit(Event{Kind: EventLogChanged, ConversationID: convID})

	reply, err := o.backend.Chat(ctx, convID, mode, desc.ID, text)
	if err != nil {
		err = o.checkSession(err)
		if errors.Is(err, gateway.ErrSessionExpired) {
			return err
		}
		o.store.ReplacePlaceholder(convID, model.NewAssistantMessage(failureReply(replyServerErrorPrefix, err)))
		o.emit(Event{Kind: EventLogChanged, ConversationID: convID})
		return err
	}

	o.store.ReplacePlaceholder(convID, model.NewAssistantMessage(reply))
	o.emit(Event{Kind: EventLogChanged, ConversationID: convID})

	// A failed turn keeps the default title; only an answered first
	// question names the conversation.
	o.applyTitlePolicy(ctx, convID, text)
	return nil
}

// resolveLocally answers a chat turn without the backend: the question
// and a synthetic assistant notice land in the log together.
func (o *Orchestrator) resolveLocally(convID, question, notice string) {
	o.store.Append(convID, model.NewUserMessage(question))
	o.store.Append(convID, model.NewAssistantMessage(notice))
	o.emit(Event{Kind: EventLogChanged, ConversationID: convID})
}

// failureReply builds the synthetic assistant notice for a failed
// backend call. The decoded backend message is carried through so the
// log says why the operation failed; a missing credential gets its own
// notice.
func failureReply(prefix string, err error) string {
	if errors.Is(err, gateway.ErrNoCredential) {
		return replyNotLoggedIn
	}
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return prefix + apiErr.Message
	}
	return prefix + err.Error()
}

// applyTitlePolicy names a still-default conversation after its first
// question. The server rename is best effort; the local title changes
// regardless so the sidebar updates immediately.
func (o *Orchestrator) applyTitlePolicy(ctx context.Context, convID, question string) {
	conv, ok := o.store.Selected()
	if !ok || conv.ID != convID || !conv.HasDefaultTitle() {
		return
	}
	title := deriveTitle(question)
	_ = o.backend.RenameConversation(ctx, convID, title)
	if err := o.store.Rename(convID, title); err == nil {
		o.emit(Event{Kind: EventConversationsChanged, ConversationID: convID})
	}
}

// deriveTitle truncates a question to the title rune limit, marking
// truncation with a trailing ellipsis.
func deriveTitle(question string) string {
	if util.RuneLen(question) <= titleRuneLimit {
		return question
	}
	return util.TruncateRunesNoEllipsis(question, titleRuneLimit) + "..."
}

func (o *Orchestrator) clearSending() {
	o.mu.Lock()
	o.sending = false
	o.mu.Unlock()
}

// =============================================================================
// DOCUMENT UPLOAD
// =============================================================================

// UploadFiles reads local files and sends them for ingestion into the
// selected conversation. A progress placeholder sits in the log while
// the upload is in flight; every exit path replaces it, with the
// backend's summary or with an error notice.
func (o *Orchestrator) UploadFiles(ctx context.Context, paths []string) error {
	convID := o.store.SelectedID()
	if convID == "" {
		return ErrNoConversation
	}

	o.mu.Lock()
	if o.uploading {
		o.mu.Unlock()
		return ErrBusy
	}
	o.uploading = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.uploading = false
		o.mu.Unlock()
	}()

	o.store.Append(convID, model.NewPlaceholderMessage(replyUploadProgress))
	o.emit(Event{Kind: EventLogChanged, ConversationID: convID})
	settle := func(text string) {
		o.store.ReplacePlaceholder(convID, model.NewAssistantMessage(text))
		o.emit(Event{Kind: EventLogChanged, ConversationID: convID})
	}

	var uploads []gateway.Upload
	var closers []*os.File
	defer func() {
		for _, f := range closers {
			f.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			err = fmt.Errorf("failed to open %s: %w", p, err)
			settle(failureReply(replyUploadErrorPrefix, err))
			return err
		}
		closers = append(closers, f)
		uploads = append(uploads, gateway.Upload{Name: filepath.Base(p), Reader: f})
	}

	summary, err := o.backend.UploadDocuments(ctx, convID, uploads)
	if err != nil {
		err = o.checkSession(err)
		if errors.Is(err, gateway.ErrSessionExpired) {
			return err
		}
		settle(failureReply(replyUploadErrorPrefix, err))
		return err
	}
	if summary == "" {
		summary = replyUploadDone
	}
	settle(summary)
	return nil
}

// =============================================================================
// MODES, MODELS & DOWNLOADS
// =============================================================================

// SwitchMode changes the agent mode and replaces the model catalog.
// A failed catalog fetch leaves the mode and any in-flight download
// poll untouched; on success the previous poll loop is detached and a
// download in flight for the newly selected model is observed again.
func (o *Orchestrator) SwitchMode(ctx context.Context, mode model.AgentMode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown agent mode %q", mode)
	}
	if o.Mode() == mode {
		return nil
	}
	return o.loadModels(ctx, mode)
}

// SelectModel changes the active model within the current catalog. The
// previous model's poll loop is detached; a download in flight for the
// new model is observed.
func (o *Orchestrator) SelectModel(id string) error {
	o.mu.Lock()
	desc, ok := model.FindDescriptor(o.models, id)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("unknown model %q", id)
	}
	o.selectedModel = desc.ID
	o.mu.Unlock()

	o.monitor.Detach()
	o.monitor.Observe(desc.ID)
	return nil
}

// StartDownload begins downloading the selected model.
func (o *Orchestrator) StartDownload(ctx context.Context) error {
	desc, ok := o.SelectedModel()
	if !ok {
		return errors.New("no model selected")
	}
	if desc.IsRemote() {
		return errors.New("remote-hosted models are not downloadable")
	}
	return o.checkSession(o.monitor.Start(ctx, desc.ID))
}

// CancelDownload cancels the selected model's download.
func (o *Orchestrator) CancelDownload(ctx context.Context) error {
	desc, ok := o.SelectedModel()
	if !ok {
		return errors.New("no model selected")
	}
	return o.checkSession(o.monitor.Cancel(ctx, desc.ID))
}

// loadModels fetches and installs the catalog for a mode, selects its
// first entry, and seeds the download monitor. The previous model's
// poll loop is detached only once the fetch has succeeded, so a failed
// catalog load leaves an in-flight download observed.
func (o *Orchestrator) loadModels(ctx context.Context, mode model.AgentMode) error {
	models, err := o.backend.ListModels(ctx, mode)
	if err != nil {
		return o.checkSession(err)
	}
	o.monitor.Detach()

	o.mu.Lock()
	o.mode = mode
	o.models = models
	o.selectedModel = ""
	if _, ok := model.FindDescriptor(models, o.preferredModel); ok {
		o.selectedModel = o.preferredModel
	} else if len(models) > 0 {
		o.selectedModel = models[0].ID
	}
	selected := o.selectedModel
	o.mu.Unlock()

	o.monitor.Prime(models)
	if selected != "" {
		o.monitor.Observe(selected)
	}
	return nil
}

// =============================================================================
// SESSION EXPIRY
// =============================================================================

// checkSession inspects an error from the backend. A session expiry
// clears the credential, wipes local session state, and notifies the
// surface; every other error passes through unchanged.
func (o *Orchestrator) checkSession(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gateway.ErrSessionExpired) {
		o.backend.ClearCredential()
		o.monitor.Detach()
		o.store.Reset()
		o.emit(Event{Kind: EventSessionExpired})
	}
	return err
}

// emit delivers an event without blocking; a full channel drops it.
func (o *Orchestrator) emit(ev Event) {
	select {
	case o.events <- ev:
	default:
	}
}
