// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway provides the HTTP client for the chatRAG backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/chatrag-tui/internal/model"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is the development backend address.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultTimeout is the default timeout for API requests. Uploads
	// and chat turns can be slow; the transport default applies beyond
	// this and a hung request stays pending (known limitation).
	DefaultTimeout = 120 * time.Second

	// maxResponseSize is the maximum allowed response body size.
	// Bounded reads keep a misbehaving backend from exhausting memory.
	maxResponseSize = 10 * 1024 * 1024 // 10MB limit
)

// sharedTransport pools connections across all gateway clients.
var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
}

// =============================================================================
// ERRORS
// =============================================================================

// Error variables for common gateway failures.
var (
	// ErrNoCredential indicates no session credential is attached. This
	// is a local precondition failure: no request is issued.
	ErrNoCredential = errors.New("no session credential")

	// ErrSessionExpired indicates the backend rejected the credential
	// with 401. Callers must invalidate the credential and reset the
	// session; this is a distinct kind from every other failure.
	ErrSessionExpired = errors.New("session expired")
)

// APIError represents a non-2xx response from the backend with a
// decoded human-readable message when the body carried one.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// errorBody is the backend's error envelope. Some endpoints use
// "error", others "message".
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// historyEntry is one wire entry from GET /conversation_history/{id}.
type historyEntry struct {
	From string `json:"from"`
	Text string `json:"text"`
}

// chatRequest is the body for POST /chat.
type chatRequest struct {
	Question       string `json:"question"`
	AgentType      string `json:"agent_type"`
	ModelName      string `json:"model_name"`
	ConversationID string `json:"conversation_id"`
}

// chatResponse is the reply from POST /chat. The field name is the
// backend's spelling.
type chatResponse struct {
	Reponse string `json:"reponse"`
}

// wireModel is one catalog entry from GET /models.
type wireModel struct {
	Value           string  `json:"value"`
	Name            string  `json:"name"`
	SizeMB          float64 `json:"size_mb"`
	Downloaded      bool    `json:"downloaded"`
	Status          string  `json:"status"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
}

// messageReply is the generic {message} acknowledgment envelope.
type messageReply struct {
	Message string `json:"message"`
}

// DownloadStatus is the poll result from GET /check_model_downloaded.
type DownloadStatus struct {
	DownloadedBytes int64  `json:"downloaded_bytes"`
	TotalBytes      int64  `json:"total_bytes"`
	Status          string `json:"status"`
	Downloaded      bool   `json:"downloaded"`
}

// Upload names one document to send to the backend.
type Upload struct {
	Name   string
	Reader io.Reader
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the request layer over the backend's HTTP surface. It owns
// credential attachment and uniform error decoding; it holds no session
// state beyond the bearer credential itself. Safe for concurrent use
// once configured.
type Client struct {
	baseURL    string
	httpClient *http.Client
	verbose    bool

	mu         sync.RWMutex
	credential string
}

// New creates a gateway client for the given backend base URL.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
	}
}

// WithTimeout sets the request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// WithHTTPClient replaces the underlying HTTP client (tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithVerbose enables request/response logging. Bodies and headers are
// never logged.
func (c *Client) WithVerbose(v bool) *Client {
	c.verbose = v
	return c
}

// SetCredential attaches the session credential used on every request.
func (c *Client) SetCredential(cred string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = strings.TrimSpace(cred)
}

// ClearCredential drops the session credential (logout / 401).
func (c *Client) ClearCredential() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credential = ""
}

// HasCredential reports whether a credential is attached.
func (c *Client) HasCredential() bool {
	return c.getCredential() != ""
}

func (c *Client) getCredential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credential
}

// BaseURL returns the configured backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// ListConversations fetches the ordered conversation list.
func (c *Client) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateConversation asks the backend for a fresh conversation.
func (c *Client) CreateConversation(ctx context.Context) (model.Conversation, error) {
	var out model.Conversation
	if err := c.do(ctx, http.MethodPost, "/new_conversation", nil, &out); err != nil {
		return model.Conversation{}, err
	}
	return out, nil
}

// RenameConversation changes a conversation's title server-side.
func (c *Client) RenameConversation(ctx context.Context, id, newTitle string) error {
	body := map[string]string{"new_title": newTitle}
	return c.do(ctx, http.MethodPut, "/rename_conversation/"+url.PathEscape(id), body, nil)
}

// DeleteConversation removes a conversation server-side.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/delete_conversation/"+url.PathEscape(id), nil, nil)
}

// ConversationHistory fetches the ordered message log for a
// conversation.
func (c *Client) ConversationHistory(ctx context.Context, id string) ([]model.Message, error) {
	var entries []historyEntry
	if err := c.do(ctx, http.MethodGet, "/conversation_history/"+url.PathEscape(id), nil, &entries); err != nil {
		return nil, err
	}

	msgs := make([]model.Message, 0, len(entries))
	for _, e := range entries {
		switch model.SenderFromWire(e.From) {
		case model.SenderUser:
			msgs = append(msgs, model.NewUserMessage(e.Text))
		default:
			msgs = append(msgs, model.NewAssistantMessage(e.Text))
		}
	}
	return msgs, nil
}

// =============================================================================
// CHAT & UPLOAD
// =============================================================================

// Chat sends one chat turn and returns the assistant's reply text.
func (c *Client) Chat(ctx context.Context, conversationID string, mode model.AgentMode, modelID, question string) (string, error) {
	body := chatRequest{
		Question:       question,
		AgentType:      mode.String(),
		ModelName:      modelID,
		ConversationID: conversationID,
	}
	var out chatResponse
	if err := c.do(ctx, http.MethodPost, "/chat", body, &out); err != nil {
		return "", err
	}
	return out.Reponse, nil
}

// UploadDocuments sends documents for ingestion into a conversation's
// retrieval corpus and returns the backend's summary message.
func (c *Client) UploadDocuments(ctx context.Context, conversationID string, files []Upload) (string, error) {
	if !c.HasCredential() {
		return "", ErrNoCredential
	}
	if len(files) == 0 {
		return "", errors.New("no files to upload")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("file", f.Name)
		if err != nil {
			return "", fmt.Errorf("failed to build upload body: %w", err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload body: %w", err)
	}

	reqURL := c.baseURL + "/upload_document/" + url.PathEscape(conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.getCredential())
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out messageReply
	if err := c.send(req, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// =============================================================================
// MODEL CATALOG & DOWNLOADS
// =============================================================================

// ListModels fetches the model catalog for an agent mode. For the
// remote mode, values that are URLs are flagged as remote-hosted.
func (c *Client) ListModels(ctx context.Context, mode model.AgentMode) ([]model.ModelDescriptor, error) {
	var wire []wireModel
	path := "/models?agent_type=" + url.QueryEscape(mode.String())
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}

	out := make([]model.ModelDescriptor, 0, len(wire))
	for _, m := range wire {
		d := model.ModelDescriptor{
			ID:              m.Value,
			DisplayName:     m.Name,
			SizeBytes:       int64(m.SizeMB * 1024 * 1024),
			Downloaded:      m.Downloaded,
			Status:          m.Status,
			DownloadedBytes: m.DownloadedBytes,
		}
		if mode == model.ModeRemote && model.DescriptorIsRemoteValue(m.Value) {
			d.RemoteURL = m.Value
		}
		out = append(out, d)
	}
	return out, nil
}

// StartDownload asks the remote worker to begin downloading a model.
// The call is idempotent: when the backend reports the model is already
// downloaded, the first return value is true and no download started.
func (c *Client) StartDownload(ctx context.Context, modelID string) (alreadyDownloaded bool, err error) {
	var out messageReply
	if err := c.do(ctx, http.MethodPost, "/download_model/"+url.PathEscape(modelID), nil, &out); err != nil {
		return false, err
	}
	return isAlreadyDownloaded(out.Message), nil
}

// CheckDownload polls the download progress for a model.
func (c *Client) CheckDownload(ctx context.Context, modelID string) (DownloadStatus, error) {
	var out DownloadStatus
	if err := c.do(ctx, http.MethodGet, "/check_model_downloaded/"+url.PathEscape(modelID), nil, &out); err != nil {
		return DownloadStatus{}, err
	}
	return out, nil
}

// CancelDownload asks the remote worker to stop a download. The effect
// is advisory: the terminal phase arrives through a later poll.
func (c *Client) CancelDownload(ctx context.Context, modelID string) error {
	return c.do(ctx, http.MethodPost, "/cancel_download/"+url.PathEscape(modelID), nil, nil)
}

// isAlreadyDownloaded recognizes the backend's idempotent-success
// sentinel. The backend answers in French; the English form is accepted
// as well.
func isAlreadyDownloaded(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "déjà téléchargé") ||
		strings.Contains(lower, "already downloaded")
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// do issues one JSON request with the bearer credential attached and
// decodes the response into out (when non-nil). A missing credential
// short-circuits locally without touching the network.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if !c.HasCredential() {
		return ErrNoCredential
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.getCredential())
	req.Header.Set("Content-Type", "application/json")

	return c.send(req, out)
}

// send executes a prepared request and decodes the result.
func (c *Client) send(req *http.Request, out interface{}) error {
	if c.verbose {
		log.Printf("API request: %s %s", req.Method, req.URL.Path)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.verbose {
		log.Printf("API response: %d %s (%v)", resp.StatusCode, req.URL.Path, time.Since(start))
	}

	data, err := readBody(resp)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// readBody reads a response body with the size limit applied.
func readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, maxResponseSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) == maxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", maxResponseSize)
	}
	return data, nil
}

// decodeError converts a non-2xx response into the error taxonomy: 401
// becomes ErrSessionExpired, everything else an *APIError carrying the
// decoded message when the body had one.
func decodeError(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return ErrSessionExpired
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != "" {
			return &APIError{Status: status, Message: eb.Error}
		}
		if eb.Message != "" {
			return &APIError{Status: status, Message: eb.Message}
		}
	}
	return &APIError{Status: status, Message: http.StatusText(status)}
}
