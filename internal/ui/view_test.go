// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"
	"testing"

	"github.com/jeranaias/chatrag-tui/internal/gateway"
	"github.com/jeranaias/chatrag-tui/internal/model"
	"github.com/jeranaias/chatrag-tui/internal/orchestrator"
)

func TestDownloadStatusLine(t *testing.T) {
	tests := []struct {
		name   string
		state  model.DownloadState
		notice string
		want   string
	}{
		{
			name:  "not downloaded",
			state: model.DownloadState{Phase: model.PhaseNotDownloaded},
			want:  "non téléchargé",
		},
		{
			name: "downloading shows progress",
			state: model.DownloadState{
				Phase:           model.PhaseDownloading,
				DownloadedBytes: 512 * 1024 * 1024,
				TotalBytes:      1024 * 1024 * 1024,
			},
			want: "50%",
		},
		{
			name:  "cancelling",
			state: model.DownloadState{Phase: model.PhaseCancelling},
			want:  "annulation",
		},
		{
			name:  "completed",
			state: model.DownloadState{Phase: model.PhaseCompleted},
			want:  "prêt",
		},
		{
			name:  "failed",
			state: model.DownloadState{Phase: model.PhaseFailed},
			want:  "échoué",
		},
		{
			name:   "notice wins over phase",
			state:  model.DownloadState{Phase: model.PhaseCompleted},
			notice: "Modèle téléchargé avec succès",
			want:   "succès",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := downloadStatusLine(tt.state, "*", tt.notice)
			if !strings.Contains(got, tt.want) {
				t.Errorf("downloadStatusLine() = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"session expired", gateway.ErrSessionExpired, "Session expirée"},
		{"no credential", gateway.ErrNoCredential, "jeton"},
		{"busy", orchestrator.ErrBusy, "déjà en cours"},
		{"no conversation", orchestrator.ErrNoConversation, "Aucune conversation"},
		{"api error passes through", &gateway.APIError{Status: 500, Message: "boom"}, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errorText(tt.err)
			if !strings.Contains(got, tt.want) {
				t.Errorf("errorText(%v) = %q, want substring %q", tt.err, got, tt.want)
			}
		})
	}
}
