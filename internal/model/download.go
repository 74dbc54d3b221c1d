// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// model descriptors, and download state.
package model

// =============================================================================
// DOWNLOAD PHASE
// =============================================================================

// Phase is the discrete state of a tracked model download.
type Phase string

const (
	// PhaseNotDownloaded is the initial phase: no download attempt exists.
	PhaseNotDownloaded Phase = "not_downloaded"

	// PhaseDownloading means a remote worker is fetching the model and a
	// poll loop is observing it.
	PhaseDownloading Phase = "downloading"

	// PhaseCancelling means a cancel was requested; the poll loop keeps
	// running until the worker reports a terminal status.
	PhaseCancelling Phase = "cancelling"

	// PhaseCompleted, PhaseFailed and PhaseCancelled are terminal for a
	// download attempt. A later explicit start begins a new attempt.
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// Terminal returns true for phases that end a download attempt.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

// Active returns true while a poll loop must exist for the model.
func (p Phase) Active() bool {
	return p == PhaseDownloading || p == PhaseCancelling
}

// Ready returns true when the model can serve chat requests.
func (p Phase) Ready() bool {
	return p == PhaseCompleted
}

// CanTransition validates a phase change (must be checked before every
// mutation). Setting the same phase is idempotent. Terminal phases and
// the initial phase may restart into downloading through an explicit
// user action; no other transition out of a terminal phase exists.
func (p Phase) CanTransition(to Phase) bool {
	if p == to {
		return true
	}

	switch p {
	case PhaseNotDownloaded:
		return to == PhaseDownloading || to == PhaseCompleted
	case PhaseDownloading:
		return to == PhaseCancelling || to == PhaseCompleted ||
			to == PhaseFailed || to == PhaseCancelled
	case PhaseCancelling:
		// The worker may finish before the cancel lands; completed is
		// accepted so the poll result is never discarded.
		return to == PhaseCancelled || to == PhaseFailed || to == PhaseCompleted
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		// Restarting a new attempt is the only way out.
		return to == PhaseDownloading
	default:
		return false
	}
}

// PhaseFromStatus maps the backend's raw status string to a Phase. An
// empty or unknown status falls back to the downloaded flag.
func PhaseFromStatus(status string, downloaded bool) Phase {
	switch status {
	case "downloading":
		return PhaseDownloading
	case "cancelling":
		return PhaseCancelling
	case "completed":
		return PhaseCompleted
	case "failed":
		return PhaseFailed
	case "cancelled":
		return PhaseCancelled
	default:
		if downloaded {
			return PhaseCompleted
		}
		return PhaseNotDownloaded
	}
}

// =============================================================================
// DOWNLOAD STATE
// =============================================================================

// DownloadState tracks one model's download progress. At most one state
// exists per model id; it is mutated only by the download monitor.
type DownloadState struct {
	ModelID         string
	DownloadedBytes int64
	TotalBytes      int64
	Phase           Phase
}

// Percent returns the download completion percentage, zero when the
// total is unknown.
func (s DownloadState) Percent() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	pct := float64(s.DownloadedBytes) / float64(s.TotalBytes) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
