// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package download

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/chatrag-tui/internal/gateway"
	"github.com/jeranaias/chatrag-tui/internal/model"
)

// fakeBackend scripts poll responses. CheckDownload walks the checks
// slice and repeats the final entry.
type fakeBackend struct {
	mu        sync.Mutex
	already   bool
	startErr  error
	cancelErr error
	checkErr  error
	checks    []gateway.DownloadStatus
	idx       int

	startCalls  int
	cancelCalls int
}

func (f *fakeBackend) StartDownload(ctx context.Context, modelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.already, f.startErr
}

func (f *fakeBackend) CheckDownload(ctx context.Context, modelID string) (gateway.DownloadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return gateway.DownloadStatus{}, f.checkErr
	}
	if len(f.checks) == 0 {
		return gateway.DownloadStatus{Status: "downloading"}, nil
	}
	st := f.checks[f.idx]
	if f.idx < len(f.checks)-1 {
		f.idx++
	}
	return st, nil
}

func (f *fakeBackend) CancelDownload(ctx context.Context, modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return f.cancelErr
}

func newTestMonitor(b *fakeBackend) *Monitor {
	return NewMonitor(b).
		WithPollInterval(5 * time.Millisecond).
		WithNoticeDuration(10 * time.Millisecond)
}

// waitFor polls a condition until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStartRunsToCompletion(t *testing.T) {
	backend := &fakeBackend{
		checks: []gateway.DownloadStatus{
			{Status: "downloading", DownloadedBytes: 100, TotalBytes: 1000},
			{Status: "downloading", DownloadedBytes: 600, TotalBytes: 1000},
			{Status: "completed", DownloadedBytes: 1000, TotalBytes: 1000, Downloaded: true},
		},
	}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := m.State("mistral-7b").Phase; got != model.PhaseDownloading {
		t.Fatalf("phase after start = %v, want downloading", got)
	}
	if _, ok := m.Polling(); !ok {
		t.Fatal("expected a poll loop after start")
	}

	waitFor(t, "completed phase", func() bool {
		return m.State("mistral-7b").Phase == model.PhaseCompleted
	})
	waitFor(t, "poll loop teardown", func() bool {
		_, ok := m.Polling()
		return !ok
	})

	st := m.State("mistral-7b")
	if st.DownloadedBytes != 1000 || st.TotalBytes != 1000 {
		t.Errorf("final progress = %d/%d, want 1000/1000", st.DownloadedBytes, st.TotalBytes)
	}
	if pct := st.Percent(); pct != 100 {
		t.Errorf("Percent() = %v, want 100", pct)
	}
}

func TestStartAlreadyDownloaded(t *testing.T) {
	backend := &fakeBackend{already: true}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := m.State("mistral-7b").Phase; got != model.PhaseCompleted {
		t.Fatalf("phase = %v, want completed", got)
	}
	if _, ok := m.Polling(); ok {
		t.Fatal("no poll loop should start for an already-downloaded model")
	}
}

func TestStartWhileActive(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(context.Background(), "mistral-7b"); !errors.Is(err, ErrDownloadActive) {
		t.Fatalf("second Start = %v, want ErrDownloadActive", err)
	}

	backend.mu.Lock()
	calls := backend.startCalls
	backend.mu.Unlock()
	if calls != 1 {
		t.Errorf("backend start calls = %d, want 1", calls)
	}
}

func TestStartBackendError(t *testing.T) {
	backend := &fakeBackend{startErr: errors.New("worker busy")}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err == nil {
		t.Fatal("expected error from Start")
	}
	if got := m.State("mistral-7b").Phase; got != model.PhaseNotDownloaded {
		t.Errorf("phase = %v, want not_downloaded after failed start", got)
	}
	if _, ok := m.Polling(); ok {
		t.Error("no poll loop should exist after a failed start")
	}
}

func TestCancelKeepsPollingUntilTerminal(t *testing.T) {
	backend := &fakeBackend{
		checks: []gateway.DownloadStatus{
			{Status: "downloading", DownloadedBytes: 100, TotalBytes: 1000},
			{Status: "cancelling", DownloadedBytes: 200, TotalBytes: 1000},
			{Status: "cancelled", DownloadedBytes: 200, TotalBytes: 1000},
		},
	}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Cancel(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := m.State("mistral-7b").Phase; !got.Active() && got != model.PhaseCancelled {
		t.Fatalf("phase after cancel = %v, want cancelling or cancelled", got)
	}

	// The terminal phase arriving through the poll proves the loop
	// kept running after the cancel request.
	waitFor(t, "cancelled phase", func() bool {
		return m.State("mistral-7b").Phase == model.PhaseCancelled
	})
	waitFor(t, "poll loop teardown", func() bool {
		_, ok := m.Polling()
		return !ok
	})
}

func TestCancelWinsRaceWithCompletion(t *testing.T) {
	// The worker finishes before the cancel lands: the poll reports
	// completed while the local phase is cancelling, and completed wins.
	backend := &fakeBackend{
		checks: []gateway.DownloadStatus{
			{Status: "completed", DownloadedBytes: 1000, TotalBytes: 1000, Downloaded: true},
		},
	}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Cancel(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	waitFor(t, "completed phase", func() bool {
		return m.State("mistral-7b").Phase == model.PhaseCompleted
	})
}

func TestCancelRequestFailure(t *testing.T) {
	backend := &fakeBackend{cancelErr: errors.New("connection refused")}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Cancel(context.Background(), "mistral-7b"); err == nil {
		t.Fatal("expected error from Cancel")
	}
	if got := m.State("mistral-7b").Phase; got != model.PhaseFailed {
		t.Errorf("phase = %v, want failed after cancel transport failure", got)
	}
	if _, ok := m.Polling(); ok {
		t.Error("poll loop must be torn down after cancel transport failure")
	}
}

func TestCancelIgnoredWhenNotDownloading(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Cancel(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Cancel on idle model: %v", err)
	}
	backend.mu.Lock()
	calls := backend.cancelCalls
	backend.mu.Unlock()
	if calls != 0 {
		t.Errorf("backend cancel calls = %d, want 0", calls)
	}
}

func TestPollFailureMarksFailed(t *testing.T) {
	backend := &fakeBackend{checkErr: errors.New("connection reset")}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "failed phase", func() bool {
		return m.State("mistral-7b").Phase == model.PhaseFailed
	})
	waitFor(t, "poll loop teardown", func() bool {
		_, ok := m.Polling()
		return !ok
	})
}

func TestDetachAndObserve(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Detach()
	if _, ok := m.Polling(); ok {
		t.Fatal("Detach must tear the poll loop down")
	}
	if got := m.State("mistral-7b").Phase; got != model.PhaseDownloading {
		t.Fatalf("phase after detach = %v, want downloading", got)
	}

	m.Observe("mistral-7b")
	id, ok := m.Polling()
	if !ok || id != "mistral-7b" {
		t.Fatalf("Polling() = %q, %v after observe, want mistral-7b", id, ok)
	}
}

func TestObserveIgnoresInactiveModel(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestMonitor(backend)
	defer m.Stop()

	m.Observe("phi-3")
	if _, ok := m.Polling(); ok {
		t.Fatal("Observe must not attach a loop for an inactive model")
	}
}

func TestPrimeSeedsCatalogState(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestMonitor(backend)
	defer m.Stop()

	m.Prime([]model.ModelDescriptor{
		{ID: "phi-3", Downloaded: true},
		{ID: "mistral-7b", Status: "downloading", DownloadedBytes: 50, SizeBytes: 500},
	})

	if got := m.State("phi-3").Phase; got != model.PhaseCompleted {
		t.Errorf("phi-3 phase = %v, want completed", got)
	}
	st := m.State("mistral-7b")
	if st.Phase != model.PhaseDownloading {
		t.Errorf("mistral-7b phase = %v, want downloading", st.Phase)
	}
	if st.TotalBytes != 500 {
		t.Errorf("mistral-7b total = %d, want 500", st.TotalBytes)
	}
}

func TestEventsCarryProgress(t *testing.T) {
	backend := &fakeBackend{
		checks: []gateway.DownloadStatus{
			{Status: "downloading", DownloadedBytes: 100, TotalBytes: 1000},
			{Status: "completed", DownloadedBytes: 1000, TotalBytes: 1000, Downloaded: true},
		},
	}
	m := newTestMonitor(backend)
	defer m.Stop()

	if err := m.Start(context.Background(), "mistral-7b"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var sawProgress, sawCompleted, sawNotice bool
	deadline := time.After(2 * time.Second)
	for !(sawProgress && sawCompleted && sawNotice) {
		select {
		case ev := <-m.Events():
			switch {
			case ev.Kind == EventNoticeExpired:
				sawNotice = true
			case ev.State.Phase == model.PhaseCompleted:
				sawCompleted = true
			case ev.State.Phase == model.PhaseDownloading && ev.State.DownloadedBytes > 0:
				sawProgress = true
			}
		case <-deadline:
			t.Fatalf("missing events: progress=%v completed=%v notice=%v",
				sawProgress, sawCompleted, sawNotice)
		}
	}
}
