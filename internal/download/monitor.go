// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package download tracks model download lifecycles against the remote
// worker. The monitor owns the poll loop: while a download is active
// exactly one loop observes it, and a terminal phase tears the loop
// down. All phase mutations pass through the phase transition table.
package download

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/chatrag-tui/internal/gateway"
	"github.com/jeranaias/chatrag-tui/internal/model"
)

// Timing constants for the poll loop.
const (
	// DefaultPollInterval is the pause between progress checks.
	DefaultPollInterval = 1500 * time.Millisecond

	// DefaultNoticeDuration is how long the finished notice stays up.
	DefaultNoticeDuration = 3 * time.Second
)

// ErrDownloadActive is returned when a start targets a model whose
// download is already being observed.
var ErrDownloadActive = errors.New("download already in progress")

// Backend is the slice of the gateway the monitor needs.
type Backend interface {
	StartDownload(ctx context.Context, modelID string) (alreadyDownloaded bool, err error)
	CheckDownload(ctx context.Context, modelID string) (gateway.DownloadStatus, error)
	CancelDownload(ctx context.Context, modelID string) error
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind discriminates monitor events.
type EventKind int

const (
	// EventStateChanged reports a phase or progress change.
	EventStateChanged EventKind = iota

	// EventNoticeExpired reports that the transient finished notice for
	// a model should be taken down.
	EventNoticeExpired
)

// Event is one observation delivered on the monitor's event channel.
type Event struct {
	Kind  EventKind
	State model.DownloadState
}

// =============================================================================
// MONITOR
// =============================================================================

// pollHandle is the live poll loop for one model. At most one handle
// exists at a time; attaching a new one tears the previous loop down
// first.
type pollHandle struct {
	modelID string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Monitor tracks download state per model id and runs the poll loop
// for the active download. It is safe for concurrent use.
type Monitor struct {
	mu      sync.Mutex
	backend Backend
	states  map[string]model.DownloadState
	poll    *pollHandle
	closed  bool

	pollInterval   time.Duration
	noticeDuration time.Duration

	events chan Event
}

// NewMonitor creates a monitor around the given backend.
func NewMonitor(backend Backend) *Monitor {
	return &Monitor{
		backend:        backend,
		states:         make(map[string]model.DownloadState),
		pollInterval:   DefaultPollInterval,
		noticeDuration: DefaultNoticeDuration,
		events:         make(chan Event, 32),
	}
}

// WithPollInterval overrides the poll pause (tests).
func (m *Monitor) WithPollInterval(d time.Duration) *Monitor {
	m.pollInterval = d
	return m
}

// WithNoticeDuration overrides the finished-notice lifetime (tests).
func (m *Monitor) WithNoticeDuration(d time.Duration) *Monitor {
	m.noticeDuration = d
	return m
}

// Events returns the channel observations are delivered on. The
// channel is never closed; consumers stop reading after Stop.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// State returns the tracked state for a model. A model never seen
// before reports the initial phase.
func (m *Monitor) State(modelID string) model.DownloadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(modelID)
}

// Polling reports whether a poll loop is currently attached, and for
// which model.
func (m *Monitor) Polling() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poll == nil {
		return "", false
	}
	return m.poll.modelID, true
}

// Prime seeds tracked state from a freshly fetched model catalog.
// Models with an active poll loop are left alone so a live observation
// is never overwritten by stale catalog data.
func (m *Monitor) Prime(descriptors []model.ModelDescriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range descriptors {
		if m.poll != nil && m.poll.modelID == d.ID {
			continue
		}
		m.states[d.ID] = d.InitialState()
	}
}

// Start begins a download attempt for the model. When the backend
// reports the model already downloaded the phase jumps straight to
// completed and no poll loop starts. Starting while an attempt is
// active returns ErrDownloadActive.
func (m *Monitor) Start(ctx context.Context, modelID string) error {
	m.mu.Lock()
	if m.stateLocked(modelID).Phase.Active() {
		m.mu.Unlock()
		return ErrDownloadActive
	}
	m.mu.Unlock()

	already, err := m.backend.StartDownload(ctx, modelID)
	if err != nil {
		return err
	}

	if already {
		m.mu.Lock()
		m.setPhaseLocked(modelID, model.PhaseCompleted)
		m.mu.Unlock()
		return nil
	}

	m.mu.Lock()
	m.setPhaseLocked(modelID, model.PhaseDownloading)
	m.mu.Unlock()
	m.attachPoll(modelID)
	return nil
}

// Observe attaches a poll loop to a download found already in flight,
// for example after a mode or model switch while the worker is busy.
// It never contacts the backend to start anything.
func (m *Monitor) Observe(modelID string) {
	m.mu.Lock()
	st := m.stateLocked(modelID)
	attached := m.poll != nil && m.poll.modelID == modelID
	m.mu.Unlock()

	if !st.Phase.Active() || attached {
		return
	}
	m.attachPoll(modelID)
}

// Cancel requests cancellation of the model's download. The phase
// moves to cancelling and the poll loop keeps running; the terminal
// phase arrives through a later poll. A failed cancel request marks
// the attempt failed and tears the loop down.
func (m *Monitor) Cancel(ctx context.Context, modelID string) error {
	m.mu.Lock()
	if m.stateLocked(modelID).Phase != model.PhaseDownloading {
		m.mu.Unlock()
		return nil
	}
	m.setPhaseLocked(modelID, model.PhaseCancelling)
	m.mu.Unlock()

	if err := m.backend.CancelDownload(ctx, modelID); err != nil {
		m.mu.Lock()
		m.setPhaseLocked(modelID, model.PhaseFailed)
		h := m.takePollLocked()
		m.mu.Unlock()
		stopPoll(h)
		return err
	}
	return nil
}

// Detach tears down the poll loop without touching tracked state. Used
// when the observing surface goes away (model switch, mode switch,
// shutdown of the download view). The download itself keeps running on
// the worker; a later Observe re-attaches.
func (m *Monitor) Detach() {
	m.mu.Lock()
	h := m.takePollLocked()
	m.mu.Unlock()
	stopPoll(h)
}

// Stop tears down the poll loop and marks the monitor closed. Events
// emitted after Stop are dropped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.closed = true
	h := m.takePollLocked()
	m.mu.Unlock()
	stopPoll(h)
}

// =============================================================================
// POLL LOOP
// =============================================================================

// attachPoll replaces the current poll loop with one for the given
// model. The previous loop is fully stopped before the new one starts
// so two loops never run at once.
func (m *Monitor) attachPoll(modelID string) {
	m.mu.Lock()
	h := m.takePollLocked()
	m.mu.Unlock()
	stopPoll(h)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.poll != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	handle := &pollHandle{
		modelID: modelID,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.poll = handle
	go m.runPoll(ctx, handle)
}

// takePollLocked detaches the current handle for the caller to stop
// outside the lock. The loop acquires m.mu on every iteration, so
// waiting for it while holding the lock would deadlock.
func (m *Monitor) takePollLocked() *pollHandle {
	h := m.poll
	m.poll = nil
	return h
}

// stopPoll cancels a detached handle and waits for its loop to exit.
func stopPoll(h *pollHandle) {
	if h == nil {
		return
	}
	h.cancel()
	<-h.done
}

// runPoll checks progress at the poll interval until the phase turns
// terminal or the loop is cancelled.
func (m *Monitor) runPoll(ctx context.Context, handle *pollHandle) {
	defer close(handle.done)

	limiter := rate.NewLimiter(rate.Every(m.pollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if !m.pollOnce(ctx, handle) {
			return
		}
	}
}

// pollOnce performs one progress check. It returns false when the loop
// must stop. A loop that has been detached while blocked on the check
// discards its result instead of mutating state it no longer owns.
func (m *Monitor) pollOnce(ctx context.Context, handle *pollHandle) bool {
	status, err := m.backend.CheckDownload(ctx, handle.modelID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil || m.poll != handle {
		return false
	}

	if err != nil {
		m.setPhaseLocked(handle.modelID, model.PhaseFailed)
		m.poll = nil
		return false
	}

	next := model.PhaseFromStatus(status.Status, status.Downloaded)

	st := m.stateLocked(handle.modelID)
	st.DownloadedBytes = status.DownloadedBytes
	if status.TotalBytes > 0 {
		st.TotalBytes = status.TotalBytes
	}
	if st.Phase.CanTransition(next) {
		st.Phase = next
	}
	m.states[handle.modelID] = st
	m.emitLocked(Event{Kind: EventStateChanged, State: st})

	if st.Phase.Terminal() {
		m.poll = nil
		if st.Phase == model.PhaseCompleted {
			m.scheduleNoticeLocked(st)
		}
		return false
	}
	return true
}

// scheduleNoticeLocked arms the takedown timer for the transient
// finished notice.
func (m *Monitor) scheduleNoticeLocked(st model.DownloadState) {
	time.AfterFunc(m.noticeDuration, func() {
		m.mu.Lock()
		m.emitLocked(Event{Kind: EventNoticeExpired, State: st})
		m.mu.Unlock()
	})
}

// =============================================================================
// INTERNALS
// =============================================================================

// stateLocked returns the tracked state, defaulting to the initial
// phase. Callers hold m.mu.
func (m *Monitor) stateLocked(modelID string) model.DownloadState {
	if st, ok := m.states[modelID]; ok {
		return st
	}
	return model.DownloadState{ModelID: modelID, Phase: model.PhaseNotDownloaded}
}

// setPhaseLocked applies a validated phase change and emits the
// resulting state. Invalid transitions are ignored. Callers hold m.mu.
func (m *Monitor) setPhaseLocked(modelID string, next model.Phase) {
	st := m.stateLocked(modelID)
	if !st.Phase.CanTransition(next) {
		return
	}
	changed := st.Phase != next
	st.Phase = next
	m.states[modelID] = st
	if changed {
		m.emitLocked(Event{Kind: EventStateChanged, State: st})
	}
}

// emitLocked delivers an event without blocking. A full channel drops
// the event; the consumer recovers on the next state read. Callers
// hold m.mu.
func (m *Monitor) emitLocked(ev Event) {
	if m.closed {
		return
	}
	select {
	case m.events <- ev:
	default:
	}
}
