// Package reconcile drives the client-side belief about whether a discovery
// call is booked. The backend record is authoritative but lags behind the
// embedded widget's in-browser signal, so a trigger starts a bounded poll
// sequence against the pipeline service and, failing that, falls back to an
// optimistic terminal state.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/baxterlabs/pipeline-platform/internal/observability/metrics"
	"github.com/baxterlabs/pipeline-platform/internal/schedule"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// Phase is the machine's belief about the booking.
type Phase string

const (
	// PhaseAwaitingBooking is the initial phase: no booking on record, no
	// trigger seen yet.
	PhaseAwaitingBooking Phase = "awaiting_booking"
	// PhaseReconciling means a trigger arrived and the bounded re-fetch
	// sequence is running.
	PhaseReconciling Phase = "reconciling"
	// PhaseConfirmed means the backend record shows a booking time.
	PhaseConfirmed Phase = "confirmed"
	// PhaseSelfReported means the poll budget ran out without the backend
	// catching up; the user's own signal is treated as sufficient. Renders
	// identically to PhaseConfirmed but stays distinguishable for telemetry.
	PhaseSelfReported Phase = "self_reported"
)

// Terminal reports whether the machine will accept no further triggers.
func (p Phase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseSelfReported
}

// Trigger identifies which input channel moved the machine out of
// AwaitingBooking.
type Trigger string

const (
	// TriggerWidgetSignal is the embedded widget's "scheduled" postMessage.
	TriggerWidgetSignal Trigger = "widget_signal"
	// TriggerManualConfirm is the user's explicit "I've booked" action.
	TriggerManualConfirm Trigger = "manual_confirm"
	// TriggerInitialAlreadyBooked applies when the initial fetch already
	// carries a booking time; the machine confirms without reconciling.
	TriggerInitialAlreadyBooked Trigger = "initial_already_booked"
)

// SessionFetcher reads the authoritative session snapshot.
type SessionFetcher interface {
	GetSession(ctx context.Context, token string) (*schedule.Session, error)
}

// State is a copy of the machine's externally visible state.
type State struct {
	Phase    Phase
	Attempt  int
	Snapshot *schedule.Session
}

// DefaultDelays is the poll schedule measured from the triggering event.
var DefaultDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// Machine reconciles the client-side booking belief against the backend.
// One machine serves one page view; Close must be called on teardown.
type Machine struct {
	fetcher  SessionFetcher
	token    string
	delays   []time.Duration
	logger   *logging.Logger
	metrics  *metrics.PortalMetrics
	onChange func(State)

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	phase     Phase
	attempt   int
	snapshot  *schedule.Session
	gen       int
	cancelSeq context.CancelFunc
}

// Option configures a Machine.
type Option func(*Machine)

// WithDelays overrides the poll schedule. Tests use millisecond delays.
func WithDelays(delays []time.Duration) Option {
	return func(m *Machine) {
		if len(delays) > 0 {
			m.delays = delays
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithMetrics attaches portal metrics.
func WithMetrics(pm *metrics.PortalMetrics) Option {
	return func(m *Machine) {
		m.metrics = pm
	}
}

// WithListener registers a callback invoked after every state change. The
// callback receives a copy and must not block.
func WithListener(fn func(State)) Option {
	return func(m *Machine) {
		m.onChange = fn
	}
}

// NewMachine creates a machine for one scheduling session.
func NewMachine(fetcher SessionFetcher, token string, opts ...Option) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		fetcher: fetcher,
		token:   token,
		delays:  DefaultDelays,
		logger:  logging.Default(),
		ctx:     ctx,
		cancel:  cancel,
		phase:   PhaseAwaitingBooking,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start seeds the machine from the initial fetch. A snapshot that already
// carries a booking time confirms directly with zero polls.
func (m *Machine) Start(initial *schedule.Session) {
	m.mu.Lock()
	m.snapshot = initial
	if initial.Booked() {
		m.phase = PhaseConfirmed
		m.mu.Unlock()
		m.metrics.ObserveConfirmed("backend")
		m.logger.Info("booking already confirmed on load",
			"trigger", TriggerInitialAlreadyBooked,
		)
		m.notify()
		return
	}
	m.mu.Unlock()
	m.notify()
}

// Trigger starts (or restarts) the reconciliation sequence. A trigger while
// Reconciling resets the attempt counter and replaces the running sequence;
// triggers after a terminal phase are ignored.
func (m *Machine) Trigger(trig Trigger) {
	m.mu.Lock()
	if m.phase.Terminal() {
		m.mu.Unlock()
		return
	}
	if m.cancelSeq != nil {
		m.cancelSeq()
	}
	m.gen++
	gen := m.gen
	m.phase = PhaseReconciling
	m.attempt = 0
	seqCtx, cancel := context.WithCancel(m.ctx)
	m.cancelSeq = cancel
	m.mu.Unlock()

	m.logger.Info("reconciliation triggered", "trigger", trig, "generation", gen)
	m.notify()

	go m.runSequence(seqCtx, gen, time.Now())
}

// runSequence polls the backend at the configured delays, all measured from
// the trigger time. It exits early on confirmation, cancellation, or when a
// newer trigger supersedes this generation.
func (m *Machine) runSequence(ctx context.Context, gen int, start time.Time) {
	for _, delay := range m.delays {
		timer := time.NewTimer(time.Until(start.Add(delay)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if m.stale(gen) {
			return
		}

		m.metrics.ObserveReconcileAttempt()
		session, err := m.fetcher.GetSession(ctx, m.token)

		m.mu.Lock()
		if gen != m.gen || m.phase != PhaseReconciling {
			m.mu.Unlock()
			return
		}
		m.attempt++
		attempt := m.attempt
		if err != nil {
			// Transient failures count against the budget and are
			// never surfaced to the user.
			m.mu.Unlock()
			m.logger.Debug("reconcile poll failed", "attempt", attempt, "error", err)
			m.notify()
			continue
		}
		m.snapshot = session
		if session.Booked() {
			m.phase = PhaseConfirmed
			m.cancelSeq = nil
			m.mu.Unlock()
			m.metrics.ObserveConfirmed("backend")
			m.logger.Info("booking confirmed by backend", "generation", gen)
			m.notify()
			return
		}
		m.mu.Unlock()
		m.notify()
	}

	m.mu.Lock()
	if gen != m.gen || m.phase != PhaseReconciling {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseSelfReported
	m.cancelSeq = nil
	m.mu.Unlock()

	m.metrics.ObserveConfirmed("self_report")
	m.logger.Info("reconciliation exhausted, proceeding on self-report", "generation", gen)
	m.notify()
}

func (m *Machine) stale(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen || m.phase != PhaseReconciling
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Phase: m.phase, Attempt: m.attempt, Snapshot: m.snapshot}
}

// Close cancels any pending poll timers. Safe to call more than once.
func (m *Machine) Close() {
	m.cancel()
}

func (m *Machine) notify() {
	if m.onChange == nil {
		return
	}
	m.onChange(m.State())
}
