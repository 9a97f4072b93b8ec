// Package portal runs the prospect-facing scheduling page: one View per
// connected browser, composing the initial session fetch, the booking
// reconciliation machine, the manual fallback control, and the NDA gate.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/baxterlabs/pipeline-platform/internal/ndagate"
	"github.com/baxterlabs/pipeline-platform/internal/observability/metrics"
	"github.com/baxterlabs/pipeline-platform/internal/reconcile"
	"github.com/baxterlabs/pipeline-platform/internal/schedule"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// SessionAPI is the slice of the pipeline service the portal consumes.
// *schedule.Client implements it.
type SessionAPI interface {
	GetSession(ctx context.Context, token string) (*schedule.Session, error)
	RequestNDA(ctx context.Context, token string) (*schedule.NDAReceipt, error)
}

// Update is pushed to the browser whenever anything renderable changes.
type Update struct {
	Type            string            `json:"type"` // "state", "error", "pong"
	Phase           reconcile.Phase   `json:"phase,omitempty"`
	Attempt         int               `json:"attempt,omitempty"`
	FallbackVisible bool              `json:"fallback_visible,omitempty"`
	NDA             *ndagate.View     `json:"nda,omitempty"`
	Session         *schedule.Session `json:"session,omitempty"`
	WidgetURL       string            `json:"widget_url,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// View is the server-side controller for one page view. Lifecycle matches the
// transport connection; Close tears down every pending timer.
type View struct {
	api     SessionAPI
	token   string
	logger  *logging.Logger
	metrics *metrics.PortalMetrics
	send    func(Update)

	delays        []time.Duration
	fallbackDelay time.Duration

	machine  *reconcile.Machine
	fallback *reconcile.Fallback
	gate     *ndagate.Gate

	mu       sync.Mutex
	snapshot *schedule.Session
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithReconcileDelays overrides the machine's poll schedule.
func WithReconcileDelays(delays []time.Duration) ViewOption {
	return func(v *View) {
		if len(delays) > 0 {
			v.delays = delays
		}
	}
}

// WithFallbackDelay overrides the manual-control reveal delay.
func WithFallbackDelay(d time.Duration) ViewOption {
	return func(v *View) {
		if d > 0 {
			v.fallbackDelay = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ViewOption {
	return func(v *View) {
		v.logger = logger
	}
}

// WithMetrics attaches portal metrics.
func WithMetrics(pm *metrics.PortalMetrics) ViewOption {
	return func(v *View) {
		v.metrics = pm
	}
}

// NewView creates the controller for one token. send receives every outbound
// update; it must not block.
func NewView(api SessionAPI, token string, send func(Update), opts ...ViewOption) *View {
	v := &View{
		api:           api,
		token:         token,
		logger:        logging.Default(),
		send:          send,
		delays:        reconcile.DefaultDelays,
		fallbackDelay: reconcile.DefaultFallbackDelay,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Open performs the initial fetch and starts the machine and fallback timer.
// A missing session is fatal to the whole flow; everything after this point
// recovers locally.
func (v *View) Open(ctx context.Context) error {
	initial, err := v.api.GetSession(ctx, v.token)
	if err != nil {
		if errors.Is(err, schedule.ErrSessionNotFound) {
			return schedule.ErrSessionNotFound
		}
		return err
	}

	v.mu.Lock()
	v.snapshot = initial
	v.mu.Unlock()

	v.gate = ndagate.NewGate(v.api, v.token,
		ndagate.WithLogger(v.logger),
		ndagate.WithMetrics(v.metrics),
	)
	v.machine = reconcile.NewMachine(v.api, v.token,
		reconcile.WithDelays(v.delays),
		reconcile.WithLogger(v.logger),
		reconcile.WithMetrics(v.metrics),
		reconcile.WithListener(v.onMachineChange),
	)
	v.fallback = reconcile.NewFallback(v.pushState,
		reconcile.WithFallbackDelay(v.fallbackDelay),
		reconcile.WithFallbackLogger(v.logger),
		reconcile.WithFallbackMetrics(v.metrics),
	)

	v.machine.Start(initial)
	if !v.machine.State().Phase.Terminal() {
		v.fallback.Start()
	}
	return nil
}

// HandleWidgetMessage processes one relayed postMessage payload.
func (v *View) HandleWidgetMessage(raw json.RawMessage) {
	signal, ok := ParseWidgetSignal(raw)
	if !ok {
		v.metrics.ObserveWidgetSignal("ignored")
		return
	}
	v.metrics.ObserveWidgetSignal("accepted")
	switch signal {
	case SignalScheduled:
		v.machine.Trigger(reconcile.TriggerWidgetSignal)
	case SignalLoaded:
		v.fallback.WidgetLoaded()
		v.pushState()
	}
}

// ConfirmBooked handles the manual "I've booked" action.
func (v *View) ConfirmBooked() {
	v.machine.Trigger(reconcile.TriggerManualConfirm)
}

// RequestNDA handles the explicit NDA action. The gate is reachable only once
// the booking question is settled; anything a client sends earlier is dropped.
// Gate errors are pushed inline; only unexpected transport failures propagate.
func (v *View) RequestNDA(ctx context.Context) {
	if !v.machine.State().Phase.Terminal() {
		v.logger.Warn("nda request before terminal phase dropped", "token", v.token)
		v.pushState()
		return
	}

	v.mu.Lock()
	snapshot := v.snapshot
	v.mu.Unlock()

	v.pushState() // show the disabled/sending control promptly
	_ = v.gate.Request(ctx, snapshot)
	v.pushState()
}

// State assembles the full renderable update.
func (v *View) State() Update {
	ms := v.machine.State()

	v.mu.Lock()
	if ms.Snapshot != nil {
		v.snapshot = ms.Snapshot
	}
	snapshot := v.snapshot
	v.mu.Unlock()

	nda := v.gate.ViewFor(snapshot)
	return Update{
		Type:            "state",
		Phase:           ms.Phase,
		Attempt:         ms.Attempt,
		FallbackVisible: v.fallback.Visible(),
		NDA:             &nda,
		Session:         snapshot,
		WidgetURL:       snapshot.WidgetEmbedURL(),
	}
}

// Close cancels pending timers. Safe after a failed Open.
func (v *View) Close() {
	if v.machine != nil {
		v.machine.Close()
	}
	if v.fallback != nil {
		v.fallback.Cancel()
	}
}

func (v *View) onMachineChange(s reconcile.State) {
	if s.Phase != reconcile.PhaseAwaitingBooking && v.fallback != nil {
		v.fallback.Cancel()
	}
	v.pushState()
}

func (v *View) pushState() {
	if v.send == nil {
		return
	}
	v.send(v.State())
}
