package reconcile

import (
	"sync"
	"time"

	"github.com/baxterlabs/pipeline-platform/internal/observability/metrics"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

// DefaultFallbackDelay is how long after mount the manual "I've booked"
// control is revealed when the widget never signals.
const DefaultFallbackDelay = 30 * time.Second

// Fallback reveals the manual confirmation control so the user always has a
// way out of AwaitingBooking. It reveals on the earlier of the delay elapsing
// or the widget reporting that its surface loaded; once revealed it stays
// revealed. Cancel drops a pending reveal but never hides the control.
type Fallback struct {
	delay    time.Duration
	onReveal func()
	logger   *logging.Logger
	metrics  *metrics.PortalMetrics

	mu        sync.Mutex
	visible   bool
	cancelled bool
	timer     *time.Timer
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// WithFallbackDelay overrides the reveal delay.
func WithFallbackDelay(d time.Duration) FallbackOption {
	return func(f *Fallback) {
		if d > 0 {
			f.delay = d
		}
	}
}

// WithFallbackLogger sets a custom logger.
func WithFallbackLogger(logger *logging.Logger) FallbackOption {
	return func(f *Fallback) {
		f.logger = logger
	}
}

// WithFallbackMetrics attaches portal metrics.
func WithFallbackMetrics(pm *metrics.PortalMetrics) FallbackOption {
	return func(f *Fallback) {
		f.metrics = pm
	}
}

// NewFallback creates the affordance timer. onReveal fires exactly once, on
// the goroutine of whichever event reveals the control.
func NewFallback(onReveal func(), opts ...FallbackOption) *Fallback {
	f := &Fallback{
		delay:    DefaultFallbackDelay,
		onReveal: onReveal,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start arms the reveal timer. Call once on mount.
func (f *Fallback) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.visible || f.cancelled || f.timer != nil {
		return
	}
	f.timer = time.AfterFunc(f.delay, func() {
		f.reveal("timer")
	})
}

// WidgetLoaded reveals the control as soon as the widget surface reports it
// rendered. A widget that renders but never posts its scheduled event is the
// case the manual path exists for.
func (f *Fallback) WidgetLoaded() {
	f.reveal("widget_loaded")
}

// Cancel drops the pending reveal. Called when the machine leaves
// AwaitingBooking by any other path, so a stray reveal cannot fire after
// confirmation. An already visible control stays visible.
func (f *Fallback) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

// Visible reports whether the manual control has been revealed.
func (f *Fallback) Visible() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible
}

func (f *Fallback) reveal(reason string) {
	f.mu.Lock()
	if f.visible || f.cancelled {
		f.mu.Unlock()
		return
	}
	f.visible = true
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.mu.Unlock()

	f.metrics.ObserveFallbackReveal()
	f.logger.Info("manual booked control revealed", "reason", reason)
	if f.onReveal != nil {
		f.onReveal()
	}
}
