package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baxterlabs/pipeline-platform/internal/schedule"
	"github.com/baxterlabs/pipeline-platform/pkg/logging"
)

var testDelays = []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}

// scriptedFetcher returns canned sessions in order, repeating the last one,
// and tracks how many polls run concurrently.
type scriptedFetcher struct {
	mu        sync.Mutex
	responses []*schedule.Session
	errs      []error
	calls     int

	inFlight    int32
	maxInFlight int32
}

func (f *scriptedFetcher) GetSession(_ context.Context, _ string) (*schedule.Session, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if len(f.responses) == 0 {
		return &schedule.Session{}, nil
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func bookedSession() *schedule.Session {
	t := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &schedule.Session{CompanyName: "Acme Corp", BookingTime: &t}
}

func unbookedSession() *schedule.Session {
	return &schedule.Session{CompanyName: "Acme Corp"}
}

func waitForPhase(t *testing.T, m *Machine, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State().Phase == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s, stuck at %s", want, m.State().Phase)
}

func quietLogger() *logging.Logger {
	return logging.New("error")
}

func TestStartWithBookingConfirmsDirectly(t *testing.T) {
	fetcher := &scriptedFetcher{}
	m := NewMachine(fetcher, "tok", WithDelays(testDelays), WithLogger(quietLogger()))
	defer m.Close()

	m.Start(bookedSession())

	assert.Equal(t, PhaseConfirmed, m.State().Phase)
	// Zero reconciliation polls for a session booked on load.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestWidgetTriggerConfirmsMidSequence(t *testing.T) {
	// Backend catches up on the second poll; the third scheduled poll must
	// be abandoned.
	fetcher := &scriptedFetcher{
		responses: []*schedule.Session{unbookedSession(), bookedSession()},
	}
	m := NewMachine(fetcher, "tok", WithDelays(testDelays), WithLogger(quietLogger()))
	defer m.Close()

	m.Start(unbookedSession())
	require.Equal(t, PhaseAwaitingBooking, m.State().Phase)

	m.Trigger(TriggerWidgetSignal)
	require.Equal(t, PhaseReconciling, m.State().Phase)

	waitForPhase(t, m, PhaseConfirmed)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 2, fetcher.callCount(), "no poll after confirmation")

	state := m.State()
	require.NotNil(t, state.Snapshot)
	assert.True(t, state.Snapshot.Booked())
}

func TestDuplicateTriggersDoNotStackSequences(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []*schedule.Session{unbookedSession()}}
	m := NewMachine(fetcher, "tok", WithDelays(testDelays), WithLogger(quietLogger()))
	defer m.Close()

	m.Start(unbookedSession())

	// The widget may post its scheduled event more than once.
	m.Trigger(TriggerWidgetSignal)
	time.Sleep(15 * time.Millisecond)
	m.Trigger(TriggerWidgetSignal)
	m.Trigger(TriggerWidgetSignal)

	waitForPhase(t, m, PhaseSelfReported)

	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.maxInFlight), int32(1),
		"only one attempt-sequence may poll at a time")
	assert.Equal(t, len(testDelays), m.State().Attempt,
		"attempt counter restarts from 0 on re-trigger")
}

func TestExhaustedBudgetEndsSelfReported(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []*schedule.Session{unbookedSession()}}
	m := NewMachine(fetcher, "tok", WithDelays(testDelays), WithLogger(quietLogger()))
	defer m.Close()

	m.Start(unbookedSession())
	m.Trigger(TriggerManualConfirm)

	waitForPhase(t, m, PhaseSelfReported)
	assert.Equal(t, len(testDelays), fetcher.callCount())
	assert.True(t, m.State().Phase.Terminal())
}

func TestFetchFailuresAreAbsorbed(t *testing.T) {
	boom := errors.New("connection refused")
	fetcher := &scriptedFetcher{errs: []error{boom, boom, boom}}
	m := NewMachine(fetcher, "tok", WithDelays(testDelays), WithLogger(quietLogger()))
	defer m.Close()

	m.Start(unbookedSession())
	m.Trigger(TriggerWidgetSignal)

	// Failures count against the budget and never surface; the machine
	// still reaches the optimistic terminal state.
	waitForPhase(t, m, PhaseSelfReported)
	assert.Equal(t, 3, fetcher.callCount())
}

func TestTriggerAfterTerminalIgnored(t *testing.T) {
	fetcher := &scriptedFetcher{}
	m := NewMachine(fetcher, "tok", WithDelays(testDelays), WithLogger(quietLogger()))
	defer m.Close()

	m.Start(bookedSession())
	require.Equal(t, PhaseConfirmed, m.State().Phase)

	m.Trigger(TriggerWidgetSignal)
	assert.Equal(t, PhaseConfirmed, m.State().Phase)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestCloseCancelsPendingPolls(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []*schedule.Session{unbookedSession()}}
	m := NewMachine(fetcher, "tok", WithDelays(testDelays), WithLogger(quietLogger()))

	m.Start(unbookedSession())
	m.Trigger(TriggerWidgetSignal)
	m.Close()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, fetcher.callCount(), "no poll may fire after teardown")
}

func TestListenerSeesPhaseProgression(t *testing.T) {
	fetcher := &scriptedFetcher{responses: []*schedule.Session{bookedSession()}}

	var mu sync.Mutex
	var phases []Phase
	listener := func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	}

	m := NewMachine(fetcher, "tok",
		WithDelays([]time.Duration{5 * time.Millisecond}),
		WithLogger(quietLogger()),
		WithListener(listener),
	)
	defer m.Close()

	m.Start(unbookedSession())
	m.Trigger(TriggerWidgetSignal)
	waitForPhase(t, m, PhaseConfirmed)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, phases)
	assert.Equal(t, PhaseAwaitingBooking, phases[0])
	assert.Equal(t, PhaseConfirmed, phases[len(phases)-1])
}
