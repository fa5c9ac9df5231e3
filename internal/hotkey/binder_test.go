package hotkey

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ZyphrZero/push-2-talk/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeController struct {
	mu     sync.Mutex
	state  domain.SessionState
	lock   domain.LockMode
	calls  []string
	aborts int
}

func newFakeController() *fakeController {
	return &fakeController{state: domain.SessionStateIdle, lock: domain.LockModeMomentary}
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeController) setState(state domain.SessionState, lock domain.LockMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.lock = lock
}

func (f *fakeController) StartCapture(_ context.Context, _ domain.CaptureMode) error {
	f.record("start")
	f.setState(domain.SessionStateRecording, domain.LockModeMomentary)
	return nil
}

func (f *fakeController) StopAndTranscribe(_ context.Context) (domain.TranscriptionResult, error) {
	f.record("stop")
	f.setState(domain.SessionStateIdle, domain.LockModeMomentary)
	return domain.TranscriptionResult{}, nil
}

func (f *fakeController) LockRecording() error {
	f.record("lock")
	f.setState(domain.SessionStateLocked, domain.LockModeToggled)
	return nil
}

func (f *fakeController) FinishLockedRecording(_ context.Context) (domain.TranscriptionResult, error) {
	f.record("finish")
	f.setState(domain.SessionStateIdle, domain.LockModeMomentary)
	return domain.TranscriptionResult{}, nil
}

func (f *fakeController) ForceAbort() {
	f.mu.Lock()
	f.aborts++
	f.mu.Unlock()
	f.record("abort")
	f.setState(domain.SessionStateIdle, domain.LockModeMomentary)
}

func (f *fakeController) Status() domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.Status{
		State:  f.state,
		Active: f.state != domain.SessionStateIdle,
		Lock:   f.lock,
	}
}

func (f *fakeController) callNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeController) abortCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborts
}

func runBinder(t *testing.T, controller *fakeController, interval time.Duration) (chan<- KeyEvent, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan KeyEvent, 16)
	done := make(chan struct{})
	binder := NewBinder(controller, interval, testLogger())
	go func() {
		binder.Run(ctx, events)
		close(done)
	}()
	stop := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatalf("binder never exited")
		}
	}
	return events, stop
}

func waitForCalls(t *testing.T, controller *fakeController, want ...string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		got := controller.callNames()
		if len(got) >= len(want) {
			for i, name := range want {
				if got[i] != name {
					t.Fatalf("unexpected calls %v, want prefix %v", got, want)
				}
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("calls %v never reached %v", got, want)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBinderPressReleaseCycle(t *testing.T) {
	t.Parallel()

	controller := newFakeController()
	events, stop := runBinder(t, controller, time.Minute)
	defer stop()

	events <- KeyEvent{Role: RolePTT, Edge: EdgePress, At: time.Now()}
	waitForCalls(t, controller, "start")
	events <- KeyEvent{Role: RolePTT, Edge: EdgeRelease, At: time.Now()}
	waitForCalls(t, controller, "start", "stop")
}

func TestBinderIgnoresPressWhileActive(t *testing.T) {
	t.Parallel()

	controller := newFakeController()
	controller.setState(domain.SessionStateTranscribing, domain.LockModeMomentary)
	events, stop := runBinder(t, controller, time.Minute)
	defer stop()

	events <- KeyEvent{Role: RolePTT, Edge: EdgePress, At: time.Now()}
	events <- KeyEvent{Role: RolePTT, Edge: EdgeRelease, At: time.Now()}
	time.Sleep(50 * time.Millisecond)

	if calls := controller.callNames(); len(calls) != 0 {
		t.Fatalf("expected no transitions, got %v", calls)
	}
}

func TestBinderLockAndFinish(t *testing.T) {
	t.Parallel()

	controller := newFakeController()
	events, stop := runBinder(t, controller, time.Minute)
	defer stop()

	events <- KeyEvent{Role: RolePTT, Edge: EdgePress, At: time.Now()}
	waitForCalls(t, controller, "start")
	events <- KeyEvent{Role: RoleLock, Edge: EdgePress, At: time.Now()}
	waitForCalls(t, controller, "start", "lock")

	// Release of the held talk key must not end a locked session.
	events <- KeyEvent{Role: RolePTT, Edge: EdgeRelease, At: time.Now()}
	time.Sleep(50 * time.Millisecond)
	waitForCalls(t, controller, "start", "lock")

	events <- KeyEvent{Role: RoleLock, Edge: EdgePress, At: time.Now()}
	waitForCalls(t, controller, "start", "lock", "finish")
}

func TestBinderWatchdogAbortsGhostKey(t *testing.T) {
	t.Parallel()

	controller := newFakeController()
	events, stop := runBinder(t, controller, 20*time.Millisecond)
	defer stop()

	events <- KeyEvent{Role: RolePTT, Edge: EdgePress, At: time.Now()}
	waitForCalls(t, controller, "start")

	// No hold repeats and no release: the watchdog must step in.
	deadline := time.After(3 * time.Second)
	for controller.abortCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("watchdog never aborted the session")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestBinderHoldKeepsWatchdogQuiet(t *testing.T) {
	t.Parallel()

	controller := newFakeController()
	events, stop := runBinder(t, controller, 40*time.Millisecond)
	defer stop()

	events <- KeyEvent{Role: RolePTT, Edge: EdgePress, At: time.Now()}
	waitForCalls(t, controller, "start")

	for i := 0; i < 20; i++ {
		events <- KeyEvent{Role: RolePTT, Edge: EdgeHold, At: time.Now()}
		time.Sleep(10 * time.Millisecond)
	}
	if controller.abortCount() != 0 {
		t.Fatalf("watchdog aborted a live key hold")
	}
}

func TestBinderExitsWhenStreamCloses(t *testing.T) {
	t.Parallel()

	controller := newFakeController()
	events := make(chan KeyEvent)
	done := make(chan struct{})
	binder := NewBinder(controller, time.Minute, testLogger())
	go func() {
		binder.Run(context.Background(), events)
		close(done)
	}()

	close(events)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("binder did not exit on stream close")
	}
}

func TestNewGlobalSourceRejectsBadKeys(t *testing.T) {
	t.Parallel()

	if _, err := NewGlobalSource("not-a-key", "f9", testLogger()); err == nil {
		t.Fatalf("expected unknown key error")
	}
	if _, err := NewGlobalSource("f8", "f8", testLogger()); err == nil {
		t.Fatalf("expected duplicate key error")
	}
	if _, err := NewGlobalSource("f8", "f9", testLogger()); err != nil {
		t.Fatalf("expected valid keys to bind: %v", err)
	}
}
