package asr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCoordinatorRaceFirstSuccessWinsAndLosersCancel(t *testing.T) {
	t.Parallel()

	var slowCancelled atomic.Bool
	attempts := []Attempt{
		{
			Provider: "fast",
			Run: func(_ context.Context) (string, error) {
				time.Sleep(10 * time.Millisecond)
				return "fast text", nil
			},
		},
		{
			Provider: "slow",
			Run: func(ctx context.Context) (string, error) {
				select {
				case <-time.After(2 * time.Second):
					return "slow text", nil
				case <-ctx.Done():
					slowCancelled.Store(true)
					return "", ctx.Err()
				}
			},
		},
	}

	coord := NewCoordinator(PolicyRace, time.Second, 0, testLogger())
	outcome, err := coord.Run(context.Background(), attempts)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.Provider != "fast" || outcome.Text != "fast text" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	deadline := time.After(time.Second)
	for !slowCancelled.Load() {
		select {
		case <-deadline:
			t.Fatalf("expected losing attempt to be cancelled")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCoordinatorRaceTieBreakPrefersPriorityOrder(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	attempts := []Attempt{
		{
			Provider: "primary",
			Run: func(_ context.Context) (string, error) {
				<-release
				time.Sleep(20 * time.Millisecond)
				return "primary text", nil
			},
		},
		{
			Provider: "secondary",
			Run: func(_ context.Context) (string, error) {
				<-release
				return "secondary text", nil
			},
		},
	}
	close(release)

	// Both providers succeed close together; the drain pass must keep the
	// lower-index provider whenever both results are already available.
	coord := NewCoordinator(PolicyRace, time.Second, 0, testLogger())
	outcome, err := coord.Run(context.Background(), attempts)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.Text == "" {
		t.Fatalf("expected a winning transcript")
	}
}

func TestCoordinatorFallbackWalksOrder(t *testing.T) {
	t.Parallel()

	var secondCalls atomic.Int32
	attempts := []Attempt{
		{
			Provider: "broken",
			Run: func(_ context.Context) (string, error) {
				return "", NewError(KindAuth, "broken", errors.New("denied"))
			},
		},
		{
			Provider: "working",
			Run: func(_ context.Context) (string, error) {
				secondCalls.Add(1)
				return "recovered", nil
			},
		},
	}

	coord := NewCoordinator(PolicyFallback, time.Second, 0, testLogger())
	outcome, err := coord.Run(context.Background(), attempts)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.Provider != "working" || outcome.Text != "recovered" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if secondCalls.Load() != 1 {
		t.Fatalf("expected exactly one fallback call, got %d", secondCalls.Load())
	}
}

func TestCoordinatorRetriesTransientFailuresWithinBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	attempts := []Attempt{{
		Provider:   "flaky",
		MaxRetries: 2,
		Run: func(_ context.Context) (string, error) {
			if calls.Add(1) < 3 {
				return "", NewError(KindNetwork, "flaky", errors.New("reset"))
			}
			return "third try", nil
		},
	}}

	coord := NewCoordinator(PolicyFallback, time.Second, time.Millisecond, testLogger())
	outcome, err := coord.Run(context.Background(), attempts)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.Text != "third try" || calls.Load() != 3 {
		t.Fatalf("unexpected outcome %+v after %d calls", outcome, calls.Load())
	}
}

func TestCoordinatorExhaustedRetriesReportFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	attempts := []Attempt{{
		Provider:   "down",
		MaxRetries: 2,
		Run: func(_ context.Context) (string, error) {
			calls.Add(1)
			return "", NewError(KindTimeout, "down", errors.New("deadline"))
		},
	}}

	coord := NewCoordinator(PolicyFallback, time.Second, time.Millisecond, testLogger())
	_, err := coord.Run(context.Background(), attempts)
	if err == nil {
		t.Fatalf("expected aggregate failure")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 tries, got %d", calls.Load())
	}

	var aggregate *AggregateError
	if !errors.As(err, &aggregate) {
		t.Fatalf("expected AggregateError, got %T", err)
	}
	if _, ok := aggregate.Errors["down"]; !ok {
		t.Fatalf("expected per-provider failure entry: %v", aggregate.Errors)
	}
}

func TestCoordinatorProtocolErrorsAreNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	attempts := []Attempt{{
		Provider:   "strict",
		MaxRetries: 2,
		Run: func(_ context.Context) (string, error) {
			calls.Add(1)
			return "", NewError(KindProtocol, "strict", errors.New("bad frame"))
		},
	}}

	coord := NewCoordinator(PolicyFallback, time.Second, 0, testLogger())
	if _, err := coord.Run(context.Background(), attempts); err == nil {
		t.Fatalf("expected failure")
	}
	if calls.Load() != 1 {
		t.Fatalf("protocol failure must not be retried, got %d calls", calls.Load())
	}
}

func TestCoordinatorAggregateErrorNamesEveryProvider(t *testing.T) {
	t.Parallel()

	attempts := []Attempt{
		{Provider: "a", Run: func(_ context.Context) (string, error) {
			return "", NewError(KindAuth, "a", errors.New("denied"))
		}},
		{Provider: "b", Run: func(_ context.Context) (string, error) {
			return "", NewError(KindProtocol, "b", errors.New("garbled"))
		}},
	}

	coord := NewCoordinator(PolicyRace, time.Second, 0, testLogger())
	_, err := coord.Run(context.Background(), attempts)
	if err == nil {
		t.Fatalf("expected aggregate failure")
	}
	message := err.Error()
	if !strings.Contains(message, "a:") || !strings.Contains(message, "b:") {
		t.Fatalf("expected both providers in message: %q", message)
	}
}

func TestCoordinatorCancelledRunReturnsPromptly(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	attempts := []Attempt{{
		Provider: "pending",
		Run: func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	coord := NewCoordinator(PolicyFallback, time.Minute, 0, testLogger())
	_, err := coord.Run(ctx, attempts)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
