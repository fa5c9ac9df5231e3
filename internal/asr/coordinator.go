package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Policy selects how the coordinator schedules provider attempts.
type Policy string

const (
	PolicyRace     Policy = "race"
	PolicyFallback Policy = "fallback"
)

// Attempt is one candidate transcription path. Run must honor ctx cancellation
// and return the transcript text on success. MaxRetries applies only to
// network/timeout failures; realtime stream attempts set it to zero because
// the connection already carried the session's audio.
type Attempt struct {
	Provider   string
	Run        func(ctx context.Context) (string, error)
	MaxRetries int
}

// Outcome is the winning result of a coordinator run.
type Outcome struct {
	Text     string
	Provider string
	Elapsed  time.Duration
}

// AggregateError reports that every configured provider failed, carrying the
// last error observed per provider.
type AggregateError struct {
	Errors map[string]error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "no transcription providers configured"
	}
	providers := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	parts := make([]string, 0, len(providers))
	for _, name := range providers {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Errors[name]))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Coordinator runs provider attempts under a race or fallback policy.
type Coordinator struct {
	policy     Policy
	timeout    time.Duration
	retryPause time.Duration
	logger     *slog.Logger
}

func NewCoordinator(policy Policy, timeout time.Duration, retryPause time.Duration, logger *slog.Logger) *Coordinator {
	if policy != PolicyRace && policy != PolicyFallback {
		policy = PolicyFallback
	}
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	if retryPause < 0 {
		retryPause = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{policy: policy, timeout: timeout, retryPause: retryPause, logger: logger}
}

// Run executes the attempts per policy and returns the first success. Attempts
// are ordered by priority; under race policy the lower index wins a same-tick
// tie. If every attempt fails the returned error is an *AggregateError.
func (c *Coordinator) Run(ctx context.Context, attempts []Attempt) (Outcome, error) {
	if len(attempts) == 0 {
		return Outcome{}, &AggregateError{}
	}

	started := time.Now()
	var outcome Outcome
	var err error
	if c.policy == PolicyRace && len(attempts) > 1 {
		outcome, err = c.runRace(ctx, attempts)
	} else {
		outcome, err = c.runFallback(ctx, attempts)
	}
	if err != nil {
		return Outcome{}, err
	}
	outcome.Elapsed = time.Since(started)
	return outcome, nil
}

func (c *Coordinator) runFallback(ctx context.Context, attempts []Attempt) (Outcome, error) {
	failures := make(map[string]error, len(attempts))
	for _, attempt := range attempts {
		text, err := c.runWithRetry(ctx, attempt)
		if err == nil {
			return Outcome{Text: text, Provider: attempt.Provider}, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return Outcome{}, err
		}
		failures[attempt.Provider] = err
		c.logger.Warn("provider attempt failed",
			"provider", attempt.Provider, "error", err)
	}
	return Outcome{}, &AggregateError{Errors: failures}
}

type raceResult struct {
	index int
	text  string
	err   error
}

func (c *Coordinator) runRace(ctx context.Context, attempts []Attempt) (Outcome, error) {
	raceCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	results := make(chan raceResult, len(attempts))
	cancels := make([]context.CancelFunc, len(attempts))
	for i, attempt := range attempts {
		attemptCtx, cancel := context.WithCancel(raceCtx)
		cancels[i] = cancel
		go func(index int, attempt Attempt) {
			text, err := c.runWithRetry(attemptCtx, attempt)
			results <- raceResult{index: index, text: text, err: err}
		}(i, attempt)
	}

	failures := make(map[string]error, len(attempts))
	remaining := len(attempts)
	for remaining > 0 {
		result := <-results
		remaining--
		if result.err != nil {
			if errors.Is(result.err, context.Canceled) && ctx.Err() != nil {
				return Outcome{}, result.err
			}
			failures[attempts[result.index].Provider] = result.err
			continue
		}

		winner := result
		// A slower attempt may have completed in the same tick; the
		// higher-priority provider still wins.
		for drained := true; drained && remaining > 0; {
			select {
			case extra := <-results:
				remaining--
				if extra.err != nil {
					failures[attempts[extra.index].Provider] = extra.err
				} else if extra.index < winner.index {
					winner = extra
				}
			default:
				drained = false
			}
		}

		for i, cancel := range cancels {
			if i != winner.index {
				cancel()
			}
		}
		return Outcome{Text: winner.text, Provider: attempts[winner.index].Provider}, nil
	}
	return Outcome{}, &AggregateError{Errors: failures}
}

func (c *Coordinator) runWithRetry(ctx context.Context, attempt Attempt) (string, error) {
	var lastErr error
	for try := 0; try <= attempt.MaxRetries; try++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if try > 0 && c.retryPause > 0 {
			timer := time.NewTimer(c.retryPause)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		text, err := attempt.Run(attemptCtx)
		cancel()
		if err == nil {
			return text, nil
		}

		lastErr = Classify(attempt.Provider, err)
		if !Retryable(lastErr) {
			return "", lastErr
		}
		c.logger.Debug("retrying provider attempt",
			"provider", attempt.Provider, "try", try+1, "error", lastErr)
	}
	return "", lastErr
}
