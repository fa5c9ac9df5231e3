package hotkey

import (
	"context"
	"log/slog"
	"time"

	"github.com/ZyphrZero/push-2-talk/internal/domain"
)

// Controller is the slice of the session controller the binder drives.
type Controller interface {
	StartCapture(ctx context.Context, mode domain.CaptureMode) error
	StopAndTranscribe(ctx context.Context) (domain.TranscriptionResult, error)
	LockRecording() error
	FinishLockedRecording(ctx context.Context) (domain.TranscriptionResult, error)
	ForceAbort()
	Status() domain.Status
}

// Binder maps key edges onto session transitions. A watchdog force-aborts a
// momentary recording whose release edge never arrived (the key hook can lose
// the key-up when focus changes mid-press).
type Binder struct {
	controller Controller
	interval   time.Duration
	logger     *slog.Logger

	lastPTTActivity time.Time
}

func NewBinder(controller Controller, watchdogInterval time.Duration, logger *slog.Logger) *Binder {
	if watchdogInterval <= 0 {
		watchdogInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{controller: controller, interval: watchdogInterval, logger: logger}
}

// Run consumes key events until ctx is cancelled or the stream closes.
func (b *Binder) Run(ctx context.Context, events <-chan KeyEvent) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			b.handle(ctx, event)
		case <-ticker.C:
			b.checkGhostKey()
		}
	}
}

func (b *Binder) handle(ctx context.Context, event KeyEvent) {
	switch event.Role {
	case RolePTT:
		b.handlePTT(ctx, event)
	case RoleLock:
		b.handleLock(ctx, event)
	}
}

func (b *Binder) handlePTT(ctx context.Context, event KeyEvent) {
	status := b.controller.Status()
	switch event.Edge {
	case EdgePress:
		b.lastPTTActivity = event.At
		if status.State != domain.SessionStateIdle {
			return
		}
		if err := b.controller.StartCapture(ctx, domain.CaptureModeDictation); err != nil {
			b.logger.Warn("start capture failed", "error", err)
		}
	case EdgeHold:
		b.lastPTTActivity = event.At
	case EdgeRelease:
		if status.State != domain.SessionStateRecording || status.Lock != domain.LockModeMomentary {
			return
		}
		// Transcription blocks on the network; the binder keeps consuming
		// edges so the next press is not delayed.
		go func() {
			if _, err := b.controller.StopAndTranscribe(ctx); err != nil {
				b.logger.Warn("transcription failed", "error", err)
			}
		}()
	}
}

func (b *Binder) handleLock(ctx context.Context, event KeyEvent) {
	if event.Edge != EdgePress {
		return
	}
	switch b.controller.Status().State {
	case domain.SessionStateRecording:
		if err := b.controller.LockRecording(); err != nil {
			b.logger.Warn("lock failed", "error", err)
		}
	case domain.SessionStateLocked:
		go func() {
			if _, err := b.controller.FinishLockedRecording(ctx); err != nil {
				b.logger.Warn("locked transcription failed", "error", err)
			}
		}()
	}
}

// checkGhostKey aborts a momentary recording that saw neither a hold repeat
// nor a release for a full watchdog interval.
func (b *Binder) checkGhostKey() {
	status := b.controller.Status()
	if status.State != domain.SessionStateRecording || status.Lock != domain.LockModeMomentary {
		return
	}
	if time.Since(b.lastPTTActivity) < b.interval {
		return
	}
	b.logger.Warn("push-to-talk key went silent mid-recording, aborting session")
	b.controller.ForceAbort()
}
