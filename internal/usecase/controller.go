package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ZyphrZero/push-2-talk/internal/asr"
	"github.com/ZyphrZero/push-2-talk/internal/audio"
	"github.com/ZyphrZero/push-2-talk/internal/domain"
	"github.com/ZyphrZero/push-2-talk/internal/ports"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrSessionActive   = errors.New("a recording session is already active")
	ErrInvalidState    = errors.New("operation not valid in the current state")
)

// Provider pairs one configured provider with the transport it uses. Exactly
// one of Streaming or Batch is set; the slice order is the priority order.
type Provider struct {
	Name      string
	Streaming ports.StreamingTranscriber
	Batch     ports.BatchTranscriber
}

// Config controls session behavior.
type Config struct {
	Audio       ports.AudioConfig
	LockTimeout time.Duration
	RetryBudget int
}

// SessionController owns the push-to-talk lifecycle: Idle, Recording, Locked,
// Transcribing. At most one session is active at a time.
type SessionController struct {
	capture    ports.AudioCapture
	providers  []Provider
	coord      *asr.Coordinator
	normalizer ports.TextNormalizer
	inserter   ports.TextInserter
	events     ports.EventSink
	logger     *slog.Logger
	cfg        Config

	mu       sync.Mutex
	current  *activeSession
	starting bool
}

func NewSessionController(
	capture ports.AudioCapture,
	providers []Provider,
	coord *asr.Coordinator,
	normalizer ports.TextNormalizer,
	inserter ports.TextInserter,
	events ports.EventSink,
	logger *slog.Logger,
	cfg Config,
) *SessionController {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = time.Minute
	}
	if cfg.RetryBudget < 0 {
		cfg.RetryBudget = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionController{
		capture:    capture,
		providers:  providers,
		coord:      coord,
		normalizer: normalizer,
		inserter:   inserter,
		events:     events,
		logger:     logger,
		cfg:        cfg,
	}
}

// StartCapture begins a new recording session. A press while any session is
// active is rejected with ErrSessionActive.
func (c *SessionController) StartCapture(ctx context.Context, mode domain.CaptureMode) error {
	// The slot is reserved before the device is touched: at most one capture
	// stream may ever be open process-wide.
	c.mu.Lock()
	if c.current != nil || c.starting {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	sessionCtx, cancel := context.WithCancel(ctx)
	captureSession, err := c.capture.Start(sessionCtx, c.cfg.Audio)
	if err != nil {
		cancel()
		c.events.SessionError(domain.ErrorCodeDevice, err.Error())
		return err
	}

	active := &activeSession{
		id:        uuid.NewString(),
		mode:      mode,
		startedAt: time.Now(),
		cancel:    cancel,
		capture:   captureSession,
		state:     domain.SessionStateRecording,
		lock:      domain.LockModeMomentary,
		pumpDone:  make(chan struct{}),
	}

	for _, provider := range c.providers {
		if provider.Streaming == nil {
			continue
		}
		stream, err := provider.Streaming.OpenStream(sessionCtx)
		if err != nil {
			c.logger.Warn("realtime stream unavailable, relying on batch fallback",
				"provider", provider.Name, "error", err)
			continue
		}
		active.streams = append(active.streams, &openStream{name: provider.Name, session: stream})
	}

	c.mu.Lock()
	c.current = active
	c.mu.Unlock()

	go c.pumpFrames(active)
	c.events.RecordingStarted(active.id, active.mode)
	return nil
}

// pumpFrames is the sole consumer of the capture channel: it mirrors every
// frame into the session buffer, fans it out to open realtime streams, and
// reports the display level.
func (c *SessionController) pumpFrames(active *activeSession) {
	defer close(active.pumpDone)

	for frame := range active.capture.Frames() {
		c.events.AudioLevel(audio.DisplayLevel(frame.RMS))
		active.appendSamples(frame.Samples)

		for _, stream := range active.streams {
			if stream.isFailed() {
				continue
			}
			if err := stream.session.SendAudio(frame.Samples); err != nil {
				stream.markFailed()
				c.logger.Warn("realtime stream dropped mid-session",
					"provider", stream.name, "error", err)
			}
		}
	}
}

// LockRecording promotes a momentary Recording session to Locked so capture
// continues without the key held. The lock timeout auto-cancels a session
// that is never finished.
func (c *SessionController) LockRecording() error {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil {
		return ErrNoActiveSession
	}
	if active.getState() != domain.SessionStateRecording {
		return ErrInvalidState
	}

	active.setState(domain.SessionStateLocked)
	active.setLock(domain.LockModeToggled)
	sessionID := active.id
	active.setLockTimer(time.AfterFunc(c.cfg.LockTimeout, func() {
		c.autoCancelLocked(sessionID)
	}))

	c.events.RecordingLocked(active.id)
	return nil
}

func (c *SessionController) autoCancelLocked(sessionID string) {
	c.mu.Lock()
	active := c.current
	if active == nil || active.id != sessionID || active.getState() != domain.SessionStateLocked {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()

	c.logger.Info("locked session timed out", "session", sessionID)
	c.teardown(active)
	c.events.TranscriptionCancelled(sessionID)
}

// StopAndTranscribe ends a Recording session and resolves its transcript.
func (c *SessionController) StopAndTranscribe(ctx context.Context) (domain.TranscriptionResult, error) {
	return c.finish(ctx, domain.SessionStateRecording)
}

// FinishLockedRecording ends a Locked session and resolves its transcript.
func (c *SessionController) FinishLockedRecording(ctx context.Context) (domain.TranscriptionResult, error) {
	return c.finish(ctx, domain.SessionStateLocked)
}

func (c *SessionController) finish(ctx context.Context, fromState domain.SessionState) (domain.TranscriptionResult, error) {
	c.mu.Lock()
	active := c.current
	if active == nil {
		c.mu.Unlock()
		return domain.TranscriptionResult{}, ErrNoActiveSession
	}
	if active.getState() != fromState {
		c.mu.Unlock()
		return domain.TranscriptionResult{}, ErrInvalidState
	}
	active.setState(domain.SessionStateTranscribing)
	c.mu.Unlock()

	active.stopLockTimer()
	if err := active.capture.Stop(); err != nil {
		c.events.SessionError(domain.ErrorCodeCaptureStop, err.Error())
	}
	<-active.pumpDone
	c.events.RecordingStopped(active.id)
	c.events.Transcribing(active.id)

	samples := audio.TrimSilence(active.snapshotBuffer())
	if err := audio.Validate(samples); err != nil {
		c.release(active)
		c.closeStreams(active)
		active.cancel()
		c.events.SessionError(domain.ErrorCodeEmptyAudio, err.Error())
		return domain.TranscriptionResult{}, err
	}

	transcribeCtx, transcribeCancel := context.WithCancel(ctx)
	defer transcribeCancel()
	active.setTranscribeCancel(transcribeCancel)

	attempts := c.buildAttempts(active, samples)
	asrStart := time.Now()
	outcome, err := c.coord.Run(transcribeCtx, attempts)
	asrTime := time.Since(asrStart)

	c.closeStreams(active)
	active.cancel()

	// The result slot is committed only by the session that is still
	// current; a cancelled or superseded session's late result is dropped.
	if !c.release(active) {
		return domain.TranscriptionResult{}, ErrNoActiveSession
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.events.TranscriptionCancelled(active.id)
			return domain.TranscriptionResult{}, err
		}
		c.events.SessionError(domain.ErrorCodeTranscription, err.Error())
		return domain.TranscriptionResult{}, err
	}

	raw := outcome.Text
	text := raw
	if c.normalizer != nil {
		normalized, normErr := c.normalizer.Apply(raw)
		if normErr != nil {
			c.events.SessionError(domain.ErrorCodeNormalize, normErr.Error())
		} else {
			text = normalized
		}
	}

	result := domain.TranscriptionResult{
		Text:        text,
		Provider:    outcome.Provider,
		Mode:        active.mode,
		ASRTimeMS:   asrTime.Milliseconds(),
		TotalTimeMS: time.Since(active.startedAt).Milliseconds(),
	}
	if text != raw {
		result.OriginalText = raw
	}

	if c.inserter != nil {
		if err := c.inserter.Insert(ctx, result.Text); err != nil {
			c.events.SessionError(domain.ErrorCodeInsertion, err.Error())
		}
	}

	c.events.TranscriptionComplete(result)
	return result, nil
}

// buildAttempts assembles coordinator attempts in provider priority order.
// Open realtime streams already carry the session audio, so their attempt is
// the stream finish; everything else gets the batch upload with retries.
func (c *SessionController) buildAttempts(active *activeSession, samples []int16) []asr.Attempt {
	streamsByName := make(map[string]*openStream, len(active.streams))
	for _, stream := range active.streams {
		streamsByName[stream.name] = stream
	}

	var wav []byte
	attempts := make([]asr.Attempt, 0, len(c.providers))
	for _, provider := range c.providers {
		if stream, ok := streamsByName[provider.Name]; ok && !stream.isFailed() {
			session := stream.session
			attempts = append(attempts, asr.Attempt{
				Provider: provider.Name,
				Run: func(ctx context.Context) (string, error) {
					return session.Finish(ctx)
				},
			})
			continue
		}
		if provider.Batch == nil {
			continue
		}
		if wav == nil {
			wav = audio.EncodeWAV(samples)
		}
		batch := provider.Batch
		attempts = append(attempts, asr.Attempt{
			Provider:   provider.Name,
			MaxRetries: c.cfg.RetryBudget,
			Run: func(ctx context.Context) (string, error) {
				return batch.Transcribe(ctx, wav)
			},
		})
	}
	return attempts
}

// CancelLockedRecording discards a Locked session without transcription.
func (c *SessionController) CancelLockedRecording() error {
	c.mu.Lock()
	active := c.current
	if active == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	if active.getState() != domain.SessionStateLocked {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.current = nil
	c.mu.Unlock()

	c.teardown(active)
	c.events.TranscriptionCancelled(active.id)
	return nil
}

// CancelTranscription aborts an in-flight transcription. The finishing call
// observes the cancellation and emits transcription_cancelled.
func (c *SessionController) CancelTranscription() error {
	c.mu.Lock()
	active := c.current
	c.mu.Unlock()
	if active == nil || active.getState() != domain.SessionStateTranscribing {
		return ErrNoActiveSession
	}
	if !active.cancelTranscription() {
		return ErrInvalidState
	}
	return nil
}

// ForceAbort tears down whatever session is active and returns to Idle. Used
// by the ghost-key watchdog when a press never saw its release.
func (c *SessionController) ForceAbort() {
	c.mu.Lock()
	active := c.current
	c.current = nil
	c.mu.Unlock()
	if active == nil {
		return
	}

	if active.getState() == domain.SessionStateTranscribing {
		// The finishing goroutine owns teardown; it drops its result once
		// it sees the session is no longer current.
		active.cancelTranscription()
		c.events.TranscriptionCancelled(active.id)
		return
	}

	c.logger.Warn("forcing session abort", "session", active.id)
	c.teardown(active)
	c.events.TranscriptionCancelled(active.id)
}

// Status returns the current session status.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return domain.Status{
		State:     c.current.getState(),
		Active:    true,
		SessionID: c.current.id,
		Mode:      c.current.mode,
		Lock:      c.current.getLock(),
	}
}

// release clears the current pointer if active still owns it; reports whether
// this session was still current.
func (c *SessionController) release(active *activeSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != active {
		return false
	}
	c.current = nil
	return true
}

func (c *SessionController) teardown(active *activeSession) {
	active.stopLockTimer()
	if err := active.capture.Stop(); err != nil {
		c.logger.Warn("capture stop failed during teardown", "error", err)
	}
	<-active.pumpDone
	c.closeStreams(active)
	active.cancel()
}

func (c *SessionController) closeStreams(active *activeSession) {
	for _, stream := range active.streams {
		if err := stream.session.Close(); err != nil {
			c.logger.Debug("stream close reported error", "provider", stream.name, "error", err)
		}
	}
}
