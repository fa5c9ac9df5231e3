package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/ZyphrZero/push-2-talk/internal/domain"
	"github.com/ZyphrZero/push-2-talk/internal/ports"
)

// openStream is one live realtime connection feeding a racing attempt.
type openStream struct {
	name    string
	session ports.StreamSession

	mu     sync.Mutex
	failed bool
}

func (s *openStream) markFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
}

func (s *openStream) isFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

type activeSession struct {
	id        string
	mode      domain.CaptureMode
	startedAt time.Time

	cancel  context.CancelFunc
	capture ports.CaptureSession
	streams []*openStream

	pumpDone chan struct{}

	stateMu sync.Mutex
	state   domain.SessionState
	lock    domain.LockMode

	bufMu  sync.Mutex
	buffer []int16

	// lockTimer is guarded by stateMu: LockRecording arms it while the
	// finishing goroutine stops it.
	lockTimer *time.Timer

	transcribeMu     sync.Mutex
	transcribeCancel context.CancelFunc
}

func (s *activeSession) setState(state domain.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeSession) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *activeSession) setLock(lock domain.LockMode) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lock = lock
}

func (s *activeSession) getLock() domain.LockMode {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lock
}

func (s *activeSession) appendSamples(samples []int16) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	s.buffer = append(s.buffer, samples...)
}

func (s *activeSession) snapshotBuffer() []int16 {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	out := make([]int16, len(s.buffer))
	copy(out, s.buffer)
	return out
}

func (s *activeSession) setTranscribeCancel(cancel context.CancelFunc) {
	s.transcribeMu.Lock()
	defer s.transcribeMu.Unlock()
	s.transcribeCancel = cancel
}

func (s *activeSession) cancelTranscription() bool {
	s.transcribeMu.Lock()
	defer s.transcribeMu.Unlock()
	if s.transcribeCancel == nil {
		return false
	}
	s.transcribeCancel()
	return true
}

func (s *activeSession) setLockTimer(timer *time.Timer) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lockTimer = timer
}

func (s *activeSession) stopLockTimer() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.lockTimer != nil {
		s.lockTimer.Stop()
		s.lockTimer = nil
	}
}
