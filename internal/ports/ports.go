package ports

import (
	"context"

	"github.com/ZyphrZero/push-2-talk/internal/domain"
)

// AudioConfig describes how the microphone should be captured. SampleFormat,
// SampleRate and Channels describe the device's native output; the capture
// engine normalizes everything to 16 kHz mono s16 before a frame is emitted.
type AudioConfig struct {
	InputFormat  string
	InputDevice  string
	SampleFormat string
	SampleRate   int
	Channels     int
}

// CaptureSession is a live capture session. Frames ends when the session is
// stopped or the device fails; a session is not restartable after Stop.
type CaptureSession interface {
	Frames() <-chan domain.AudioFrame
	Stop() error
}

// AudioCapture creates microphone capture sessions. At most one session may be
// open across the whole process.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (CaptureSession, error)
}

// StreamSession is one live realtime connection to a provider. SendAudio
// accepts 16 kHz mono s16 samples; Finish flushes the terminal packet and
// blocks until the provider returns the definite transcript.
type StreamSession interface {
	SendAudio(samples []int16) error
	Finish(ctx context.Context) (string, error)
	Close() error
}

// StreamingTranscriber opens realtime transcription streams.
type StreamingTranscriber interface {
	Name() string
	OpenStream(ctx context.Context) (StreamSession, error)
}

// BatchTranscriber transcribes a complete WAV recording in one request.
type BatchTranscriber interface {
	Name() string
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// TextNormalizer applies deterministic post-transcription fixups.
type TextNormalizer interface {
	Apply(text string) (string, error)
}

// TextInserter delivers final text to the insertion collaborator.
type TextInserter interface {
	Insert(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	RecordingStarted(sessionID string, mode domain.CaptureMode)
	RecordingLocked(sessionID string)
	AudioLevel(level float64)
	RecordingStopped(sessionID string)
	Transcribing(sessionID string)
	TranscriptionComplete(result domain.TranscriptionResult)
	TranscriptionCancelled(sessionID string)
	SessionError(code domain.ErrorCode, detail string)
}
