package domain

// SessionState models the push-to-talk lifecycle.
type SessionState string

const (
	SessionStateIdle         SessionState = "idle"
	SessionStateRecording    SessionState = "recording"
	SessionStateLocked       SessionState = "locked"
	SessionStateTranscribing SessionState = "transcribing"
	SessionStateError        SessionState = "error"
)

// CaptureMode distinguishes plain dictation from assistant input.
type CaptureMode string

const (
	CaptureModeDictation CaptureMode = "dictation"
	CaptureModeAssistant CaptureMode = "assistant"
)

// LockMode records whether the session requires the trigger key to stay held.
type LockMode string

const (
	LockModeMomentary LockMode = "momentary"
	LockModeToggled   LockMode = "toggle-locked"
)

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeDevice        ErrorCode = "device"
	ErrorCodeCaptureStop   ErrorCode = "capture_stop"
	ErrorCodeEmptyAudio    ErrorCode = "empty_audio"
	ErrorCodeTranscription ErrorCode = "transcription"
	ErrorCodeNormalize     ErrorCode = "normalize"
	ErrorCodeInsertion     ErrorCode = "insertion"
)

// AudioFrame is one chunk of 16 kHz mono signed 16-bit PCM plus its RMS level.
// Frames are immutable once emitted.
type AudioFrame struct {
	Samples []int16
	RMS     float64
}

// TranscriptionResult is the final outcome of one recording session.
type TranscriptionResult struct {
	Text         string      `json:"text"`
	OriginalText string      `json:"originalText,omitempty"`
	Provider     string      `json:"provider"`
	Mode         CaptureMode `json:"mode"`
	ASRTimeMS    int64       `json:"asrTimeMs"`
	TotalTimeMS  int64       `json:"totalTimeMs"`
}

// Status summarizes the current runtime status.
type Status struct {
	State     SessionState `json:"state"`
	Active    bool         `json:"active"`
	SessionID string       `json:"sessionId,omitempty"`
	Mode      CaptureMode  `json:"mode,omitempty"`
	Lock      LockMode     `json:"lock,omitempty"`
	Message   string       `json:"message,omitempty"`
}
