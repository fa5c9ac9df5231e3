package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	hook "github.com/robotn/gohook"
)

// Role names which configured key an event belongs to.
type Role string

const (
	RolePTT  Role = "ptt"
	RoleLock Role = "lock"
)

// Edge is the key transition observed by the OS hook. Hold edges repeat while
// the key stays down and double as liveness for the ghost-key watchdog.
type Edge string

const (
	EdgePress   Edge = "press"
	EdgeHold    Edge = "hold"
	EdgeRelease Edge = "release"
)

// KeyEvent is one reduced keyboard event for a bound key.
type KeyEvent struct {
	Role Role
	Edge Edge
	At   time.Time
}

// GlobalSource taps the system-wide keyboard hook and reduces the raw event
// stream to the two bound keys.
type GlobalSource struct {
	pttCode  uint16
	lockCode uint16
	logger   *slog.Logger
}

func NewGlobalSource(pttKey, lockKey string, logger *slog.Logger) (*GlobalSource, error) {
	pttCode, err := lookupKeycode(pttKey)
	if err != nil {
		return nil, err
	}
	lockCode, err := lookupKeycode(lockKey)
	if err != nil {
		return nil, err
	}
	if pttCode == lockCode {
		return nil, fmt.Errorf("push-to-talk and lock keys are both %q", pttKey)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GlobalSource{pttCode: pttCode, lockCode: lockCode, logger: logger}, nil
}

func lookupKeycode(name string) (uint16, error) {
	code, ok := hook.Keycode[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown hotkey %q", name)
	}
	return code, nil
}

// Run starts the OS hook and returns the reduced event stream. The stream
// closes when ctx is cancelled.
func (s *GlobalSource) Run(ctx context.Context) <-chan KeyEvent {
	out := make(chan KeyEvent, 32)
	raw := hook.Start()

	go func() {
		<-ctx.Done()
		hook.End()
	}()

	go func() {
		defer close(out)
		for event := range raw {
			keyEvent, ok := s.translate(event)
			if !ok {
				continue
			}
			select {
			case out <- keyEvent:
			default:
				s.logger.Warn("dropping hotkey event, consumer is behind",
					"role", keyEvent.Role, "edge", keyEvent.Edge)
			}
		}
	}()

	return out
}

func (s *GlobalSource) translate(event hook.Event) (KeyEvent, bool) {
	var edge Edge
	switch event.Kind {
	case hook.KeyDown:
		edge = EdgePress
	case hook.KeyHold:
		edge = EdgeHold
	case hook.KeyUp:
		edge = EdgeRelease
	default:
		return KeyEvent{}, false
	}

	var role Role
	switch event.Keycode {
	case s.pttCode:
		role = RolePTT
	case s.lockCode:
		role = RoleLock
	default:
		return KeyEvent{}, false
	}
	return KeyEvent{Role: role, Edge: edge, At: time.Now()}, true
}
