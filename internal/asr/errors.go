package asr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a transcription failure for retry and reporting decisions.
type Kind string

const (
	KindNetwork  Kind = "network"
	KindTimeout  Kind = "timeout"
	KindAuth     Kind = "auth"
	KindProtocol Kind = "protocol"
	KindDevice   Kind = "device"
)

// Error is a typed transcription failure attributed to one provider. Code
// carries the provider's raw error code when the wire format includes one.
type Error struct {
	Kind     Kind
	Provider string
	Code     uint32
	Err      error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s error (code %d): %v", e.Provider, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with an explicit kind.
func NewError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// Classify wraps err with a kind inferred from its cause. Context
// cancellation passes through untouched so callers can distinguish a
// cancelled attempt from a failed one.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	kind := KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf returns the failure kind, or "" for untyped errors.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// Retryable reports whether an attempt that failed with err may be retried.
// Protocol and auth failures are provider/configuration defects and never
// retried; cancellation ends the attempt outright.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch KindOf(err) {
	case KindNetwork, KindTimeout:
		return true
	default:
		return false
	}
}
