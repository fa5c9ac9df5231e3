package asr

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyInfersKinds(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want Kind
	}{
		"deadline is timeout": {err: context.DeadlineExceeded, want: KindTimeout},
		"plain is network":    {err: errors.New("connection reset"), want: KindNetwork},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got := Classify("volcengine", tc.err)
			if KindOf(got) != tc.want {
				t.Fatalf("expected kind %s, got %s", tc.want, KindOf(got))
			}
		})
	}
}

func TestClassifyPassesThroughCancellation(t *testing.T) {
	t.Parallel()

	err := Classify("volcengine", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if KindOf(err) != "" {
		t.Fatalf("cancellation should not be typed, got %s", KindOf(err))
	}
}

func TestClassifyKeepsExistingKind(t *testing.T) {
	t.Parallel()

	typed := NewError(KindAuth, "dashscope", errors.New("bad key"))
	got := Classify("dashscope", typed)
	if KindOf(got) != KindAuth {
		t.Fatalf("expected auth kind preserved, got %s", KindOf(got))
	}
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		err  error
		want bool
	}{
		"network":   {err: NewError(KindNetwork, "p", errors.New("down")), want: true},
		"timeout":   {err: NewError(KindTimeout, "p", errors.New("slow")), want: true},
		"protocol":  {err: NewError(KindProtocol, "p", errors.New("bad frame")), want: false},
		"auth":      {err: NewError(KindAuth, "p", errors.New("denied")), want: false},
		"cancelled": {err: context.Canceled, want: false},
		"nil":       {err: nil, want: false},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorStringIncludesCode(t *testing.T) {
	t.Parallel()

	err := &Error{Kind: KindProtocol, Provider: "volcengine", Code: 45000001, Err: errors.New("bad request")}
	want := "volcengine: protocol error (code 45000001): bad request"
	if err.Error() != want {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
