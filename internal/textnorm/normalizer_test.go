package textnorm

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "substitutions.rules")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write rules failed: %v", err)
	}
	return path
}

func TestStripTrailingPunctuation(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		want string
	}{
		"ascii period":       {in: "hello world.", want: "hello world"},
		"cjk period":         {in: "你好世界。", want: "你好世界"},
		"stacked marks":      {in: "really?!。", want: "really"},
		"interior untouched": {in: "a, b, c", want: "a, b, c"},
		"no punctuation":     {in: "plain", want: "plain"},
		"empty":              {in: "", want: ""},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := StripTrailingPunctuation(tc.in); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizerAppliesRulesThenStrips(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "# comment\nkubernetes => Kubernetes\ngpt four o => GPT-4o\n")
	normalizer, err := New(path, 30)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	got, err := normalizer.Apply("deploy kubernetes with gpt four o.")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got != "deploy Kubernetes with GPT-4o" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestNormalizerCaseInsensitiveMatching(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "grpc => gRPC\n")
	normalizer, err := New(path, 30)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	got, err := normalizer.Apply("GRPC and Grpc")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if got != "gRPC and gRPC" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestNormalizerLoopLimitBoundsRecursiveRules(t *testing.T) {
	t.Parallel()

	// "a => aa" grows on every pass; the loop limit must stop it.
	path := writeRules(t, "a => aa\n")
	normalizer, err := New(path, 3)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	got, err := normalizer.Apply("a")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(got) != 8 {
		t.Fatalf("expected 3 doubling passes, got %q", got)
	}
}

func TestNormalizerMissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	normalizer, err := New(filepath.Join(t.TempDir(), "missing.rules"), 30)
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	got, err := normalizer.Apply("unchanged。")
	if err != nil || got != "unchanged" {
		t.Fatalf("unexpected result: %q, %v", got, err)
	}
}

func TestNormalizerRejectsMalformedRules(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "not a valid rule\n")
	if _, err := New(path, 30); err == nil {
		t.Fatalf("expected parse error")
	}

	path = writeRules(t, "=> empty source\n")
	if _, err := New(path, 30); err == nil {
		t.Fatalf("expected empty source error")
	}
}
