package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodeF32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, sample := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(sample))
	}
	return out
}

func encodeS16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

func TestDecodeSamples(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		format string
		data   []byte
		want   []float32
	}{
		"f32le passthrough": {
			format: "f32le",
			data:   encodeF32LE([]float32{0, 0.5, -0.5}),
			want:   []float32{0, 0.5, -0.5},
		},
		"s16le normalized": {
			format: "s16le",
			data:   encodeS16LE([]int16{0, 16384, -32768}),
			want:   []float32{0, 0.5, -1},
		},
		"u16le centered": {
			format: "u16le",
			data:   []byte{0x00, 0x80, 0x00, 0x00, 0xFF, 0xFF},
			want:   []float32{0, -1, 0.99996948},
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := decodeSamples(tc.format, tc.data)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d samples, got %d", len(tc.want), len(got))
			}
			for i := range got {
				if math.Abs(float64(got[i]-tc.want[i])) > 1e-4 {
					t.Fatalf("sample %d: got %f, want %f", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestDecodeSamplesRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := decodeSamples("s24le", []byte{0, 0, 0}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestDecodeSamplesRejectsTruncatedData(t *testing.T) {
	t.Parallel()

	if _, err := decodeSamples("f32le", []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected truncation error")
	}
}

func TestDownmixAveragesChannels(t *testing.T) {
	t.Parallel()

	stereo := []float32{1, 0, 0.5, 0.5, -1, 1}
	mono := downmix(stereo, 2)
	want := []float32{0.5, 0.5, 0}
	if len(mono) != len(want) {
		t.Fatalf("expected %d frames, got %d", len(want), len(mono))
	}
	for i := range mono {
		if mono[i] != want[i] {
			t.Fatalf("frame %d: got %f, want %f", i, mono[i], want[i])
		}
	}
}

func TestResampleHalvesRate(t *testing.T) {
	t.Parallel()

	in := make([]float32, 32000)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 32000))
	}
	out := resample(in, 32000, TargetSampleRate)
	if len(out) != 16000 {
		t.Fatalf("expected 16000 samples, got %d", len(out))
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	t.Parallel()

	in := []float32{0.1, 0.2, 0.3}
	out := resample(in, TargetSampleRate, TargetSampleRate)
	if len(out) != 3 || out[0] != 0.1 {
		t.Fatalf("unexpected identity result: %v", out)
	}
}

func TestQuantizeClampsOverrange(t *testing.T) {
	t.Parallel()

	got := quantize([]float32{2, -2, 0})
	if got[0] != 32767 || got[1] != -32767 || got[2] != 0 {
		t.Fatalf("unexpected quantized samples: %v", got)
	}
}

func TestDisplayLevelCurve(t *testing.T) {
	t.Parallel()

	if got := DisplayLevel(0); got != 0 {
		t.Fatalf("expected silence to map to 0, got %f", got)
	}
	// Above 1/8 RMS the curve saturates.
	if got := DisplayLevel(0.5); got != 1 {
		t.Fatalf("expected saturation at 1, got %f", got)
	}
	mid := DisplayLevel(0.02)
	if mid <= 0.3 || mid >= 0.5 {
		t.Fatalf("expected compressed midrange, got %f", mid)
	}
}

func TestRMSLevel(t *testing.T) {
	t.Parallel()

	silent := make([]int16, 100)
	if got := rmsLevel(silent); got != 0 {
		t.Fatalf("expected zero RMS for silence, got %f", got)
	}

	loud := make([]int16, 100)
	for i := range loud {
		loud[i] = 16384
	}
	if got := rmsLevel(loud); math.Abs(got-0.5) > 1e-3 {
		t.Fatalf("expected RMS near 0.5, got %f", got)
	}
}
