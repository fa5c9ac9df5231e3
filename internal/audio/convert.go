package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TargetSampleRate is the fixed pipeline rate every provider expects.
const TargetSampleRate = 16000

// FrameSamples is 200 ms at the target rate.
const FrameSamples = 3200

// bytesPerSample returns the width of one interleaved sample for a raw ffmpeg
// sample format.
func bytesPerSample(format string) (int, error) {
	switch format {
	case "f32le":
		return 4, nil
	case "s16le", "u16le":
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported sample format %q", format)
	}
}

// decodeSamples converts raw little-endian PCM bytes to normalized float
// samples in [-1, 1]. data must hold complete samples.
func decodeSamples(format string, data []byte) ([]float32, error) {
	width, err := bytesPerSample(format)
	if err != nil {
		return nil, err
	}
	if len(data)%width != 0 {
		return nil, fmt.Errorf("truncated %s sample data (%d bytes)", format, len(data))
	}

	out := make([]float32, len(data)/width)
	switch format {
	case "f32le":
		for i := range out {
			bits := binary.LittleEndian.Uint32(data[i*4:])
			out[i] = math.Float32frombits(bits)
		}
	case "s16le":
		for i := range out {
			sample := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = float32(sample) / 32768.0
		}
	case "u16le":
		for i := range out {
			sample := binary.LittleEndian.Uint16(data[i*2:])
			out[i] = (float32(sample) - 32768.0) / 32768.0
		}
	}
	return out, nil
}

// downmix averages interleaved channels into mono.
func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// resample converts mono samples between rates with linear interpolation.
func resample(samples []float32, from int, to int) []float32 {
	if from == to || len(samples) == 0 {
		return samples
	}
	ratio := float64(from) / float64(to)
	outLen := int(float64(len(samples)) / ratio)
	if outLen == 0 {
		return nil
	}
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else {
			out[i] = samples[len(samples)-1]
		}
	}
	return out
}

// quantize clamps normalized floats into signed 16-bit samples.
func quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, sample := range samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		out[i] = int16(sample * 32767)
	}
	return out
}

// rmsLevel computes the root-mean-square amplitude of a frame, normalized
// to [0, 1].
func rmsLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, sample := range samples {
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// DisplayLevel maps an RMS reading onto the UI visualization curve: gain,
// clamp, then square-root compression so quiet speech still registers.
func DisplayLevel(rms float64) float64 {
	level := rms * 8.0
	if level > 1 {
		level = 1
	}
	return math.Sqrt(level)
}
