package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrEmptyAudio reports a recording with no usable speech content.
var ErrEmptyAudio = errors.New("empty audio")

const (
	trimThreshold   = 0.01
	silenceRMSFloor = 0.02
	minSamples      = TargetSampleRate / 2
)

// TrimSilence removes leading and trailing samples below the energy
// threshold. Pure; the input slice is not modified.
func TrimSilence(samples []int16) []int16 {
	start := 0
	for start < len(samples) && belowThreshold(samples[start]) {
		start++
	}
	end := len(samples)
	for end > start && belowThreshold(samples[end-1]) {
		end--
	}
	return samples[start:end]
}

func belowThreshold(sample int16) bool {
	normalized := float64(sample) / 32768.0
	if normalized < 0 {
		normalized = -normalized
	}
	return normalized < trimThreshold
}

// Validate rejects recordings that are too short unless they carry clear
// speech energy, so accidental taps do not reach the providers.
func Validate(samples []int16) error {
	if len(samples) == 0 {
		return ErrEmptyAudio
	}
	if len(samples) >= minSamples {
		return nil
	}
	if rmsLevel(samples) >= silenceRMSFloor {
		return nil
	}
	return ErrEmptyAudio
}

// EncodeWAV wraps 16 kHz mono s16 samples in a RIFF/WAVE container.
func EncodeWAV(samples []int16) []byte {
	dataLen := len(samples) * 2
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	writeU32(&buf, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeU32(&buf, 16)
	writeU16(&buf, 1) // PCM
	writeU16(&buf, 1) // mono
	writeU32(&buf, TargetSampleRate)
	writeU32(&buf, TargetSampleRate*2) // byte rate
	writeU16(&buf, 2)                  // block align
	writeU16(&buf, 16)                 // bits per sample

	buf.WriteString("data")
	writeU32(&buf, uint32(dataLen))
	for _, sample := range samples {
		writeU16(&buf, uint16(sample))
	}
	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	buf.Write(scratch[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var scratch [2]byte
	binary.LittleEndian.PutUint16(scratch[:], v)
	buf.Write(scratch[:])
}
