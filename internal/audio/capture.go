package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/ZyphrZero/push-2-talk/internal/domain"
	"github.com/ZyphrZero/push-2-talk/internal/ports"
)

// FFMPEGCapture owns the microphone via an ffmpeg subprocess. The subprocess
// plus the single framer goroutine are the only places that touch the device;
// everything downstream sees frames over a bounded channel.
type FFMPEGCapture struct {
	command string
	logger  *slog.Logger
}

func NewFFMPEGCapture(command string, logger *slog.Logger) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFMPEGCapture{command: command, logger: logger}
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.CaptureSession, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = TargetSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.SampleFormat == "" {
		cfg.SampleFormat = "s16le"
	}
	if _, err := bytesPerSample(cfg.SampleFormat); err != nil {
		return nil, err
	}

	// ffmpeg emits the device's native layout untouched; normalization to
	// 16 kHz mono s16 happens in the framer so every consumer sees one format.
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", cfg.SampleFormat,
		"-",
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimmed(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	session := &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
		frames:  make(chan domain.AudioFrame, 16),
		logger:  c.logger,
		cfg:     cfg,
	}
	go session.framerLoop()
	return session, nil
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	frames chan domain.AudioFrame
	logger *slog.Logger
	cfg    ports.AudioConfig

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Frames() <-chan domain.AudioFrame {
	return s.frames
}

// framerLoop is the single device reader. It decodes the native format,
// downmixes and resamples to 16 kHz mono, and cuts fixed-size frames. Delivery
// blocks when the channel is full: recorded audio is never discarded, and the
// consumer drains the channel until it closes.
func (s *ffmpegSession) framerLoop() {
	defer close(s.frames)

	width, _ := bytesPerSample(s.cfg.SampleFormat)
	chunkBytes := width * s.cfg.Channels * s.cfg.SampleRate / 5
	if chunkBytes < width*s.cfg.Channels {
		chunkBytes = width * s.cfg.Channels
	}
	buf := make([]byte, chunkBytes)

	var pending []int16
	for {
		n, err := io.ReadFull(s.stdout, buf)
		if n > 0 {
			n -= n % (width * s.cfg.Channels)
			samples, decodeErr := decodeSamples(s.cfg.SampleFormat, buf[:n])
			if decodeErr != nil {
				s.logger.Error("dropping undecodable capture chunk", "error", decodeErr)
				return
			}
			mono := downmix(samples, s.cfg.Channels)
			mono = resample(mono, s.cfg.SampleRate, TargetSampleRate)
			pending = append(pending, quantize(mono)...)

			for len(pending) >= FrameSamples {
				frame := domain.AudioFrame{Samples: append([]int16(nil), pending[:FrameSamples]...)}
				frame.RMS = rmsLevel(frame.Samples)
				pending = pending[FrameSamples:]
				s.frames <- frame
			}
		}
		if err != nil {
			if len(pending) > 0 {
				frame := domain.AudioFrame{Samples: pending}
				frame.RMS = rmsLevel(frame.Samples)
				s.frames <- frame
			}
			return
		}
	}
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimmed(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
