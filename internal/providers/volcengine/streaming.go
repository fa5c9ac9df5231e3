package volcengine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ZyphrZero/push-2-talk/internal/asr"
	"github.com/ZyphrZero/push-2-talk/internal/audio"
	"github.com/ZyphrZero/push-2-talk/internal/ports"
)

const providerName = "volcengine"

// StreamingConfig controls the sauc bigmodel realtime endpoint.
type StreamingConfig struct {
	AppID      string
	AccessKey  string
	URL        string
	ResourceID string
	Model      string
}

// StreamingProvider implements ports.StreamingTranscriber for the Volcengine
// binary-framed realtime protocol.
type StreamingProvider struct {
	cfg    StreamingConfig
	logger *slog.Logger
}

func NewStreamingProvider(cfg StreamingConfig, logger *slog.Logger) *StreamingProvider {
	if cfg.URL == "" {
		cfg.URL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"
	}
	if cfg.ResourceID == "" {
		cfg.ResourceID = "volc.seedasr.sauc.duration"
	}
	if cfg.Model == "" {
		cfg.Model = "bigmodel"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamingProvider{cfg: cfg, logger: logger}
}

func (p *StreamingProvider) Name() string { return providerName }

func (p *StreamingProvider) OpenStream(ctx context.Context) (ports.StreamSession, error) {
	if strings.TrimSpace(p.cfg.AppID) == "" || strings.TrimSpace(p.cfg.AccessKey) == "" {
		return nil, asr.NewError(asr.KindAuth, providerName, errors.New("app id or access key is not configured"))
	}

	headers := http.Header{}
	headers.Set("X-Api-App-Key", p.cfg.AppID)
	headers.Set("X-Api-Access-Key", p.cfg.AccessKey)
	headers.Set("X-Api-Resource-Id", p.cfg.ResourceID)
	headers.Set("X-Api-Connect-Id", uuid.NewString())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.cfg.URL, headers)
	if err != nil {
		return nil, asr.NewError(asr.KindNetwork, providerName, fmt.Errorf("dial realtime endpoint: %w", err))
	}

	s := &streamSession{
		conn:   conn,
		logger: p.logger,
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}

	if err := s.sendFullClientRequest(p.cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.done)
		_ = conn.Close()
	}()

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	return s, nil
}

type streamSession struct {
	conn   *websocket.Conn
	logger *slog.Logger

	audio chan []byte
	done  chan struct{}

	wg sync.WaitGroup

	// sequence is owned by the write path: 1 is the full-client request,
	// audio packets count up from 2, and the terminal packet negates the
	// next value.
	sequence int32

	textMu sync.Mutex
	text   string

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

type fullClientRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	Audio struct {
		Format  string `json:"format"`
		Rate    int    `json:"rate"`
		Bits    int    `json:"bits"`
		Channel int    `json:"channel"`
	} `json:"audio"`
	Request struct {
		ModelName  string `json:"model_name"`
		EnableITN  bool   `json:"enable_itn"`
		EnablePunc bool   `json:"enable_punc"`
	} `json:"request"`
}

type serverResponse struct {
	Result struct {
		Text string `json:"text"`
	} `json:"result"`
}

func (s *streamSession) sendFullClientRequest(cfg StreamingConfig) error {
	var request fullClientRequest
	request.User.UID = cfg.AppID
	request.Audio.Format = "pcm"
	request.Audio.Rate = audio.TargetSampleRate
	request.Audio.Bits = 16
	request.Audio.Channel = 1
	request.Request.ModelName = cfg.Model
	request.Request.EnableITN = true
	request.Request.EnablePunc = true

	payload, err := json.Marshal(request)
	if err != nil {
		return asr.NewError(asr.KindProtocol, providerName, fmt.Errorf("marshal session request: %w", err))
	}

	s.sequence = 1
	frame, err := encodeMessage(message{
		Type:          msgFullClient,
		Flags:         flagSequence,
		Serialization: serializationJSON,
		Compression:   compressionGzip,
		Sequence:      s.sequence,
		Payload:       payload,
	})
	if err != nil {
		return asr.NewError(asr.KindProtocol, providerName, err)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return asr.NewError(asr.KindNetwork, providerName, fmt.Errorf("send session request: %w", err))
	}
	return nil
}

// SendAudio queues one chunk of 16 kHz mono s16 samples.
func (s *streamSession) SendAudio(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}

	s.sendMu.RLock()
	closed := s.sendClosed
	s.sendMu.RUnlock()
	if closed {
		return errors.New("audio stream is already closed")
	}

	pcm := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}

	select {
	case s.audio <- pcm:
		return nil
	case <-s.done:
		if err := s.sessionErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// Finish flushes the terminal packet and waits for the definite transcript.
func (s *streamSession) Finish(ctx context.Context) (string, error) {
	s.closeSend()

	select {
	case <-s.done:
	case <-ctx.Done():
		_ = s.Close()
		return "", ctx.Err()
	}

	if err := s.sessionErr(); err != nil {
		return "", err
	}
	s.textMu.Lock()
	defer s.textMu.Unlock()
	return s.text, nil
}

func (s *streamSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.sessionErr()
}

func (s *streamSession) closeSend() {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
}

func (s *streamSession) sessionErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamSession) writeLoop() {
	defer s.wg.Done()

	for pcm := range s.audio {
		s.sequence++
		frame, err := encodeMessage(message{
			Type:          msgAudioOnly,
			Flags:         flagSequence,
			Serialization: serializationNone,
			Compression:   compressionNone,
			Sequence:      s.sequence,
			Payload:       pcm,
		})
		if err != nil {
			s.setErr(asr.NewError(asr.KindProtocol, providerName, err))
			return
		}
		if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			s.setErr(asr.NewError(asr.KindNetwork, providerName, fmt.Errorf("send audio: %w", err)))
			return
		}
	}

	// Terminal packet: negated next sequence, empty payload.
	s.sequence++
	frame, err := encodeMessage(message{
		Type:          msgAudioOnly,
		Flags:         flagSequence | flagTerminal,
		Serialization: serializationNone,
		Compression:   compressionNone,
		Sequence:      -s.sequence,
	})
	if err != nil {
		s.setErr(asr.NewError(asr.KindProtocol, providerName, err))
		return
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.setErr(asr.NewError(asr.KindNetwork, providerName, fmt.Errorf("send terminal packet: %w", err)))
	}
}

func (s *streamSession) readLoop() {
	defer s.wg.Done()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(asr.NewError(asr.KindNetwork, providerName, fmt.Errorf("read server frame: %w", err)))
			return
		}

		frame, err := decodeMessage(payload)
		if err != nil {
			s.setErr(asr.NewError(asr.KindProtocol, providerName, err))
			return
		}

		switch frame.Type {
		case msgError:
			detail := strings.TrimSpace(string(frame.Payload))
			if detail == "" {
				detail = "server reported an error"
			}
			s.setErr(&asr.Error{
				Kind:     asr.KindProtocol,
				Provider: providerName,
				Code:     frame.ErrorCode,
				Err:      errors.New(detail),
			})
			return
		case msgFullServer:
			var response serverResponse
			if err := json.Unmarshal(frame.Payload, &response); err != nil {
				s.logger.Debug("skipping unparsable server response", "error", err)
				continue
			}
			if response.Result.Text != "" {
				s.textMu.Lock()
				s.text = response.Result.Text
				s.textMu.Unlock()
			}
			// Negative sequence marks the definite result for the session.
			if frame.terminal() || (frame.hasSequence() && frame.Sequence < 0) {
				return
			}
		default:
			s.logger.Debug("ignoring unexpected frame type", "type", frame.Type)
		}
	}
}
