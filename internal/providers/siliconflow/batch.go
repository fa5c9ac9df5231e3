package siliconflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ZyphrZero/push-2-talk/internal/asr"
)

const providerName = "siliconflow"

// Config controls the SenseVoice transcription endpoint.
type Config struct {
	APIKey string
	URL    string
	Model  string
}

// Client implements ports.BatchTranscriber with a multipart WAV upload.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config, client *http.Client) *Client {
	if cfg.URL == "" {
		cfg.URL = "https://api.siliconflow.cn/v1/audio/transcriptions"
	}
	if cfg.Model == "" {
		cfg.Model = "FunAudioLLM/SenseVoiceSmall"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{cfg: cfg, client: client}
}

func (c *Client) Name() string { return providerName }

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", asr.NewError(asr.KindAuth, providerName, errors.New("api key is not configured"))
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("model", c.cfg.Model); err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, err)
	}
	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, err)
	}
	if err := form.Close(); err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, &body)
	if err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, err)
	}
	httpRequest.Header.Set("Content-Type", form.FormDataContentType())
	httpRequest.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	httpResponse, err := c.client.Do(httpRequest)
	if err != nil {
		return "", asr.Classify(providerName, err)
	}
	defer httpResponse.Body.Close()

	payload, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return "", asr.Classify(providerName, fmt.Errorf("read response: %w", err))
	}

	if httpResponse.StatusCode == http.StatusUnauthorized || httpResponse.StatusCode == http.StatusForbidden {
		return "", asr.NewError(asr.KindAuth, providerName, fmt.Errorf("request rejected: %s", httpResponse.Status))
	}
	if httpResponse.StatusCode != http.StatusOK {
		return "", asr.NewError(asr.KindProtocol, providerName,
			fmt.Errorf("unexpected status %s: %s", httpResponse.Status, strings.TrimSpace(string(payload))))
	}

	var response transcriptionResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, fmt.Errorf("parse response: %w", err))
	}
	if response.Text == "" {
		return "", asr.NewError(asr.KindProtocol, providerName, errors.New("response carried no transcript"))
	}
	return response.Text, nil
}
