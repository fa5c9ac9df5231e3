package dashscope

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ZyphrZero/push-2-talk/internal/asr"
)

const providerName = "dashscope"

// Config controls the Qwen ASR batch endpoint.
type Config struct {
	APIKey   string
	URL      string
	Model    string
	Language string
}

// Client implements ports.BatchTranscriber against the multimodal generation
// API: the recording rides along as a base64 data URL inside one user message.
type Client struct {
	cfg    Config
	client *http.Client
}

func NewClient(cfg Config, client *http.Client) *Client {
	if cfg.URL == "" {
		cfg.URL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/multimodal-generation/generation"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen3-asr-flash"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{cfg: cfg, client: client}
}

func (c *Client) Name() string { return providerName }

type generationRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []message `json:"messages"`
	} `json:"input"`
	Parameters map[string]any `json:"parameters"`
}

type message struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", asr.NewError(asr.KindAuth, providerName, errors.New("api key is not configured"))
	}

	audioURL := "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wav)
	request := generationRequest{Model: c.cfg.Model}
	request.Input.Messages = []message{
		{Role: "system", Content: []map[string]any{{"text": ""}}},
		{Role: "user", Content: []map[string]any{{"audio": audioURL}}},
	}
	request.Parameters = map[string]any{
		"result_format":      "message",
		"enable_itn":         false,
		"disfluency_removal": true,
	}
	if c.cfg.Language != "" && c.cfg.Language != "auto" {
		request.Parameters["language"] = c.cfg.Language
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, fmt.Errorf("marshal request: %w", err))
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
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
		detail := summarizeFailure(payload, httpResponse.Status)
		return "", asr.NewError(asr.KindProtocol, providerName, errors.New(detail))
	}

	var response generationResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, fmt.Errorf("parse response: %w", err))
	}
	if len(response.Output.Choices) == 0 || len(response.Output.Choices[0].Message.Content) == 0 {
		return "", asr.NewError(asr.KindProtocol, providerName, errors.New("response carried no transcript"))
	}
	return response.Output.Choices[0].Message.Content[0].Text, nil
}

func summarizeFailure(payload []byte, fallback string) string {
	var response generationResponse
	if err := json.Unmarshal(payload, &response); err == nil && response.Message != "" {
		if response.Code != "" {
			return fmt.Sprintf("%s: %s", response.Code, response.Message)
		}
		return response.Message
	}
	return fallback
}
