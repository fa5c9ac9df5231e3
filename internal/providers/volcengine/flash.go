package volcengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ZyphrZero/push-2-talk/internal/asr"
)

// FlashConfig controls the auc flash (turbo) HTTP batch endpoint.
type FlashConfig struct {
	AppID      string
	AccessKey  string
	URL        string
	ResourceID string
	Model      string
	Language   string
	Hotwords   []string
}

// FlashClient implements ports.BatchTranscriber against the flash endpoint.
type FlashClient struct {
	cfg    FlashConfig
	client *http.Client
	logger *slog.Logger
}

func NewFlashClient(cfg FlashConfig, client *http.Client, logger *slog.Logger) *FlashClient {
	if cfg.URL == "" {
		cfg.URL = "https://openspeech.bytedance.com/api/v3/auc/bigmodel/recognize/flash"
	}
	if cfg.ResourceID == "" {
		cfg.ResourceID = "volc.bigasr.auc_turbo"
	}
	if cfg.Model == "" {
		cfg.Model = "bigmodel"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FlashClient{cfg: cfg, client: client, logger: logger}
}

func (c *FlashClient) Name() string { return providerName }

type flashRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	Audio struct {
		Data string `json:"data"`
	} `json:"audio"`
	Request map[string]any `json:"request"`
}

type flashResponse struct {
	Result struct {
		Text string `json:"text"`
	} `json:"result"`
}

func (c *FlashClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if strings.TrimSpace(c.cfg.AppID) == "" || strings.TrimSpace(c.cfg.AccessKey) == "" {
		return "", asr.NewError(asr.KindAuth, providerName, errors.New("app id or access key is not configured"))
	}

	var request flashRequest
	request.User.UID = c.cfg.AppID
	request.Audio.Data = base64.StdEncoding.EncodeToString(wav)
	request.Request = map[string]any{
		"model_name":    c.cfg.Model,
		"corpus":        map[string]any{"context": buildContext(c.cfg.Language, c.cfg.Hotwords)},
		"model_version": "400",
		"enable_ddc":    true,
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
	httpRequest.Header.Set("X-Api-App-Key", c.cfg.AppID)
	httpRequest.Header.Set("X-Api-Access-Key", c.cfg.AccessKey)
	httpRequest.Header.Set("X-Api-Resource-Id", c.cfg.ResourceID)
	httpRequest.Header.Set("X-Api-Request-Id", uuid.NewString())
	httpRequest.Header.Set("X-Api-Sequence", "-1")

	httpResponse, err := c.client.Do(httpRequest)
	if err != nil {
		return "", asr.Classify(providerName, err)
	}
	defer httpResponse.Body.Close()

	statusCode := httpResponse.Header.Get("X-Api-Status-Code")
	if statusCode != "20000000" {
		apiMessage := httpResponse.Header.Get("X-Api-Message")
		if apiMessage == "" {
			apiMessage = httpResponse.Status
		}
		kind := asr.KindProtocol
		if httpResponse.StatusCode == http.StatusUnauthorized || httpResponse.StatusCode == http.StatusForbidden {
			kind = asr.KindAuth
		}
		return "", asr.NewError(kind, providerName, fmt.Errorf("flash request rejected (%s): %s", statusCode, apiMessage))
	}

	payload, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return "", asr.Classify(providerName, fmt.Errorf("read response: %w", err))
	}

	var response flashResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return "", asr.NewError(asr.KindProtocol, providerName, fmt.Errorf("parse response: %w", err))
	}
	if response.Result.Text == "" {
		return "", asr.NewError(asr.KindProtocol, providerName, errors.New("response carried no transcript"))
	}
	return response.Result.Text, nil
}

// buildContext assembles the dialog-context corpus string. The context biases
// the model toward dictation; Chinese-only mode gets the conversational
// variant instead of the mixed-language one.
func buildContext(language string, hotwords []string) string {
	var contextData []map[string]string
	if language == "zh" {
		contextData = []map[string]string{
			{"text": "你好，请问有什么可以帮您的"},
			{"text": "豆包语音识别真的不错呀"},
			{"text": "当前聊天的场景是日常聊天，因此保留语气词，去除尾部句号"},
		}
	} else {
		contextData = []map[string]string{
			{"text": "当前场景为技术听写，中英文混合"},
			{"text": "保留英文专有名词和技术术语，如 Kubernetes, GPT-4o, Claude"},
			{"text": "保留语气词，去除尾部句号"},
		}
	}

	context := map[string]any{
		"context_type": "dialog_ctx",
		"context_data": contextData,
	}
	if len(hotwords) > 0 {
		words := make([]map[string]string, 0, len(hotwords))
		for _, word := range hotwords {
			word = strings.TrimSpace(word)
			if word == "" {
				continue
			}
			words = append(words, map[string]string{"word": word})
		}
		if len(words) > 0 {
			context["hotwords"] = words
		}
	}

	encoded, err := json.Marshal(context)
	if err != nil {
		return ""
	}
	return string(encoded)
}
