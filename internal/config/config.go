package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in the priority order list.
const (
	ProviderVolcengine  = "volcengine"
	ProviderDashscope   = "dashscope"
	ProviderSiliconflow = "siliconflow"
)

// Transport modes for providers that support both.
const (
	TransportRealtime = "realtime"
	TransportHTTP     = "http"
)

// Config stores runtime configuration, loaded from an optional YAML file and
// overridden by environment variables.
type Config struct {
	Policy    string          `yaml:"policy"`
	Language  string          `yaml:"language"`
	Providers ProvidersConfig `yaml:"providers"`
	Audio     AudioConfig     `yaml:"audio"`
	Session   SessionConfig   `yaml:"session"`
	Rules     RulesConfig     `yaml:"rules"`
	Hotkeys   HotkeyConfig    `yaml:"hotkeys"`
}

type ProvidersConfig struct {
	Order       []string          `yaml:"order"`
	Volcengine  VolcengineConfig  `yaml:"volcengine"`
	Dashscope   DashscopeConfig   `yaml:"dashscope"`
	Siliconflow SiliconflowConfig `yaml:"siliconflow"`
}

type VolcengineConfig struct {
	AppID     string   `yaml:"app_id"`
	AccessKey string   `yaml:"access_key"`
	Transport string   `yaml:"transport"`
	Hotwords  []string `yaml:"hotwords"`
}

type DashscopeConfig struct {
	APIKey string `yaml:"api_key"`
}

type SiliconflowConfig struct {
	APIKey string `yaml:"api_key"`
}

type AudioConfig struct {
	RecorderCommand string `yaml:"recorder_command"`
	InputFormat     string `yaml:"input_format"`
	InputDevice     string `yaml:"input_device"`
	SampleFormat    string `yaml:"sample_format"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
}

type SessionConfig struct {
	RequestTimeoutMS   int `yaml:"request_timeout_ms"`
	Retries            int `yaml:"retries"`
	RetryPauseMS       int `yaml:"retry_pause_ms"`
	WatchdogIntervalMS int `yaml:"watchdog_interval_ms"`
	LockTimeoutMS      int `yaml:"lock_timeout_ms"`
}

func (s SessionConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}

func (s SessionConfig) RetryPause() time.Duration {
	return time.Duration(s.RetryPauseMS) * time.Millisecond
}

func (s SessionConfig) WatchdogInterval() time.Duration {
	return time.Duration(s.WatchdogIntervalMS) * time.Millisecond
}

func (s SessionConfig) LockTimeout() time.Duration {
	return time.Duration(s.LockTimeoutMS) * time.Millisecond
}

type RulesConfig struct {
	Path           string `yaml:"path"`
	IterationLimit int    `yaml:"iteration_limit"`
}

type HotkeyConfig struct {
	PTTKey  string `yaml:"ptt_key"`
	LockKey string `yaml:"lock_key"`
}

// Load resolves configuration from the YAML file (if present) and environment
// overrides, falling back to sensible defaults.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	var cfg Config
	path := envOrDefault("P2T_CONFIG_FILE", filepath.Join(home, ".config", "push-2-talk", "config.yaml"))
	contents, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(contents, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg, home)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Policy = envOrDefault("P2T_POLICY", cfg.Policy)
	cfg.Language = envOrDefault("P2T_LANGUAGE", cfg.Language)
	if order := strings.TrimSpace(os.Getenv("P2T_PROVIDER_ORDER")); order != "" {
		cfg.Providers.Order = splitList(order)
	}

	cfg.Providers.Volcengine.AppID = envOrDefault("VOLC_APP_ID", cfg.Providers.Volcengine.AppID)
	cfg.Providers.Volcengine.AccessKey = envOrDefault("VOLC_ACCESS_KEY", cfg.Providers.Volcengine.AccessKey)
	cfg.Providers.Volcengine.Transport = envOrDefault("P2T_VOLC_TRANSPORT", cfg.Providers.Volcengine.Transport)
	if hotwords := strings.TrimSpace(os.Getenv("P2T_VOLC_HOTWORDS")); hotwords != "" {
		cfg.Providers.Volcengine.Hotwords = splitList(hotwords)
	}
	cfg.Providers.Dashscope.APIKey = envOrDefault("DASHSCOPE_API_KEY", cfg.Providers.Dashscope.APIKey)
	cfg.Providers.Siliconflow.APIKey = envOrDefault("SILICONFLOW_API_KEY", cfg.Providers.Siliconflow.APIKey)

	cfg.Audio.RecorderCommand = envOrDefault("P2T_FFMPEG_COMMAND", cfg.Audio.RecorderCommand)
	cfg.Audio.InputFormat = envOrDefault("P2T_AUDIO_INPUT_FORMAT", cfg.Audio.InputFormat)
	cfg.Audio.InputDevice = envOrDefault("P2T_AUDIO_INPUT_DEVICE", cfg.Audio.InputDevice)
	cfg.Audio.SampleFormat = envOrDefault("P2T_AUDIO_SAMPLE_FORMAT", cfg.Audio.SampleFormat)
	cfg.Audio.SampleRate = envOrDefaultInt("P2T_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = envOrDefaultInt("P2T_CHANNELS", cfg.Audio.Channels)

	cfg.Session.RequestTimeoutMS = envOrDefaultInt("P2T_REQUEST_TIMEOUT_MS", cfg.Session.RequestTimeoutMS)
	cfg.Session.Retries = envOrDefaultInt("P2T_RETRIES", cfg.Session.Retries)
	cfg.Session.RetryPauseMS = envOrDefaultInt("P2T_RETRY_PAUSE_MS", cfg.Session.RetryPauseMS)
	cfg.Session.WatchdogIntervalMS = envOrDefaultInt("P2T_WATCHDOG_INTERVAL_MS", cfg.Session.WatchdogIntervalMS)
	cfg.Session.LockTimeoutMS = envOrDefaultInt("P2T_LOCK_TIMEOUT_MS", cfg.Session.LockTimeoutMS)

	cfg.Rules.Path = envOrDefault("P2T_RULES_FILE", cfg.Rules.Path)
	cfg.Rules.IterationLimit = envOrDefaultInt("P2T_RULE_ITERATION_LIMIT", cfg.Rules.IterationLimit)

	cfg.Hotkeys.PTTKey = envOrDefault("P2T_PTT_KEY", cfg.Hotkeys.PTTKey)
	cfg.Hotkeys.LockKey = envOrDefault("P2T_LOCK_KEY", cfg.Hotkeys.LockKey)
}

func applyDefaults(cfg *Config, home string) {
	if cfg.Policy == "" {
		cfg.Policy = "fallback"
	}
	if cfg.Language == "" {
		cfg.Language = "auto"
	}
	if len(cfg.Providers.Order) == 0 {
		cfg.Providers.Order = []string{ProviderVolcengine, ProviderDashscope, ProviderSiliconflow}
	}
	if cfg.Providers.Volcengine.Transport == "" {
		cfg.Providers.Volcengine.Transport = TransportRealtime
	}

	if cfg.Audio.RecorderCommand == "" {
		cfg.Audio.RecorderCommand = "ffmpeg"
	}
	if cfg.Audio.InputFormat == "" {
		cfg.Audio.InputFormat = "pulse"
	}
	if cfg.Audio.InputDevice == "" {
		cfg.Audio.InputDevice = "default"
	}
	if cfg.Audio.SampleFormat == "" {
		cfg.Audio.SampleFormat = "s16le"
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}

	if cfg.Session.RequestTimeoutMS <= 0 {
		cfg.Session.RequestTimeoutMS = 6000
	}
	if cfg.Session.Retries < 0 {
		cfg.Session.Retries = 0
	}
	if cfg.Session.Retries == 0 {
		cfg.Session.Retries = 2
	}
	if cfg.Session.RetryPauseMS <= 0 {
		cfg.Session.RetryPauseMS = 500
	}
	if cfg.Session.WatchdogIntervalMS <= 0 {
		cfg.Session.WatchdogIntervalMS = 500
	}
	if cfg.Session.LockTimeoutMS <= 0 {
		cfg.Session.LockTimeoutMS = 60000
	}

	if cfg.Rules.Path == "" {
		cfg.Rules.Path = filepath.Join(home, ".config", "push-2-talk", "substitutions.rules")
	}
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}

	if cfg.Hotkeys.PTTKey == "" {
		cfg.Hotkeys.PTTKey = "f8"
	}
	if cfg.Hotkeys.LockKey == "" {
		cfg.Hotkeys.LockKey = "f9"
	}
}

func validate(cfg Config) error {
	if cfg.Policy != "race" && cfg.Policy != "fallback" {
		return fmt.Errorf("unknown policy %q", cfg.Policy)
	}
	for _, name := range cfg.Providers.Order {
		switch name {
		case ProviderVolcengine, ProviderDashscope, ProviderSiliconflow:
		default:
			return fmt.Errorf("unknown provider %q in order", name)
		}
	}
	switch cfg.Providers.Volcengine.Transport {
	case TransportRealtime, TransportHTTP:
	default:
		return fmt.Errorf("unknown volcengine transport %q", cfg.Providers.Volcengine.Transport)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
