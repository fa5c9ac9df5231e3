package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/ZyphrZero/push-2-talk/internal/asr"
	"github.com/ZyphrZero/push-2-talk/internal/audio"
	"github.com/ZyphrZero/push-2-talk/internal/config"
	"github.com/ZyphrZero/push-2-talk/internal/hotkey"
	"github.com/ZyphrZero/push-2-talk/internal/ports"
	"github.com/ZyphrZero/push-2-talk/internal/providers/dashscope"
	"github.com/ZyphrZero/push-2-talk/internal/providers/siliconflow"
	"github.com/ZyphrZero/push-2-talk/internal/providers/volcengine"
	"github.com/ZyphrZero/push-2-talk/internal/textnorm"
	"github.com/ZyphrZero/push-2-talk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	KeySource  *hotkey.GlobalSource
	Binder     *hotkey.Binder
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink, inserter ports.TextInserter, logger *slog.Logger) (Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}

	normalizer, err := textnorm.New(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return Services{}, err
	}

	providers, err := buildProviders(cfg, logger)
	if err != nil {
		return Services{}, err
	}

	policy := asr.PolicyFallback
	if cfg.Policy == "race" {
		policy = asr.PolicyRace
	}
	coordinator := asr.NewCoordinator(policy, cfg.Session.RequestTimeout(), cfg.Session.RetryPause(), logger)

	controller := usecase.NewSessionController(
		audio.NewFFMPEGCapture(cfg.Audio.RecorderCommand, logger),
		providers,
		coordinator,
		normalizer,
		inserter,
		eventSink,
		logger,
		usecase.Config{
			Audio: ports.AudioConfig{
				InputFormat:  cfg.Audio.InputFormat,
				InputDevice:  cfg.Audio.InputDevice,
				SampleFormat: cfg.Audio.SampleFormat,
				SampleRate:   cfg.Audio.SampleRate,
				Channels:     cfg.Audio.Channels,
			},
			LockTimeout: cfg.Session.LockTimeout(),
			RetryBudget: cfg.Session.Retries,
		},
	)

	keySource, err := hotkey.NewGlobalSource(cfg.Hotkeys.PTTKey, cfg.Hotkeys.LockKey, logger)
	if err != nil {
		return Services{}, err
	}
	binder := hotkey.NewBinder(controller, cfg.Session.WatchdogInterval(), logger)

	return Services{
		Controller: controller,
		KeySource:  keySource,
		Binder:     binder,
		Config:     cfg,
	}, nil
}

// buildProviders assembles transcription providers in priority order, skipping
// entries without credentials so a partial configuration still boots.
func buildProviders(cfg config.Config, logger *slog.Logger) ([]usecase.Provider, error) {
	providers := make([]usecase.Provider, 0, len(cfg.Providers.Order))
	for _, name := range cfg.Providers.Order {
		switch name {
		case config.ProviderVolcengine:
			volc := cfg.Providers.Volcengine
			if volc.AppID == "" || volc.AccessKey == "" {
				logger.Warn("skipping provider without credentials", "provider", name)
				continue
			}
			if volc.Transport == config.TransportHTTP {
				providers = append(providers, usecase.Provider{
					Name: name,
					Batch: volcengine.NewFlashClient(volcengine.FlashConfig{
						AppID:     volc.AppID,
						AccessKey: volc.AccessKey,
						Language:  cfg.Language,
						Hotwords:  volc.Hotwords,
					}, nil, logger),
				})
				continue
			}
			providers = append(providers, usecase.Provider{
				Name: name,
				Streaming: volcengine.NewStreamingProvider(volcengine.StreamingConfig{
					AppID:     volc.AppID,
					AccessKey: volc.AccessKey,
				}, logger),
			})
		case config.ProviderDashscope:
			if cfg.Providers.Dashscope.APIKey == "" {
				logger.Warn("skipping provider without credentials", "provider", name)
				continue
			}
			providers = append(providers, usecase.Provider{
				Name: name,
				Batch: dashscope.NewClient(dashscope.Config{
					APIKey:   cfg.Providers.Dashscope.APIKey,
					Language: cfg.Language,
				}, nil),
			})
		case config.ProviderSiliconflow:
			if cfg.Providers.Siliconflow.APIKey == "" {
				logger.Warn("skipping provider without credentials", "provider", name)
				continue
			}
			providers = append(providers, usecase.Provider{
				Name: name,
				Batch: siliconflow.NewClient(siliconflow.Config{
					APIKey: cfg.Providers.Siliconflow.APIKey,
				}, nil),
			})
		default:
			return nil, fmt.Errorf("unknown provider %q in order", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no transcription provider is configured")
	}
	return providers, nil
}
