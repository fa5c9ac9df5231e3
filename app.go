package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/ZyphrZero/push-2-talk/internal/bootstrap"
	"github.com/ZyphrZero/push-2-talk/internal/config"
	"github.com/ZyphrZero/push-2-talk/internal/domain"
	"github.com/ZyphrZero/push-2-talk/internal/usecase"
)

const (
	eventSession = "p2t:session"
	eventLevel   = "p2t:level"
	eventResult  = "p2t:result"
	eventError   = "p2t:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	logger     *slog.Logger
	bootErr    error

	stopHotkeys context.CancelFunc
}

func NewApp(logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{logger: logger}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsInserter{ctx: ctx}, a.logger)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller

	hotkeyCtx, cancel := context.WithCancel(ctx)
	a.stopHotkeys = cancel
	events := services.KeySource.Run(hotkeyCtx)
	go services.Binder.Run(hotkeyCtx, events)

	a.emitSession("idle", "Ready")
}

func (a *App) shutdown(_ context.Context) {
	if a.stopHotkeys != nil {
		a.stopHotkeys()
	}
	if a.controller != nil {
		a.controller.ForceAbort()
	}
}

// StartCapture begins recording in the given capture mode.
func (a *App) StartCapture(mode string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.StartCapture(a.ctx, parseCaptureMode(mode)); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// StopAndTranscribe ends a momentary recording and returns the transcript.
func (a *App) StopAndTranscribe() (domain.TranscriptionResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.TranscriptionResult{}, err
	}
	return a.controller.StopAndTranscribe(a.ctx)
}

// LockRecording switches the active recording to locked mode.
func (a *App) LockRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.LockRecording()
}

// FinishLockedRecording ends a locked recording and returns the transcript.
func (a *App) FinishLockedRecording() (domain.TranscriptionResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.TranscriptionResult{}, err
	}
	return a.controller.FinishLockedRecording(a.ctx)
}

// CancelLockedRecording discards a locked recording without transcription.
func (a *App) CancelLockedRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.CancelLockedRecording(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	return nil
}

// CancelTranscription aborts an in-flight transcription.
func (a *App) CancelTranscription() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.CancelTranscription(); err != nil {
		if errors.Is(err, usecase.ErrNoActiveSession) {
			return nil
		}
		return err
	}
	return nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"policy":     a.cfg.Policy,
		"language":   a.cfg.Language,
		"providers":  fmt.Sprintf("%v", a.cfg.Providers.Order),
		"rulesFile":  a.cfg.Rules.Path,
		"audioInput": a.cfg.Audio.InputDevice,
		"pttKey":     a.cfg.Hotkeys.PTTKey,
		"lockKey":    a.cfg.Hotkeys.LockKey,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func parseCaptureMode(mode string) domain.CaptureMode {
	if mode == string(domain.CaptureModeAssistant) {
		return domain.CaptureModeAssistant
	}
	return domain.CaptureModeDictation
}

// RecordingStarted emits the recording lifecycle transition to the frontend.
func (a *App) RecordingStarted(sessionID string, mode domain.CaptureMode) {
	a.emitSessionDetail("recording", "Recording...", map[string]string{
		"sessionId": sessionID,
		"mode":      string(mode),
	})
}

func (a *App) RecordingLocked(sessionID string) {
	a.emitSessionDetail("locked", "Recording locked", map[string]string{"sessionId": sessionID})
}

func (a *App) AudioLevel(level float64) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventLevel, level)
}

func (a *App) RecordingStopped(sessionID string) {
	a.emitSessionDetail("stopped", "Recording stopped", map[string]string{"sessionId": sessionID})
}

func (a *App) Transcribing(sessionID string) {
	a.emitSessionDetail("transcribing", "Transcribing...", map[string]string{"sessionId": sessionID})
}

func (a *App) TranscriptionComplete(result domain.TranscriptionResult) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventResult, result)
	a.emitSession("idle", "Transcript ready")
}

func (a *App) TranscriptionCancelled(sessionID string) {
	a.emitSessionDetail("idle", "Recording discarded", map[string]string{"sessionId": sessionID})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emitSession(state string, message string) {
	a.emitSessionDetail(state, message, nil)
}

func (a *App) emitSessionDetail(state string, message string, extra map[string]string) {
	if a.ctx == nil {
		return
	}
	payload := map[string]string{
		"state":   state,
		"message": message,
	}
	for key, value := range extra {
		payload[key] = value
	}
	runtime.EventsEmit(a.ctx, eventSession, payload)
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDevice:
		return "Microphone unavailable"
	case domain.ErrorCodeCaptureStop:
		return "Audio stop issue"
	case domain.ErrorCodeEmptyAudio:
		return "No speech captured"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeNormalize:
		return "Text rules failed"
	case domain.ErrorCodeInsertion:
		return "Text insertion failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

type wailsInserter struct {
	ctx context.Context
}

func (w *wailsInserter) Insert(_ context.Context, text string) error {
	return runtime.ClipboardSetText(w.ctx, text)
}
