package main

import (
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	app := NewApp(logger)
	err := wails.Run(&options.App{
		Title:      "push-2-talk",
		Width:      420,
		Height:     280,
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind:       []interface{}{app},
	})
	if err != nil {
		logger.Error("application exited", "error", err)
		os.Exit(1)
	}
}
