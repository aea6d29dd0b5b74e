// Package main provides an audio routing service that moves audio between
// capture devices, playback devices, files, and local model adapters under
// a configurable duplex policy.
//
// Usage:
//
//	audiorouter [-config path/to/config.json]
//
// If -config is not specified, the router looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-audiorouter/internal/adapters"
	"github.com/oszuidwest/zwfm-audiorouter/internal/audio"
	"github.com/oszuidwest/zwfm-audiorouter/internal/config"
	"github.com/oszuidwest/zwfm-audiorouter/internal/engine"
	"github.com/oszuidwest/zwfm-audiorouter/internal/events"
	"github.com/oszuidwest/zwfm-audiorouter/internal/notify"
	"github.com/oszuidwest/zwfm-audiorouter/internal/recording"
	"github.com/oszuidwest/zwfm-audiorouter/internal/util"
)

// Build information, set via -ldflags at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	backend, err := audio.NewPortAudioBackend()
	if err != nil {
		slog.Error("failed to initialize audio backend", "error", err)
		os.Exit(1)
	}

	module := engine.NewModule(cfg, backend, adapters.NoopASR{}, adapters.ToneTTS{})

	// Event log is optional; the notifier works without it.
	var eventLog *events.Logger
	if path := cfg.LogPath(); path != "" {
		eventLog, err = events.NewLogger(path)
		if err != nil {
			slog.Error("failed to open event log", "path", path, "error", err)
		}
	}

	notifier := notify.NewNotifier(cfg, eventLog)
	uploader := recording.NewUploader(cfg)
	uploader.Start()

	module.OnTransition = notifier.HandleTransition
	module.OnSilence = notifier.HandleSilence
	module.OnDeviceLost = notifier.HandleDeviceLost
	module.OnRecording = uploader.Enqueue
	module.OnBargeIn = notifier.HandleBargeIn
	module.OnUnderrun = notifier.HandleUnderrun

	srv := NewServer(cfg, module)

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	module.Shutdown()
	uploader.Stop()

	if err := backend.Close(); err != nil {
		slog.Error("failed to close audio backend", "error", err)
	}
	if eventLog != nil {
		if err := eventLog.Close(); err != nil {
			slog.Error("failed to close event log", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
