// Command sightline runs a live narration session: microphone and frames
// stream to the model, synthesized speech and transcripts stream back.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sightline-ai/sightline/internal/config"
	"github.com/sightline-ai/sightline/internal/dotenv"
	"github.com/sightline-ai/sightline/pkg/core/live"
	"github.com/sightline-ai/sightline/pkg/genlive"
	"github.com/sightline-ai/sightline/pkg/media"
	"github.com/sightline-ai/sightline/pkg/tools"
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	_ = dotenv.Load()

	var (
		configPath = flag.String("config", "sightline.yaml", "Path to the YAML config file")
		model      = flag.String("model", "", "Override the live model")
		voice      = flag.String("voice", "", "Override the voice name")
		reactive   = flag.Bool("reactive", false, "Use the faster frame cadence")
		noVideo    = flag.Bool("no-video", false, "Disable outbound frames")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("config load failed", "error", err)
		return 1
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *voice != "" {
		cfg.Voice = *voice
	}
	if *reactive {
		cfg.Video.Reactive = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		return 1
	}

	engineCfg := cfg.EngineConfig()

	var frames media.FrameSource
	if !*noVideo {
		source, err := media.NewScreenSource()
		if err != nil {
			logger.Warn("no frame source, continuing audio-only", "error", err)
		} else {
			frames = source
		}
	}

	captureCfg := media.DefaultCaptureConfig()
	captureCfg.BlockSize = engineCfg.AudioBlockSize
	captureCfg.Video = engineCfg.Video
	capture := media.NewCapture(captureCfg, frames, logger)

	speaker := media.NewSpeaker(live.PlaybackAudioConfig(), logger)

	registry := tools.NewRegistry(0, logger)
	locationDecl, locationHandler := tools.LocationTool(
		tools.StaticLocation{Lat: cfg.Location.Lat, Lon: cfg.Location.Lon},
		tools.NewGeocoder(cfg.GeocodeURL),
	)
	if err := registry.Register(locationDecl, locationHandler); err != nil {
		logger.Error("tool registration failed", "error", err)
		return 1
	}

	dialer := genlive.NewDialer(genlive.Config{
		APIKey:   cfg.APIKey,
		Endpoint: cfg.Endpoint,
	}, logger)

	engine := live.NewEngine(engineCfg, live.EngineDeps{
		Dialer: dialer,
		Source: capture,
		Sink:   speaker,
		Tools:  registry,
		Logger: logger,
		Callbacks: live.Callbacks{
			OnState: func(state live.SessionState) {
				logger.Info("session state", "state", state.String())
			},
			OnStatus: func(message string) {
				fmt.Fprintln(os.Stderr, message)
			},
			OnTranscript: func(text string) {
				fmt.Println(text)
			},
			OnThreat: func(active bool) {
				if active {
					// Terminal bell alongside the log line.
					fmt.Print("\a")
					logger.Warn("threat alert raised")
				} else {
					logger.Info("threat alert cleared")
				}
			},
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = engine.Start(ctx)
	cancel()
	if err != nil {
		logger.Error("session start failed", "error", err)
		return 1
	}
	logger.Info("session running", "session_id", engine.SessionID(), "model", cfg.Model)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	engine.Stop()
	return 0
}
