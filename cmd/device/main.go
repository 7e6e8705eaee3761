package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/VittorioRossetto/dogTrainer/internal/audio"
	"github.com/VittorioRossetto/dogTrainer/internal/config"
	"github.com/VittorioRossetto/dogTrainer/internal/device"
	"github.com/VittorioRossetto/dogTrainer/internal/retry"
	"github.com/VittorioRossetto/dogTrainer/internal/servo"
	"github.com/VittorioRossetto/dogTrainer/internal/session"
	"github.com/VittorioRossetto/dogTrainer/internal/vision"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	link := device.NewLink(cfg.Device.HubWSURL, cfg.Device.Name, retry.Fixed(cfg.Device.ReconnectInterval))
	if statusURL, err := device.StatusURLFromWS(cfg.Device.HubWSURL); err == nil {
		link.SetStatusFallback(statusURL)
	} else {
		log.Printf("warning: no HTTP fallback: %v", err)
	}

	actuator := servo.NewSim(servo.Config{
		TreatAngle: cfg.Device.TreatAngle,
		RestAngle:  cfg.Device.RestAngle,
	})
	defer func() {
		if err := actuator.Stop(); err != nil {
			log.Printf("warning: servo stop failed: %v", err)
		}
	}()

	var player audio.Player = audio.NewExecPlayer()
	if !cfg.Device.AudioEnabled {
		log.Println("audio output disabled, playback requests will be logged only")
		player = audio.NopPlayer{}
	}

	ctrl := session.New(session.Config{
		Mode:          cfg.Device.Mode,
		TreatWindow:   cfg.Device.TreatWindow,
		TreatCooldown: cfg.Device.TreatCooldown,
		RecordingsDir: cfg.Device.RecordingsDir,
	}, actuator, player, link)

	link.OnCommand(ctrl.HandleCommand)
	go func() {
		if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("hub link stopped: %v", err)
		}
	}()

	// Observations arrive as JSON lines on stdin, one per control cycle,
	// piped from the external detector process.
	src := vision.NewStreamSource(os.Stdin)
	defer src.Close()

	log.Printf("device running in %s mode", cfg.Device.Mode)
	if err := device.Loop(ctx, src, ctrl); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("control loop error: %v", err)
	}
}
