package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/voxscribe/worker/internal/asr"
	"github.com/voxscribe/worker/internal/client"
	"github.com/voxscribe/worker/internal/config"
	"github.com/voxscribe/worker/internal/diarize"
	"github.com/voxscribe/worker/internal/media"
	"github.com/voxscribe/worker/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Resolve backend endpoints once per process lifetime
	resolved := client.NewResolver(cfg.Backend.APIToken).Resolve(ctx, cfg.Backend.URLs)
	gateways := make([]client.Gateway, 0, len(resolved))
	for _, addr := range resolved {
		gateways = append(gateways, client.NewBackendClient(addr, cfg.Backend.APIToken))
	}

	// Transcription engine (optional - pipeline degrades to placeholders)
	var engine asr.Engine
	whisper := asr.NewWhisperEngine(cfg.Whisper.Device, cfg.Whisper.ComputeType)
	if whisper.Available() {
		engine = whisper
	} else {
		log.Println("Warning: transcription engine unavailable, placeholder segments will be used")
	}

	// Diarizer (optional - speaker assignment is skipped without it)
	var diarizer diarize.Diarizer
	pyannote := diarize.NewPyannoteDiarizer(cfg.Diarization.Model, cfg.Diarization.HFToken)
	if pyannote.Available() {
		diarizer = pyannote
	} else {
		log.Println("Info: diarization not configured, speaker assignment disabled")
	}

	log.Printf("Info: worker starting. Backends: %s, model: %s, chunking: %ds, simulate: %v",
		strings.Join(resolved, ", "), cfg.Whisper.Model, cfg.Worker.ChunkDurationSec, cfg.Worker.Simulate)

	w := worker.New(cfg, gateways, engine, diarizer, media.NewTranscoder())
	w.Run(ctx)

	log.Println("Info: worker stopped")
}
