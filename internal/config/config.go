package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

// Config is loaded once at startup and passed explicitly to components.
type Config struct {
	Backend     BackendConfig
	Whisper     WhisperConfig
	Diarization DiarizationConfig
	Worker      WorkerConfig
}

type BackendConfig struct {
	// URLs is the ordered endpoint list the resolver probes at startup.
	URLs     []string `validate:"min=1,dive,url"`
	APIToken string
}

type WhisperConfig struct {
	Model       string `validate:"required"`
	Device      string `validate:"oneof=auto cpu cuda"`
	ComputeType string `validate:"required"`
}

type DiarizationConfig struct {
	Model      string
	HFToken    string
	MaxSec     int `validate:"min=0"`
	AutoAssign bool
}

type WorkerConfig struct {
	PollIntervalSec  int     `validate:"min=1"`
	ChunkDurationSec int     // <= 0 disables chunked transcription
	Simulate         bool    // force placeholder segments
	RealtimeFactor   float64 `validate:"gt=0"`
	LogLevel         string  `validate:"oneof=debug info warn error"`
}

// DefaultBackendURL is the local development backend; it doubles as the
// fallback host convention the endpoint resolver substitutes on probe
// failure.
const DefaultBackendURL = "http://localhost:5002/api"

func Load() (*Config, error) {
	readSecret("BACKEND_API_TOKEN")
	readSecret("HF_TOKEN")

	viper.AutomaticEnv()

	_ = viper.BindEnv("backend.urls", "BACKEND_URLS")
	_ = viper.BindEnv("backend.api_token", "BACKEND_API_TOKEN")
	_ = viper.BindEnv("whisper.model", "WHISPER_MODEL")
	_ = viper.BindEnv("whisper.device", "WHISPER_DEVICE")
	_ = viper.BindEnv("whisper.compute_type", "WHISPER_COMPUTE_TYPE")
	_ = viper.BindEnv("diarization.model", "DIARIZATION_MODEL")
	_ = viper.BindEnv("diarization.hf_token", "HF_TOKEN")
	_ = viper.BindEnv("diarization.max_sec", "DIARIZATION_MAX_SEC")
	_ = viper.BindEnv("diarization.auto_assign", "DIARIZATION_AUTO_ASSIGN")
	_ = viper.BindEnv("worker.poll_interval_sec", "POLL_INTERVAL_SEC")
	_ = viper.BindEnv("worker.chunk_duration_sec", "CHUNK_DURATION_SEC")
	_ = viper.BindEnv("worker.simulate", "SIMULATE_TRANSCRIPTION")
	_ = viper.BindEnv("worker.realtime_factor", "REALTIME_FACTOR")
	_ = viper.BindEnv("worker.log_level", "LOG_LEVEL")

	viper.SetDefault("backend.urls", "")
	viper.SetDefault("backend.api_token", "")
	viper.SetDefault("whisper.model", "small")
	viper.SetDefault("whisper.device", "auto")
	viper.SetDefault("whisper.compute_type", "int8")
	viper.SetDefault("diarization.model", "pyannote/speaker-diarization-3.1")
	viper.SetDefault("diarization.hf_token", "")
	viper.SetDefault("diarization.max_sec", 0)
	viper.SetDefault("diarization.auto_assign", true)
	viper.SetDefault("worker.poll_interval_sec", 5)
	viper.SetDefault("worker.chunk_duration_sec", 0)
	viper.SetDefault("worker.simulate", false)
	viper.SetDefault("worker.realtime_factor", 0.5)
	viper.SetDefault("worker.log_level", "info")

	cfg := &Config{
		Backend: BackendConfig{
			URLs:     splitURLs(viper.GetString("backend.urls")),
			APIToken: viper.GetString("backend.api_token"),
		},
		Whisper: WhisperConfig{
			Model:       viper.GetString("whisper.model"),
			Device:      viper.GetString("whisper.device"),
			ComputeType: viper.GetString("whisper.compute_type"),
		},
		Diarization: DiarizationConfig{
			Model:      viper.GetString("diarization.model"),
			HFToken:    viper.GetString("diarization.hf_token"),
			MaxSec:     viper.GetInt("diarization.max_sec"),
			AutoAssign: viper.GetBool("diarization.auto_assign"),
		},
		Worker: WorkerConfig{
			PollIntervalSec:  viper.GetInt("worker.poll_interval_sec"),
			ChunkDurationSec: viper.GetInt("worker.chunk_duration_sec"),
			Simulate:         viper.GetBool("worker.simulate"),
			RealtimeFactor:   viper.GetFloat64("worker.realtime_factor"),
			LogLevel:         viper.GetString("worker.log_level"),
		},
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// splitURLs parses the comma-separated BACKEND_URLS value, falling back to
// the single default endpoint when nothing is configured.
func splitURLs(raw string) []string {
	var urls []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			urls = append(urls, strings.TrimRight(part, "/"))
		}
	}
	if len(urls) == 0 {
		urls = []string{DefaultBackendURL}
	}
	return urls
}
