package asr

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

//go:embed assets/faster_whisper.py
var helperFS embed.FS

// runner abstracts subprocess execution for testability.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("%s failed: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, err
	}
	return out, nil
}

// WhisperEngine runs faster-whisper through an embedded python helper
// emitting JSON on stdout.
type WhisperEngine struct {
	python      string
	device      string
	computeType string
	run         runner
}

// NewWhisperEngine creates the production engine. The python interpreter
// can be overridden with WORKER_PY.
func NewWhisperEngine(device, computeType string) *WhisperEngine {
	python := os.Getenv("WORKER_PY")
	if python == "" {
		python = "python3"
	}
	return &WhisperEngine{
		python:      python,
		device:      device,
		computeType: computeType,
		run:         execRun,
	}
}

// Available reports whether the python interpreter can be found. Model
// availability is checked by Load.
func (e *WhisperEngine) Available() bool {
	_, err := exec.LookPath(e.python)
	return err == nil
}

// Load verifies the named model can actually be constructed before any
// chunk is processed, so a bad model name degrades the whole run instead
// of failing chunk by chunk.
func (e *WhisperEngine) Load(ctx context.Context, modelName string) (Model, error) {
	scriptPath, cleanup, err := writeHelper()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	_, err = e.run(ctx, e.python, scriptPath,
		"--audio", "unused",
		"--model", modelName,
		"--device", e.device,
		"--compute-type", e.computeType,
		"--check",
	)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", modelName, err)
	}

	return &whisperModel{engine: e, modelName: modelName}, nil
}

type whisperModel struct {
	engine    *WhisperEngine
	modelName string
}

// helperOutput is the JSON contract of the python helper.
type helperOutput struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe runs one inference pass over a wav file and converts the
// engine's second-based spans to milliseconds.
func (m *whisperModel) Transcribe(ctx context.Context, wavPath, language string) ([]Span, error) {
	scriptPath, cleanup, err := writeHelper()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := []string{scriptPath,
		"--audio", wavPath,
		"--model", m.modelName,
		"--device", m.engine.device,
		"--compute-type", m.engine.computeType,
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	out, err := m.engine.run(ctx, m.engine.python, args...)
	if err != nil {
		return nil, err
	}

	return ParseHelperOutput(out)
}

// ParseHelperOutput decodes helper JSON into millisecond spans, trimming
// text whitespace.
func ParseHelperOutput(out []byte) ([]Span, error) {
	var parsed helperOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse helper output: %w", err)
	}

	spans := make([]Span, 0, len(parsed.Segments))
	for _, s := range parsed.Segments {
		spans = append(spans, Span{
			StartMs: int64(s.Start * 1000),
			EndMs:   int64(s.End * 1000),
			Text:    strings.TrimSpace(s.Text),
		})
	}
	return spans, nil
}

// writeHelper materializes the embedded helper script in a temp location.
func writeHelper() (string, func(), error) {
	script, err := helperFS.ReadFile("assets/faster_whisper.py")
	if err != nil {
		return "", nil, fmt.Errorf("read embedded helper: %w", err)
	}
	path := filepath.Join(os.TempDir(), "voxscribe_faster_whisper.py")
	if err := os.WriteFile(path, script, 0o755); err != nil {
		return "", nil, fmt.Errorf("write helper script: %w", err)
	}
	return path, func() { os.Remove(path) }, nil
}
