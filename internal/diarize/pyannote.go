package diarize

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

//go:embed assets/pyannote_diarize.py
var helperFS embed.FS

// PyannoteDiarizer runs pyannote speaker diarization through an embedded
// python helper emitting JSON.
type PyannoteDiarizer struct {
	python    string
	modelName string
	hfToken   string
	run       func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)
}

// NewPyannoteDiarizer creates the production diarizer. The python
// interpreter can be overridden with WORKER_PY.
func NewPyannoteDiarizer(modelName, hfToken string) *PyannoteDiarizer {
	python := os.Getenv("WORKER_PY")
	if python == "" {
		python = "python3"
	}
	return &PyannoteDiarizer{
		python:    python,
		modelName: modelName,
		hfToken:   hfToken,
		run:       execRun,
	}
}

func execRun(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
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

// Available reports whether the python interpreter and a model name are
// configured.
func (d *PyannoteDiarizer) Available() bool {
	if d.modelName == "" {
		return false
	}
	_, err := exec.LookPath(d.python)
	return err == nil
}

// helperOutput is the JSON contract of the python helper.
type helperOutput struct {
	Turns []struct {
		Start   float64 `json:"start"`
		End     float64 `json:"end"`
		Speaker string  `json:"speaker"`
	} `json:"turns"`
}

// Diarize runs the helper over a wav file and returns millisecond turns.
// Gated-model failures are wrapped in ErrGated so the caller can log them
// with actionable detail.
func (d *PyannoteDiarizer) Diarize(ctx context.Context, wavPath string) ([]Turn, error) {
	script, err := helperFS.ReadFile("assets/pyannote_diarize.py")
	if err != nil {
		return nil, fmt.Errorf("read embedded helper: %w", err)
	}
	scriptPath := filepath.Join(os.TempDir(), "voxscribe_pyannote.py")
	if err := os.WriteFile(scriptPath, script, 0o755); err != nil {
		return nil, fmt.Errorf("write helper script: %w", err)
	}
	defer os.Remove(scriptPath)

	env := append(os.Environ(), "HF_TOKEN="+d.hfToken)
	out, err := d.run(ctx, env, d.python, scriptPath,
		"--audio", wavPath,
		"--model", d.modelName,
	)
	if err != nil {
		return nil, ClassifyError(err)
	}

	return ParseHelperOutput(out)
}

// ParseHelperOutput decodes helper JSON into millisecond turns.
func ParseHelperOutput(out []byte) ([]Turn, error) {
	var parsed helperOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse helper output: %w", err)
	}

	turns := make([]Turn, 0, len(parsed.Turns))
	for _, t := range parsed.Turns {
		turns = append(turns, Turn{
			StartMs: int64(t.Start * 1000),
			EndMs:   int64(t.End * 1000),
			Speaker: t.Speaker,
		})
	}
	return turns, nil
}

// ClassifyError wraps permission/gating failures in ErrGated so they are
// distinguishable from generic inference errors.
func ClassifyError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "gated") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "access") && strings.Contains(msg, "not granted") ||
		strings.Contains(msg, "unauthorized") {
		return fmt.Errorf("%w: %v", ErrGated, err)
	}
	return err
}
