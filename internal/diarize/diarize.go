package diarize

import (
	"context"
	"errors"
)

// Turn is one diarization output interval labeling the active speaker.
// Turns are transient; only their effect on participant assignment is
// persisted.
type Turn struct {
	StartMs int64
	EndMs   int64
	Speaker string
}

// ErrGated marks a permission failure on a gated model (missing or
// unaccepted Hugging Face access). Callers log it distinctly from generic
// inference failures.
var ErrGated = errors.New("diarization model is gated")

// Diarizer produces speaker turns for a wav file. Any conforming
// implementation, including a deterministic test double, must be
// substitutable.
type Diarizer interface {
	Available() bool
	Diarize(ctx context.Context, wavPath string) ([]Turn, error)
}
