package diarize

import (
	"context"
	"errors"
	"testing"
)

func TestParseHelperOutput(t *testing.T) {
	out := []byte(`{"turns": [
		{"start": 0.0, "end": 4.2, "speaker": "SPEAKER_00"},
		{"start": 4.2, "end": 9.0, "speaker": "SPEAKER_01"}
	]}`)

	turns, err := ParseHelperOutput(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(turns))
	}
	if turns[0].StartMs != 0 || turns[0].EndMs != 4200 || turns[0].Speaker != "SPEAKER_00" {
		t.Errorf("first turn = %+v", turns[0])
	}
	if turns[1].StartMs != 4200 || turns[1].EndMs != 9000 {
		t.Errorf("second turn = %+v", turns[1])
	}
}

func TestParseHelperOutputRejectsGarbage(t *testing.T) {
	if _, err := ParseHelperOutput([]byte("RuntimeError: cuda out of memory")); err == nil {
		t.Error("expected error for non-JSON output")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		gated bool
	}{
		{"gated keyword", errors.New("gated model: access to pyannote not granted"), true},
		{"http 401", errors.New("python3 failed: HTTP Error 401: Unauthorized"), true},
		{"unauthorized", errors.New("unauthorized for url"), true},
		{"generic", errors.New("cuda out of memory"), false},
		{"missing dependency", errors.New("pyannote.audio not installed"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if errors.Is(got, ErrGated) != tt.gated {
				t.Errorf("ClassifyError(%v) gated = %v, want %v", tt.err, !tt.gated, tt.gated)
			}
		})
	}
}

func TestDiarizePassesTokenThroughEnv(t *testing.T) {
	var gotEnv []string
	d := &PyannoteDiarizer{
		python:    "python3",
		modelName: "pyannote/speaker-diarization-3.1",
		hfToken:   "hf_secret",
		run: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			gotEnv = env
			return []byte(`{"turns": []}`), nil
		},
	}

	turns, err := d.Diarize(context.Background(), "audio.wav")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("turns = %v, want empty", turns)
	}
	found := false
	for _, kv := range gotEnv {
		if kv == "HF_TOKEN=hf_secret" {
			found = true
		}
	}
	if !found {
		t.Error("HF_TOKEN not passed to helper environment")
	}
}

func TestDiarizeClassifiesGatedFailure(t *testing.T) {
	d := &PyannoteDiarizer{
		python:    "python3",
		modelName: "pyannote/speaker-diarization-3.1",
		run: func(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
			return nil, errors.New("python3 failed: gated model: access not granted")
		},
	}
	_, err := d.Diarize(context.Background(), "audio.wav")
	if !errors.Is(err, ErrGated) {
		t.Errorf("err = %v, want ErrGated", err)
	}
}

func TestAvailableRequiresModelName(t *testing.T) {
	d := &PyannoteDiarizer{python: "python3", modelName: ""}
	if d.Available() {
		t.Error("diarizer without a model name must not report available")
	}
}
