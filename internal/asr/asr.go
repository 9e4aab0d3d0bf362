package asr

import "context"

// Span is one engine-reported stretch of transcribed speech, already
// converted to milliseconds.
type Span struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// Model is a loaded speech-to-text model ready for inference. Any
// conforming implementation, including a deterministic test double, must
// be substitutable.
type Model interface {
	Transcribe(ctx context.Context, wavPath, language string) ([]Span, error)
}

// Engine resolves named models. Load is separate from inference so model
// availability is checked once up front and a load failure can degrade
// differently from a per-chunk inference failure.
type Engine interface {
	Available() bool
	Load(ctx context.Context, modelName string) (Model, error)
}
