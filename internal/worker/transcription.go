package worker

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/voxscribe/worker/internal/asr"
	"github.com/voxscribe/worker/internal/client"
	"github.com/voxscribe/worker/internal/model"
)

const (
	// Placeholder pacing for textual content.
	placeholderChunkWords = 8
	msPerWord             = 320
	interSegmentGapMs     = 120
	placeholderSegmentCap = 500

	// Placeholder shape for binary content.
	binaryPlaceholderCount = 12
	// 256 kbit/s compressed-bitrate heuristic for duration estimation.
	bytesPerMs   = 32
	binaryTrimMs = 200

	// Progress cadence on the unchunked real path.
	progressEverySegments = 10
)

// transcribe produces a non-empty ordered segment batch for the job. It
// never fails past this boundary: any real-path problem degrades to the
// deterministic placeholder sequence.
func (w *Worker) transcribe(ctx context.Context, gw client.Gateway, job *model.Job, med *jobMedia, workDir string) []model.Segment {
	if w.cfg.Worker.Simulate || w.engine == nil || !w.engine.Available() {
		if !w.cfg.Worker.Simulate {
			log.Printf("Warning: transcription engine unavailable, using placeholder segments for job %s", job.ID)
		}
		return w.placeholderSegments(med)
	}

	segments, err := w.realTranscribe(ctx, gw, job, med, workDir)
	if err != nil {
		log.Printf("Warning: transcription failed for job %s, falling back to placeholders: %v", job.ID, err)
		return w.placeholderSegments(med)
	}
	if len(segments) == 0 {
		log.Printf("Warning: transcription produced no segments for job %s, falling back to placeholders", job.ID)
		return w.placeholderSegments(med)
	}
	return segments
}

// realTranscribe runs the ASR engine over a normalized waveform, chunked
// or whole depending on configuration.
func (w *Worker) realTranscribe(ctx context.Context, gw client.Gateway, job *model.Job, med *jobMedia, workDir string) ([]model.Segment, error) {
	// The real path always works from its own copy of the raw bytes.
	raw, err := gw.Download(ctx, job.MediaFileID)
	if err != nil {
		return nil, fmt.Errorf("re-fetch media: %w", err)
	}

	inputPath := filepath.Join(workDir, "input"+filepath.Ext(med.meta.OriginalFilename))
	if err := os.WriteFile(inputPath, raw, 0o644); err != nil {
		return nil, fmt.Errorf("write media to workspace: %w", err)
	}

	wavPath := filepath.Join(workDir, "audio_16k.wav")
	if err := w.transcoder.ToWav(ctx, inputPath, wavPath, 0); err != nil {
		return nil, err
	}

	modelName := job.Model
	if modelName == "" {
		modelName = w.cfg.Whisper.Model
	}
	mdl, err := w.engine.Load(ctx, modelName)
	if err != nil {
		return nil, err
	}

	totalMs := w.totalDurationMs(ctx, med, wavPath)

	if w.cfg.Worker.ChunkDurationSec <= 0 {
		return w.transcribeWhole(ctx, gw, job, mdl, wavPath, totalMs)
	}
	return w.transcribeChunked(ctx, gw, job, mdl, wavPath, workDir, totalMs)
}

// totalDurationMs estimates total audio duration for progress math:
// declared metadata duration when present, otherwise an ffprobe of the
// transcoded waveform. 0 means unknown.
func (w *Worker) totalDurationMs(ctx context.Context, med *jobMedia, wavPath string) int64 {
	if med.meta.DurationSec != nil && *med.meta.DurationSec > 0 {
		return int64(*med.meta.DurationSec * 1000)
	}
	ms, err := w.transcoder.DurationMs(ctx, wavPath)
	if err != nil {
		w.debugf("duration probe failed: %v", err)
		return 0
	}
	return ms
}

// transcribeWhole runs the engine once over the full waveform.
func (w *Worker) transcribeWhole(ctx context.Context, gw client.Gateway, job *model.Job, mdl asr.Model, wavPath string, totalMs int64) ([]model.Segment, error) {
	spans, err := mdl.Transcribe(ctx, wavPath, job.LanguageHint)
	if err != nil {
		return nil, err
	}

	segments := make([]model.Segment, 0, len(spans))
	for _, span := range spans {
		segments = append(segments, newSegment(len(segments), span, 0))
		if len(segments)%progressEverySegments == 0 {
			processed := segments[len(segments)-1].EndMs
			w.pushProgress(ctx, gw, job.ID, processed, totalMs)
		}
	}
	return segments, nil
}

// transcribeChunked splits the waveform into fixed-duration chunks and
// processes them strictly in index order, offsetting every span by
// chunkIndex x chunkDurationMs. One chunk's failure is skipped, not
// fatal, and progress still advances past it.
func (w *Worker) transcribeChunked(ctx context.Context, gw client.Gateway, job *model.Job, mdl asr.Model, wavPath, workDir string, totalMs int64) ([]model.Segment, error) {
	chunkDir := filepath.Join(workDir, "chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk directory: %w", err)
	}

	chunkSec := w.cfg.Worker.ChunkDurationSec
	chunkMs := int64(chunkSec) * 1000
	chunks, err := w.transcoder.Split(ctx, wavPath, chunkSec, chunkDir)
	if err != nil {
		return nil, err
	}

	var segments []model.Segment
	for i, chunkPath := range chunks {
		spans, err := mdl.Transcribe(ctx, chunkPath, job.LanguageHint)
		if err != nil {
			log.Printf("Warning: chunk %d/%d failed for job %s, skipping: %v", i+1, len(chunks), job.ID, err)
		} else {
			offset := int64(i) * chunkMs
			for _, span := range spans {
				segments = append(segments, newSegment(len(segments), span, offset))
			}
			w.debugf("chunk %d/%d emitted %d spans for job %s", i+1, len(chunks), len(spans), job.ID)
		}

		// A skipped chunk still counts as processed.
		processed := int64(i)*chunkMs + chunkMs
		if totalMs > 0 && processed > totalMs {
			processed = totalMs
		}
		w.pushProgress(ctx, gw, job.ID, processed, totalMs)
	}
	return segments, nil
}

func newSegment(idx int, span asr.Span, offsetMs int64) model.Segment {
	return model.Segment{
		ID:      uuid.NewString(),
		Idx:     idx,
		StartMs: span.StartMs + offsetMs,
		EndMs:   span.EndMs + offsetMs,
		Text:    strings.TrimSpace(span.Text),
	}
}

// pushProgress sends a best-effort progress update; failures are swallowed.
func (w *Worker) pushProgress(ctx context.Context, gw client.Gateway, jobID string, processedMs, totalMs int64) {
	upd := &model.ProgressUpdate{ProcessedMs: &processedMs}
	if totalMs > 0 {
		eta := etaSeconds(totalMs, processedMs, w.cfg.Worker.RealtimeFactor)
		upd.TotalMs = &totalMs
		upd.EtaSeconds = &eta
	}
	if err := gw.Progress(ctx, jobID, upd); err != nil {
		w.debugf("progress push failed for job %s: %v", jobID, err)
	}
}

// etaSeconds estimates remaining processing time assuming the engine runs
// at the configured realtime factor.
func etaSeconds(totalMs, processedMs int64, realtimeFactor float64) int64 {
	eta := int64(math.Floor(float64(totalMs-processedMs) / (1000 * realtimeFactor)))
	if eta < 1 {
		eta = 1
	}
	return eta
}

// placeholderSegments synthesizes the deterministic fallback batch.
func (w *Worker) placeholderSegments(med *jobMedia) []model.Segment {
	if med.textual {
		if segments := textPlaceholders(med.text); len(segments) > 0 {
			return segments
		}
	}
	return binaryPlaceholders(len(med.raw), med.meta.DurationSec)
}

// textPlaceholders splits text into fixed-size word chunks with synthetic
// pacing: one segment per chunk, msPerWord per word, a fixed gap between
// segments, capped at placeholderSegmentCap segments.
func textPlaceholders(text string) []model.Segment {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var segments []model.Segment
	var cursor int64
	for start := 0; start < len(words) && len(segments) < placeholderSegmentCap; start += placeholderChunkWords {
		end := start + placeholderChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := words[start:end]

		if len(segments) > 0 {
			cursor += interSegmentGapMs
		}
		durMs := int64(len(chunk)) * msPerWord
		segments = append(segments, model.Segment{
			ID:      uuid.NewString(),
			Idx:     len(segments),
			StartMs: cursor,
			EndMs:   cursor + durMs,
			Text:    strings.Join(chunk, " "),
		})
		cursor += durMs
	}
	return segments
}

// binaryPlaceholders synthesizes equal-length segments spanning an
// estimated total duration: the declared media duration when known,
// otherwise a compressed-bitrate estimate from the byte size. Only the
// byte estimate is floored at one second per segment; a short declared
// duration is kept as-is and the trim shrinks so slots stay positive.
func binaryPlaceholders(byteLen int, durationSec *float64) []model.Segment {
	var totalMs int64
	if durationSec != nil && *durationSec > 0 {
		totalMs = int64(*durationSec * 1000)
	} else {
		totalMs = int64(byteLen) / bytesPerMs
		if floor := int64(binaryPlaceholderCount) * 1000; totalMs < floor {
			totalMs = floor
		}
	}

	slotMs := totalMs / binaryPlaceholderCount
	if slotMs < 1 {
		slotMs = 1
	}
	trimMs := int64(binaryTrimMs)
	if trimMs >= slotMs {
		trimMs = slotMs / 2
	}

	segments := make([]model.Segment, 0, binaryPlaceholderCount)
	for i := 0; i < binaryPlaceholderCount; i++ {
		start := int64(i) * slotMs
		segments = append(segments, model.Segment{
			ID:      uuid.NewString(),
			Idx:     i,
			StartMs: start,
			EndMs:   start + slotMs - trimMs,
			Text:    fmt.Sprintf("(untranscribed audio %d/%d)", i+1, binaryPlaceholderCount),
		})
	}
	return segments
}
