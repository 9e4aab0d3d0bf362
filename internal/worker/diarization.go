package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/voxscribe/worker/internal/client"
	"github.com/voxscribe/worker/internal/diarize"
	"github.com/voxscribe/worker/internal/model"
)

// alignSpeakers runs diarization and participant assignment. Every failure
// here is non-fatal: a job can complete with transcription but without
// speaker labels.
func (w *Worker) alignSpeakers(ctx context.Context, gw client.Gateway, job *model.Job, workDir string) {
	if w.diarizer == nil || !w.diarizer.Available() {
		log.Printf("Info: diarization unavailable, skipping speaker assignment for job %s", job.ID)
		return
	}

	if err := w.runDiarization(ctx, gw, job, workDir); err != nil {
		if errors.Is(err, diarize.ErrGated) {
			log.Printf("Warning: diarization skipped for job %s: model access is gated, accept the model license and set HF_TOKEN: %v", job.ID, err)
			return
		}
		log.Printf("Warning: diarization failed for job %s: %v", job.ID, err)
	}
}

func (w *Worker) runDiarization(ctx context.Context, gw client.Gateway, job *model.Job, workDir string) error {
	raw, err := gw.Download(ctx, job.MediaFileID)
	if err != nil {
		return fmt.Errorf("fetch media: %w", err)
	}

	inputPath := filepath.Join(workDir, "diarize_input")
	if err := os.WriteFile(inputPath, raw, 0o644); err != nil {
		return fmt.Errorf("write media to workspace: %w", err)
	}
	// Transcoded independently of the ASR path; MaxSec caps inference cost
	// on long media.
	wavPath := filepath.Join(workDir, "diarize_16k.wav")
	if err := w.transcoder.ToWav(ctx, inputPath, wavPath, w.cfg.Diarization.MaxSec); err != nil {
		return err
	}

	turns, err := w.diarizer.Diarize(ctx, wavPath)
	if err != nil {
		return err
	}
	log.Printf("Info: diarization produced %d turns for job %s", len(turns), job.ID)

	if !w.cfg.Diarization.AutoAssign || len(turns) == 0 {
		return nil
	}

	participants, err := w.ensureParticipants(ctx, gw, job.MediaFileID, turns)
	if err != nil {
		return err
	}

	for _, turn := range turns {
		p := participants[turn.Speaker]
		start, end := turn.StartMs, turn.EndMs
		req := &client.AssignRequest{ParticipantID: p.ID, StartMs: &start, EndMs: &end}
		if err := gw.AssignParticipant(ctx, job.MediaFileID, req); err != nil {
			log.Printf("Warning: turn assignment [%d,%d) to %s failed for job %s: %v", start, end, p.Name, job.ID, err)
		}
	}

	return w.fillUnassigned(ctx, gw, job.MediaFileID, turns, participants)
}

// firstSeenLabels returns distinct speaker labels in first-seen order.
// That order, not lexical or engine-internal order, drives default
// participant numbering.
func firstSeenLabels(turns []diarize.Turn) []string {
	seen := make(map[string]bool, len(turns))
	var labels []string
	for _, turn := range turns {
		if !seen[turn.Speaker] {
			seen[turn.Speaker] = true
			labels = append(labels, turn.Speaker)
		}
	}
	return labels
}

// ensureParticipants reuses existing participants by canonicalKey
// (preserving user renames) and creates "Participant N" records for new
// labels, N being the label's 1-based first-seen rank.
func (w *Worker) ensureParticipants(ctx context.Context, gw client.Gateway, mediaID string, turns []diarize.Turn) (map[string]model.Participant, error) {
	existing, err := gw.GetParticipants(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("get participants: %w", err)
	}
	byKey := make(map[string]model.Participant, len(existing))
	for _, p := range existing {
		byKey[p.CanonicalKey] = p
	}

	participants := make(map[string]model.Participant)
	for rank, label := range firstSeenLabels(turns) {
		if p, ok := byKey[label]; ok {
			participants[label] = p
			continue
		}
		p, err := gw.CreateParticipant(ctx, mediaID, fmt.Sprintf("Participant %d", rank+1), label)
		if err != nil {
			return nil, fmt.Errorf("create participant for label %q: %w", label, err)
		}
		participants[label] = *p
	}
	return participants, nil
}

// fillUnassigned assigns every segment still without a participant to the
// turn whose center is nearest its midpoint, batched in one call per
// participant. There is deliberately no maximum distance: if at least one
// turn exists, no segment stays unassigned.
func (w *Worker) fillUnassigned(ctx context.Context, gw client.Gateway, mediaID string, turns []diarize.Turn, participants map[string]model.Participant) error {
	segments, err := gw.GetSegments(ctx, mediaID)
	if err != nil {
		return fmt.Errorf("get segments: %w", err)
	}

	byParticipant := make(map[string][]string)
	for _, seg := range segments {
		if seg.ParticipantID != "" {
			continue
		}
		mid := (seg.StartMs + seg.EndMs) / 2
		turn := turns[nearestTurnIndex(turns, mid)]
		p := participants[turn.Speaker]
		byParticipant[p.ID] = append(byParticipant[p.ID], seg.ID)
	}

	for participantID, segmentIDs := range byParticipant {
		req := &client.AssignRequest{ParticipantID: participantID, SegmentIDs: segmentIDs}
		if err := gw.AssignParticipant(ctx, mediaID, req); err != nil {
			log.Printf("Warning: fill-pass assignment of %d segments to participant %s failed: %v", len(segmentIDs), participantID, err)
		}
	}
	return nil
}

// nearestTurnIndex returns the index of the turn whose center is closest
// to midMs. The strict comparison keeps the earliest turn on ties.
func nearestTurnIndex(turns []diarize.Turn, midMs int64) int {
	best := 0
	bestDist := absInt64((turns[0].StartMs+turns[0].EndMs)/2 - midMs)
	for i := 1; i < len(turns); i++ {
		dist := absInt64((turns[i].StartMs+turns[i].EndMs)/2 - midMs)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
