package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/voxscribe/worker/internal/client"
	"github.com/voxscribe/worker/internal/model"
)

const (
	defaultPersistAttempts = 3
	initialBackoff         = 2 * time.Second
)

// persistSegments posts the full segment batch with bounded retry and
// doubling backoff. On exhaustion the job is explicitly transitioned to
// failed and the worker moves on; the return value tells the caller
// whether the batch landed.
func (w *Worker) persistSegments(ctx context.Context, gw client.Gateway, job *model.Job, segments []model.Segment) bool {
	delay := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= w.persistAttempts; attempt++ {
		count, err := gw.PostSegments(ctx, job.MediaFileID, segments)
		if err == nil {
			log.Printf("Info: persisted %d segments for job %s", count, job.ID)
			return true
		}
		lastErr = err
		log.Printf("Warning: segment insert attempt %d/%d failed for job %s: %v", attempt, w.persistAttempts, job.ID, err)
		if attempt < w.persistAttempts {
			w.sleep(delay)
			delay *= 2
		}
	}

	msg := fmt.Sprintf("segment insert failed after %d attempts: %v", w.persistAttempts, lastErr)
	if _, err := gw.Fail(ctx, job.ID, msg); err != nil {
		log.Printf("Error: failed to mark job %s as failed: %v", job.ID, err)
	}
	return false
}
