package worker

import (
	"context"
	"errors"
	"log"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/voxscribe/worker/internal/asr"
	"github.com/voxscribe/worker/internal/client"
	"github.com/voxscribe/worker/internal/config"
	"github.com/voxscribe/worker/internal/diarize"
	"github.com/voxscribe/worker/internal/model"
)

// Transcoder is the waveform-tooling surface the pipeline depends on.
type Transcoder interface {
	ToWav(ctx context.Context, inputPath, outPath string, maxSec int) error
	Split(ctx context.Context, wavPath string, chunkSec int, outDir string) ([]string, error)
	DurationMs(ctx context.Context, path string) (int64, error)
}

// Worker leases transcription jobs from the backend and processes them one
// at a time. Horizontal scale comes from running multiple worker
// processes; within one process no two jobs are ever in flight.
type Worker struct {
	cfg        *config.Config
	gateways   []client.Gateway
	engine     asr.Engine
	diarizer   diarize.Diarizer
	transcoder Transcoder

	persistAttempts int
	sleep           func(time.Duration)
	debug           bool
}

// New wires the worker. Engine and diarizer may be nil; the pipeline then
// degrades to placeholder transcription and skips diarization.
func New(cfg *config.Config, gateways []client.Gateway, engine asr.Engine, diarizer diarize.Diarizer, transcoder Transcoder) *Worker {
	return &Worker{
		cfg:             cfg,
		gateways:        gateways,
		engine:          engine,
		diarizer:        diarizer,
		transcoder:      transcoder,
		persistAttempts: defaultPersistAttempts,
		sleep:           time.Sleep,
		debug:           cfg.Worker.LogLevel == "debug",
	}
}

// Run drives the lease loop until the context is cancelled. An in-flight
// job is always finished before the loop exits.
func (w *Worker) Run(ctx context.Context) {
	pollInterval := time.Duration(w.cfg.Worker.PollIntervalSec) * time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		job, gw := w.sweep(ctx)
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		// Shutdown must never abort the pipeline mid-job: the leased job
		// runs on a detached context and finishes before the loop
		// observes the cancellation.
		w.processJob(context.WithoutCancel(ctx), gw, job)
	}
}

// sweep tries each resolved endpoint in order and returns the first leased
// job together with its home endpoint. Transport failures on an endpoint
// are logged and the sweep moves on.
func (w *Worker) sweep(ctx context.Context) (*model.Job, client.Gateway) {
	for _, gw := range w.gateways {
		job, err := gw.Lease(ctx)
		if err != nil {
			if !errors.Is(err, client.ErrNoJob) {
				log.Printf("Warning: lease failed on %s: %v", gw.BaseURL(), err)
			}
			continue
		}
		return job, gw
	}
	return nil, nil
}

// processJob runs the full pipeline for one leased job. All completion,
// failure, and progress calls go to the home endpoint that issued the
// lease. Panics and unclassified errors abandon the job; its lease
// expires server-side.
func (w *Worker) processJob(ctx context.Context, gw client.Gateway, job *model.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Error: job %s abandoned after panic: %v\n%s", job.ID, r, debug.Stack())
		}
	}()

	log.Printf("Info: leased job %s for media %s from %s", job.ID, job.MediaFileID, gw.BaseURL())

	workDir, err := os.MkdirTemp("", "voxscribe-"+uuid.NewString())
	if err != nil {
		log.Printf("Error: job %s abandoned, cannot create workspace: %v", job.ID, err)
		return
	}
	defer os.RemoveAll(workDir)

	med, err := w.fetchMedia(ctx, gw, job)
	if err != nil {
		log.Printf("Error: job %s abandoned, media fetch failed: %v", job.ID, err)
		return
	}

	segments := w.transcribe(ctx, gw, job, med, workDir)

	if !w.persistSegments(ctx, gw, job, segments) {
		// Job already transitioned to failed; move on to the next lease.
		return
	}

	w.alignSpeakers(ctx, gw, job, workDir)

	if _, err := gw.Complete(ctx, job.ID); err != nil {
		log.Printf("Error: job %s processed but completion call failed: %v", job.ID, err)
		return
	}
	log.Printf("Info: completed job %s (%d segments)", job.ID, len(segments))
}

func (w *Worker) debugf(format string, args ...any) {
	if w.debug {
		log.Printf("Debug: "+format, args...)
	}
}
