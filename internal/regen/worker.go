// Package regen processes deferred regeneration jobs from the SQLite job
// queue, so bulk invalidations (a settings change, an import) drain in the
// background instead of fanning out synchronous provider calls.
package regen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jstrand/ldgen/internal/pipeline"
	"github.com/jstrand/ldgen/internal/store"
)

// JobType is the queue type claimed by this worker.
const JobType = "regenerate"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job store.Job) error
	ClaimNextJob(types []string) (*store.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Generator runs the generation pipeline for one page.
type Generator interface {
	Generate(ctx context.Context, pageID string, opts pipeline.Options) (pipeline.Result, error)
}

// Worker drains regenerate jobs until its context is cancelled.
type Worker struct {
	store     JobStore
	generator Generator
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 2s;
// generation jobs are slow enough that tight polling buys nothing.
func NewWorker(store JobStore, generator Generator, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		store:     store,
		generator: generator,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

type regenPayload struct {
	PageID string `json:"page_id"`
	Force  bool   `json:"force,omitempty"`
}

// Enqueue schedules a deferred regeneration for a page.
func Enqueue(jobs JobStore, pageID string, force bool) (string, error) {
	payload, err := json.Marshal(regenPayload{PageID: pageID, Force: force})
	if err != nil {
		return "", err
	}
	job := newJob(string(payload))
	if err := jobs.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing regeneration for %s: %w", pageID, err)
	}
	return job.ID, nil
}

func newJob(payload string) store.Job {
	now := time.Now().UTC()
	return store.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: payload,
		Status:      "pending",
		MaxAttempts: 5,
		RunAfter:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single regenerate job. Returns true when a
// job was processed, regardless of its outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *store.Job) error {
	var payload regenPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if payload.PageID == "" {
		return fmt.Errorf("payload missing page_id")
	}

	res, err := w.generator.Generate(ctx, payload.PageID, pipeline.Options{Force: payload.Force})
	if err != nil {
		return err
	}

	switch res.Outcome {
	case pipeline.OutcomeGenerated, pipeline.OutcomeCached:
		w.logger.Info("regeneration done", "job_id", job.ID, "page_id", payload.PageID, "outcome", string(res.Outcome))
		return nil
	case pipeline.OutcomeContentTooShort:
		// Terminal for this content version; retrying cannot help.
		w.logger.Info("regeneration skipped, content too short", "job_id", job.ID, "page_id", payload.PageID)
		return nil
	case pipeline.OutcomeCooldown, pipeline.OutcomeRateLimited:
		return fmt.Errorf("throttled, retry in %s", res.RetryAfter.Round(time.Second))
	default:
		return fmt.Errorf("generation failed (%s): %w", res.ErrorKind, res.Err)
	}
}
