// Package jobqueue runs changeset submissions on a River job queue so the
// chat handler can acknowledge immediately and let the host-side work (branch
// creation, file writes, change request) retry out of band.
package jobqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/changesmith/internal/conversation"
)

const defaultMaxWorkers = 2

// SubmitArgs identifies the conversation whose cached changeset should be
// submitted. The thread ID is enough: the worker reloads the conversation
// from the store, and the engine's idempotent submit makes duplicate
// deliveries harmless.
type SubmitArgs struct {
	ThreadID string `json:"thread_id"`
}

// Kind returns the job kind for River.
func (SubmitArgs) Kind() string {
	return "changeset_submit"
}

// SubmitWorker performs queued submissions through the conversation engine.
type SubmitWorker struct {
	river.WorkerDefaults[SubmitArgs]
	engine *conversation.Engine
}

// Work submits the conversation's cached changeset. Partial submissions are
// returned as errors so River retries them; the engine resumes from the
// already-created branch on the next attempt.
func (w *SubmitWorker) Work(ctx context.Context, job *river.Job[SubmitArgs]) error {
	log.Info().Str("thread_id", job.Args.ThreadID).Int("attempt", job.Attempt).
		Msg("Processing queued submission")

	reply, err := w.engine.Submit(ctx, job.Args.ThreadID)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", job.Args.ThreadID).Msg("Queued submission failed")
		return err
	}

	if reply.ChangeRequest != nil {
		log.Info().Str("thread_id", job.Args.ThreadID).
			Int("change_request", reply.ChangeRequest.Number).
			Msg("Queued submission completed")
	}
	return nil
}

// JobQueue manages the River client and its connection pool.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
}

// NewJobQueue creates a queue backed by the given postgres database with a
// single worker registered for changeset submissions.
func NewJobQueue(databaseURL string, maxWorkers int, engine *conversation.Engine) (*JobQueue, error) {
	if maxWorkers < 1 {
		maxWorkers = defaultMaxWorkers
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &SubmitWorker{engine: engine})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool}, nil
}

// Start starts the queue workers.
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the workers and closes the pool.
func (jq *JobQueue) Stop(ctx context.Context) error {
	err := jq.client.Stop(ctx)
	jq.pool.Close()
	return err
}

// EnqueueSubmit queues a submission for the given thread.
func (jq *JobQueue) EnqueueSubmit(ctx context.Context, threadID string) error {
	_, err := jq.client.Insert(ctx, SubmitArgs{ThreadID: threadID}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue submission for thread %s: %w", threadID, err)
	}
	return nil
}
