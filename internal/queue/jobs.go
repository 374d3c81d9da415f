package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	pendingBucket = "wt-jobs-pending"
	failedBucket  = "wt-jobs-failed"
)

// PendingJob is the broker-side record of an in-flight task. It exists
// from intake's enqueue until the worker acks or dead-letters the task.
type PendingJob struct {
	JobID      string    `json:"job_id"`
	ReID       string    `json:"re_id"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// FailedJob is the dead-letter record written after the retry budget is
// exhausted.
type FailedJob struct {
	JobID    string    `json:"job_id"`
	ReID     string    `json:"re_id"`
	Detail   string    `json:"detail"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// JobTracker keeps job state in two JetStream KV buckets. A job id in
// the pending bucket means processing, in the failed bucket means
// dead-lettered, and in neither means completed: there is no durable
// success record, completion is inferred from absence.
type JobTracker struct {
	pending jetstream.KeyValue
	failed  jetstream.KeyValue
}

func NewJobTracker(ctx context.Context, js jetstream.JetStream) (*JobTracker, error) {
	pending, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      pendingBucket,
		TTL:         24 * time.Hour,
		Description: "In-flight detection jobs",
	})
	if err != nil {
		return nil, fmt.Errorf("create pending bucket: %w", err)
	}

	failed, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      failedBucket,
		TTL:         7 * 24 * time.Hour,
		Description: "Dead-lettered detection jobs",
	})
	if err != nil {
		return nil, fmt.Errorf("create failed bucket: %w", err)
	}

	return &JobTracker{pending: pending, failed: failed}, nil
}

// MarkPending records the job before its task is published, so a poll
// racing the enqueue sees "processing" rather than a false "completed".
func (t *JobTracker) MarkPending(ctx context.Context, job PendingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal pending job: %w", err)
	}
	if _, err := t.pending.Put(ctx, job.JobID, data); err != nil {
		return fmt.Errorf("put pending job: %w", err)
	}
	return nil
}

// Attempt bumps the pending record's attempt counter after a failed
// delivery that will still be retried.
func (t *JobTracker) Attempt(ctx context.Context, jobID string, attempts int) error {
	job, err := t.GetPending(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	job.Attempts = attempts
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal pending job: %w", err)
	}
	if _, err := t.pending.Put(ctx, jobID, data); err != nil {
		return fmt.Errorf("update pending job: %w", err)
	}
	return nil
}

// Complete drops the pending record. From the resolver's point of view
// the job transitions to "completed".
func (t *JobTracker) Complete(ctx context.Context, jobID string) error {
	err := t.pending.Delete(ctx, jobID)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete pending job: %w", err)
	}
	return nil
}

// Fail moves the job to the dead-letter bucket with the captured error.
func (t *JobTracker) Fail(ctx context.Context, job FailedJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal failed job: %w", err)
	}
	if _, err := t.failed.Put(ctx, job.JobID, data); err != nil {
		return fmt.Errorf("put failed job: %w", err)
	}
	return t.Complete(ctx, job.JobID)
}

func (t *JobTracker) GetPending(ctx context.Context, jobID string) (*PendingJob, error) {
	entry, err := t.pending.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending job: %w", err)
	}
	job := &PendingJob{}
	if err := json.Unmarshal(entry.Value(), job); err != nil {
		return nil, fmt.Errorf("unmarshal pending job: %w", err)
	}
	return job, nil
}

func (t *JobTracker) GetFailed(ctx context.Context, jobID string) (*FailedJob, error) {
	entry, err := t.failed.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get failed job: %w", err)
	}
	job := &FailedJob{}
	if err := json.Unmarshal(entry.Value(), job); err != nil {
		return nil, fmt.Errorf("unmarshal failed job: %w", err)
	}
	return job, nil
}
