package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/watchtower/internal/models"
	"github.com/your-org/watchtower/internal/observability"
	"github.com/your-org/watchtower/internal/queue"
)

// Store is the transactional write surface the processor needs.
// *storage.PostgresStore satisfies it.
type Store interface {
	RecordDetection(ctx context.Context, d *models.BranchDetection) (*models.ReIDPerson, error)
	RecordEventLog(ctx context.Context, e *models.EventLog) (*models.ReIDPerson, error)
}

// Jobs tracks broker-side job state. *queue.JobTracker satisfies it.
type Jobs interface {
	Attempt(ctx context.Context, jobID string, attempts int) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, job queue.FailedJob) error
}

// ResultPublisher feeds the live feed stream. *queue.Producer satisfies it.
type ResultPublisher interface {
	PublishResult(ctx context.Context, res *models.DetectionResult) error
}

// Processor turns one queued task into its durable state transition:
// the person-aggregate upsert plus exactly one fact row, committed
// together by the store. Failures are retried by the broker until the
// delivery budget runs out, then dead-lettered.
type Processor struct {
	store      Store
	jobs       Jobs
	results    ResultPublisher
	maxDeliver int
}

func NewProcessor(store Store, jobs Jobs, results ResultPublisher, maxDeliver int) *Processor {
	return &Processor{store: store, jobs: jobs, results: results, maxDeliver: maxDeliver}
}

// Process handles one delivery of a task. attempt is the broker's
// 1-based delivery count for this message. A returned error wrapping
// queue.ErrTerminal tells the consumer to terminate the delivery
// instead of nacking it.
func (p *Processor) Process(ctx context.Context, task models.DetectionTask, attempt int) error {
	if err := validateTask(task); err != nil {
		// Malformed tasks never become valid; dead-letter on first sight.
		p.deadLetter(ctx, task, attempt, err)
		return fmt.Errorf("%w: %v", queue.ErrTerminal, err)
	}

	start := time.Now()
	person, err := p.record(ctx, task)
	observability.TaskDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if attempt >= p.maxDeliver {
			p.deadLetter(ctx, task, attempt, err)
			return fmt.Errorf("%w: %v", queue.ErrTerminal, err)
		}
		observability.TasksProcessed.WithLabelValues(string(task.Kind), "retry").Inc()
		if jerr := p.jobs.Attempt(ctx, task.JobID.String(), attempt); jerr != nil {
			slog.Warn("update job attempts", "job_id", task.JobID, "error", jerr)
		}
		return fmt.Errorf("process task %s: %w", task.JobID, err)
	}

	if err := p.jobs.Complete(ctx, task.JobID.String()); err != nil {
		slog.Warn("complete job", "job_id", task.JobID, "error", err)
	}

	res := &models.DetectionResult{
		JobID:              task.JobID,
		Kind:               task.Kind,
		ReID:               task.ReID,
		BranchID:           task.BranchID,
		DeviceID:           task.DeviceID,
		DetectionTimestamp: task.DetectionTimestamp,
		DetectedCount:      task.DetectedCount,
		BranchCount:        person.BranchCount,
		ActualCount:        person.ActualCount,
		ImagePath:          task.ImagePath,
	}
	if err := p.results.PublishResult(ctx, res); err != nil {
		slog.Warn("publish result", "job_id", task.JobID, "error", err)
	}

	observability.TasksProcessed.WithLabelValues(string(task.Kind), "success").Inc()
	return nil
}

func (p *Processor) record(ctx context.Context, task models.DetectionTask) (*models.ReIDPerson, error) {
	if task.Kind == models.TaskKindEvent {
		eventType := task.EventType
		if eventType == "" {
			eventType = models.EventTypeDetection
		}
		e := &models.EventLog{
			ReID:               task.ReID,
			BranchID:           task.BranchID,
			DeviceID:           task.DeviceID,
			EventType:          eventType,
			DetectionTimestamp: task.DetectionTimestamp,
			DetectedCount:      task.DetectedCount,
			EventData:          task.DetectionData,
			ImagePath:          task.ImagePath,
		}
		person, err := p.store.RecordEventLog(ctx, e)
		if err != nil {
			return nil, fmt.Errorf("record event log: %w", err)
		}
		return person, nil
	}

	d := &models.BranchDetection{
		ReID:               task.ReID,
		BranchID:           task.BranchID,
		DeviceID:           task.DeviceID,
		DetectionTimestamp: task.DetectionTimestamp,
		DetectedCount:      task.DetectedCount,
		DetectionData:      task.DetectionData,
	}
	person, err := p.store.RecordDetection(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("record detection: %w", err)
	}
	return person, nil
}

func (p *Processor) deadLetter(ctx context.Context, task models.DetectionTask, attempt int, cause error) {
	observability.TasksProcessed.WithLabelValues(string(task.Kind), "dead_letter").Inc()
	err := p.jobs.Fail(ctx, queue.FailedJob{
		JobID:    task.JobID.String(),
		ReID:     task.ReID,
		Detail:   cause.Error(),
		Attempts: attempt,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Error("record dead-lettered job", "job_id", task.JobID, "error", err)
	}
}

func validateTask(task models.DetectionTask) error {
	switch {
	case task.ReID == "":
		return fmt.Errorf("task missing re_id")
	case task.BranchID <= 0:
		return fmt.Errorf("task has invalid branch_id %d", task.BranchID)
	case task.DeviceID == "":
		return fmt.Errorf("task missing device_id")
	case task.DetectedCount < 1:
		return fmt.Errorf("task has invalid detected_count %d", task.DetectedCount)
	case task.DetectionTimestamp.IsZero():
		return fmt.Errorf("task missing detection_timestamp")
	}
	return nil
}
