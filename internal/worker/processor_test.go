package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/watchtower/internal/models"
	"github.com/your-org/watchtower/internal/queue"
)

// memStore mirrors the upsert semantics of the Postgres store in memory:
// one aggregate row per (re_id, detection date), branch count driven by
// whether the branch already holds a fact for that person and day.
type memStore struct {
	persons map[string]*models.ReIDPerson
	seen    map[string]bool // re_id|date|branch_id
	facts   int
	events  int
	err     error
}

func newMemStore() *memStore {
	return &memStore{
		persons: make(map[string]*models.ReIDPerson),
		seen:    make(map[string]bool),
	}
}

func (s *memStore) upsert(reID string, branchID int64, ts time.Time, count int) *models.ReIDPerson {
	date := models.DetectionDateOf(ts)
	key := fmt.Sprintf("%s|%s", reID, date.Format("2006-01-02"))
	branchKey := fmt.Sprintf("%s|%d", key, branchID)

	p, ok := s.persons[key]
	if !ok {
		p = models.NewReIDPerson(reID, ts, count, nil)
		s.persons[key] = p
	} else {
		p.ApplyDetection(ts, count, !s.seen[branchKey])
	}
	s.seen[branchKey] = true
	return p
}

func (s *memStore) RecordDetection(_ context.Context, d *models.BranchDetection) (*models.ReIDPerson, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.facts++
	return s.upsert(d.ReID, d.BranchID, d.DetectionTimestamp, d.DetectedCount), nil
}

func (s *memStore) RecordEventLog(_ context.Context, e *models.EventLog) (*models.ReIDPerson, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.events++
	return s.upsert(e.ReID, e.BranchID, e.DetectionTimestamp, e.DetectedCount), nil
}

type memJobs struct {
	attempts  map[string]int
	completed []string
	failed    []queue.FailedJob
}

func newMemJobs() *memJobs { return &memJobs{attempts: make(map[string]int)} }

func (j *memJobs) Attempt(_ context.Context, jobID string, attempts int) error {
	j.attempts[jobID] = attempts
	return nil
}

func (j *memJobs) Complete(_ context.Context, jobID string) error {
	j.completed = append(j.completed, jobID)
	return nil
}

func (j *memJobs) Fail(_ context.Context, job queue.FailedJob) error {
	j.failed = append(j.failed, job)
	return nil
}

type memResults struct {
	published []*models.DetectionResult
	err       error
}

func (r *memResults) PublishResult(_ context.Context, res *models.DetectionResult) error {
	if r.err != nil {
		return r.err
	}
	r.published = append(r.published, res)
	return nil
}

func newTask(branchID int64) models.DetectionTask {
	return models.DetectionTask{
		JobID:              uuid.New(),
		Kind:               models.TaskKindDetection,
		ReID:               "person-001",
		BranchID:           branchID,
		DeviceID:           "CAM-1",
		DetectionTimestamp: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
		DetectedCount:      1,
	}
}

func personFor(s *memStore, reID string, ts time.Time) *models.ReIDPerson {
	key := fmt.Sprintf("%s|%s", reID, models.DetectionDateOf(ts).Format("2006-01-02"))
	return s.persons[key]
}

func TestProcessFirstDetection(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	results := &memResults{}
	p := NewProcessor(store, jobs, results, 3)

	task := newTask(1)
	require.NoError(t, p.Process(context.Background(), task, 1))

	person := personFor(store, task.ReID, task.DetectionTimestamp)
	require.NotNil(t, person)
	assert.Equal(t, 1, person.ActualCount)
	assert.Equal(t, 1, person.BranchCount)
	assert.Equal(t, 1, store.facts)
	assert.Equal(t, []string{task.JobID.String()}, jobs.completed)

	require.Len(t, results.published, 1)
	assert.Equal(t, task.JobID, results.published[0].JobID)
	assert.Equal(t, 1, results.published[0].BranchCount)
}

func TestProcessTwoBranchesSameDay(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	p := NewProcessor(store, jobs, &memResults{}, 3)

	a := newTask(1)
	b := newTask(2)
	b.DetectionTimestamp = a.DetectionTimestamp.Add(time.Hour)
	b.DetectedCount = 3

	require.NoError(t, p.Process(context.Background(), a, 1))
	require.NoError(t, p.Process(context.Background(), b, 1))

	person := personFor(store, a.ReID, a.DetectionTimestamp)
	assert.Equal(t, 4, person.ActualCount)
	assert.Equal(t, 2, person.BranchCount)
	assert.Equal(t, 2, store.facts)
}

func TestProcessSameBranchTwice(t *testing.T) {
	store := newMemStore()
	p := NewProcessor(store, newMemJobs(), &memResults{}, 3)

	a := newTask(1)
	b := newTask(1)
	b.DetectionTimestamp = a.DetectionTimestamp.Add(time.Hour)

	require.NoError(t, p.Process(context.Background(), a, 1))
	require.NoError(t, p.Process(context.Background(), b, 1))

	person := personFor(store, a.ReID, a.DetectionTimestamp)
	assert.Equal(t, 2, person.ActualCount)
	assert.Equal(t, 1, person.BranchCount, "repeat branch must not inflate branch count")
	assert.Equal(t, 2, store.facts, "every task appends its own fact row")
}

func TestProcessMixedKindsSameBranch(t *testing.T) {
	// Detection and event facts feed the same person aggregate: a branch
	// that already contributed through one fact family must not count
	// again through the other.
	store := newMemStore()
	p := NewProcessor(store, newMemJobs(), &memResults{}, 3)

	det := newTask(5)
	evt := newTask(5)
	evt.JobID = uuid.New()
	evt.Kind = models.TaskKindEvent
	evt.DetectionTimestamp = det.DetectionTimestamp.Add(time.Hour)

	require.NoError(t, p.Process(context.Background(), det, 1))
	require.NoError(t, p.Process(context.Background(), evt, 1))

	person := personFor(store, det.ReID, det.DetectionTimestamp)
	assert.Equal(t, 2, person.ActualCount)
	assert.Equal(t, 1, person.BranchCount, "one branch saw the person, whichever fact table recorded it")
	assert.Equal(t, 1, store.facts)
	assert.Equal(t, 1, store.events)

	// Reverse order: the event lands first, then the detection.
	store = newMemStore()
	p = NewProcessor(store, newMemJobs(), &memResults{}, 3)
	require.NoError(t, p.Process(context.Background(), evt, 1))
	require.NoError(t, p.Process(context.Background(), det, 1))

	person = personFor(store, det.ReID, det.DetectionTimestamp)
	assert.Equal(t, 1, person.BranchCount)
}

func TestProcessSeparateDays(t *testing.T) {
	store := newMemStore()
	p := NewProcessor(store, newMemJobs(), &memResults{}, 3)

	a := newTask(1)
	b := newTask(1)
	b.JobID = uuid.New()
	b.DetectionTimestamp = a.DetectionTimestamp.Add(24 * time.Hour)

	require.NoError(t, p.Process(context.Background(), a, 1))
	require.NoError(t, p.Process(context.Background(), b, 1))

	first := personFor(store, a.ReID, a.DetectionTimestamp)
	second := personFor(store, b.ReID, b.DetectionTimestamp)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.DetectionDate, second.DetectionDate)
	assert.Equal(t, 1, first.ActualCount)
	assert.Equal(t, 1, second.ActualCount)
}

func TestProcessRedeliveryDoublesCounters(t *testing.T) {
	// There is no queue-level dedupe: if the broker redelivers an already
	// committed task, counters move again. The fact table keeps both rows.
	store := newMemStore()
	p := NewProcessor(store, newMemJobs(), &memResults{}, 3)

	task := newTask(1)
	require.NoError(t, p.Process(context.Background(), task, 1))
	require.NoError(t, p.Process(context.Background(), task, 2))

	person := personFor(store, task.ReID, task.DetectionTimestamp)
	assert.Equal(t, 2, person.ActualCount)
	assert.Equal(t, 2, store.facts)
}

func TestProcessRetriesBeforeMaxDeliver(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	jobs := newMemJobs()
	p := NewProcessor(store, jobs, &memResults{}, 3)

	task := newTask(1)
	err := p.Process(context.Background(), task, 1)

	require.Error(t, err)
	assert.False(t, errors.Is(err, queue.ErrTerminal), "transient failure must be retryable")
	assert.Equal(t, 1, jobs.attempts[task.JobID.String()])
	assert.Empty(t, jobs.failed)
	assert.Empty(t, jobs.completed)
}

func TestProcessDeadLettersAtMaxDeliver(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection reset")
	jobs := newMemJobs()
	p := NewProcessor(store, jobs, &memResults{}, 3)

	task := newTask(1)
	err := p.Process(context.Background(), task, 3)

	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrTerminal))
	require.Len(t, jobs.failed, 1)
	assert.Equal(t, task.JobID.String(), jobs.failed[0].JobID)
	assert.Equal(t, 3, jobs.failed[0].Attempts)
	assert.Contains(t, jobs.failed[0].Detail, "connection reset")
}

func TestProcessMalformedTaskIsTerminal(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	p := NewProcessor(store, jobs, &memResults{}, 3)

	task := newTask(1)
	task.ReID = ""
	err := p.Process(context.Background(), task, 1)

	require.Error(t, err)
	assert.True(t, errors.Is(err, queue.ErrTerminal), "malformed task dead-letters on first delivery")
	assert.Equal(t, 0, store.facts)
	require.Len(t, jobs.failed, 1)

	task = newTask(1)
	task.DetectedCount = 0
	err = p.Process(context.Background(), task, 1)
	assert.True(t, errors.Is(err, queue.ErrTerminal))
}

func TestProcessEventKind(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	results := &memResults{}
	p := NewProcessor(store, jobs, results, 3)

	task := newTask(2)
	task.Kind = models.TaskKindEvent
	task.EventType = models.EventTypeAlert
	task.ImagePath = "detections/2026/09/01/abc.jpg"

	require.NoError(t, p.Process(context.Background(), task, 1))

	assert.Equal(t, 1, store.events)
	assert.Equal(t, 0, store.facts)
	person := personFor(store, task.ReID, task.DetectionTimestamp)
	require.NotNil(t, person, "event tasks feed the same person aggregate")
	assert.Equal(t, 1, person.ActualCount)

	require.Len(t, results.published, 1)
	assert.Equal(t, models.TaskKindEvent, results.published[0].Kind)
	assert.Equal(t, task.ImagePath, results.published[0].ImagePath)
}

func TestProcessResultPublishFailureStillSucceeds(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	results := &memResults{err: errors.New("stream unavailable")}
	p := NewProcessor(store, jobs, results, 3)

	task := newTask(1)
	require.NoError(t, p.Process(context.Background(), task, 1), "live feed publish is best-effort")
	assert.Equal(t, []string{task.JobID.String()}, jobs.completed)
}
