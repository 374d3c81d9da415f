package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/watchtower/internal/queue"
	"github.com/your-org/watchtower/pkg/dto"
)

type fakeJobStore struct {
	pending map[string]*queue.PendingJob
	failed  map[string]*queue.FailedJob
}

func (f *fakeJobStore) GetPending(_ context.Context, jobID string) (*queue.PendingJob, error) {
	return f.pending[jobID], nil
}

func (f *fakeJobStore) GetFailed(_ context.Context, jobID string) (*queue.FailedJob, error) {
	return f.failed[jobID], nil
}

func jobRouter(store *fakeJobStore) *gin.Engine {
	r := gin.New()
	r.GET("/v1/detections/jobs/:job_id", NewJobHandler(store).Status)
	return r
}

func getStatus(t *testing.T, r *gin.Engine, jobID string) (*httptest.ResponseRecorder, dto.JobStatusResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/v1/detections/jobs/"+jobID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp dto.JobStatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestJobStatusProcessing(t *testing.T) {
	id := uuid.NewString()
	store := &fakeJobStore{
		pending: map[string]*queue.PendingJob{id: {JobID: id, Attempts: 2}},
		failed:  map[string]*queue.FailedJob{},
	}

	w, resp := getStatus(t, jobRouter(store), id)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, 2, resp.Attempts)
}

func TestJobStatusFailed(t *testing.T) {
	id := uuid.NewString()
	store := &fakeJobStore{
		pending: map[string]*queue.PendingJob{},
		failed: map[string]*queue.FailedJob{
			id: {JobID: id, Attempts: 3, Detail: "record detection: connection reset"},
		},
	}

	w, resp := getStatus(t, jobRouter(store), id)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, 3, resp.Attempts)
	assert.Contains(t, resp.Detail, "connection reset")
}

func TestJobStatusCompletedByAbsence(t *testing.T) {
	store := &fakeJobStore{
		pending: map[string]*queue.PendingJob{},
		failed:  map[string]*queue.FailedJob{},
	}

	// An unknown-but-valid id reads as completed; the status store keeps
	// no success records, so the two cases are indistinguishable.
	w, resp := getStatus(t, jobRouter(store), uuid.NewString())

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "completed", resp.Status)
	assert.Zero(t, resp.Attempts)
}

func TestJobStatusInvalidID(t *testing.T) {
	store := &fakeJobStore{
		pending: map[string]*queue.PendingJob{},
		failed:  map[string]*queue.FailedJob{},
	}

	w, _ := getStatus(t, jobRouter(store), "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
