package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/watchtower/internal/queue"
	"github.com/your-org/watchtower/pkg/dto"
)

// JobStore is the read side of the broker's job state.
// *queue.JobTracker satisfies it.
type JobStore interface {
	GetPending(ctx context.Context, jobID string) (*queue.PendingJob, error)
	GetFailed(ctx context.Context, jobID string) (*queue.FailedJob, error)
}

type JobHandler struct {
	jobs JobStore
}

func NewJobHandler(jobs JobStore) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// Status resolves a job id against the broker's pending and failed
// stores, in that order. A job found in neither reads as "completed":
// there is no durable success record, so absence is conflated with
// completion (including an id that was never issued).
func (h *JobHandler) Status(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	pending, err := h.jobs.GetPending(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if pending != nil {
		c.JSON(http.StatusOK, dto.JobStatusResponse{
			JobID:    jobID,
			Status:   "processing",
			Attempts: pending.Attempts,
		})
		return
	}

	failed, err := h.jobs.GetFailed(c.Request.Context(), jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if failed != nil {
		c.JSON(http.StatusInternalServerError, dto.JobStatusResponse{
			JobID:    jobID,
			Status:   "failed",
			Attempts: failed.Attempts,
			Detail:   failed.Detail,
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobStatusResponse{JobID: jobID, Status: "completed"})
}
