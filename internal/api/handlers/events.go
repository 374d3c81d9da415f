package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/watchtower/internal/models"
	"github.com/your-org/watchtower/internal/storage"
	"github.com/your-org/watchtower/pkg/dto"
)

type EventHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore
}

func NewEventHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *EventHandler {
	return &EventHandler{db: db, minio: minio}
}

func (h *EventHandler) List(c *gin.Context) {
	var branchID *int64
	if bStr := c.Query("branch_id"); bStr != "" {
		id, err := strconv.ParseInt(bStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch_id"})
			return
		}
		branchID = &id
	}

	from, to, ok := parseTimeRange(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, total, err := h.db.QueryEventLogs(c.Request.Context(), branchID, c.Query("re_id"),
		models.EventType(c.Query("event_type")), from, to, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.EventLogResponse, 0, len(events))
	for _, e := range events {
		r := dto.EventLogResponse{
			ID:                 e.ID,
			ReID:               e.ReID,
			BranchID:           e.BranchID,
			DeviceID:           e.DeviceID,
			EventType:          string(e.EventType),
			DetectionTimestamp: e.DetectionTimestamp.Format(time.RFC3339),
			DetectedCount:      e.DetectedCount,
			EventData:          e.EventData,
			ImageSent:          e.ImageSent,
			MessageSent:        e.MessageSent,
			NotificationSent:   e.NotificationSent,
			CreatedAt:          e.CreatedAt.Format(time.RFC3339),
		}
		if e.ImagePath != "" {
			r.ImageURL = "/v1/events/" + e.ID.String() + "/image"
		}
		resp = append(resp, r)
	}

	c.JSON(http.StatusOK, dto.EventLogListResponse{Events: resp, Total: total})
}

// Image proxies the stored detection image from MinIO.
func (h *EventHandler) Image(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event id"})
		return
	}

	event, err := h.db.GetEventLog(c.Request.Context(), eventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if event == nil || event.ImagePath == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), event.ImagePath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}
