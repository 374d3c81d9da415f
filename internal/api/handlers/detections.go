package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/watchtower/internal/storage"
	"github.com/your-org/watchtower/pkg/dto"
)

type DetectionHandler struct {
	db *storage.PostgresStore
}

func NewDetectionHandler(db *storage.PostgresStore) *DetectionHandler {
	return &DetectionHandler{db: db}
}

// parseTimeRange reads the optional from/to RFC3339 query filters.
// A value that does not parse is a caller error, not a filter to skip.
func parseTimeRange(c *gin.Context) (from, to *time.Time, ok bool) {
	if fromStr := c.Query("from"); fromStr != "" {
		t, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from: must be an RFC3339 timestamp"})
			return nil, nil, false
		}
		from = &t
	}
	if toStr := c.Query("to"); toStr != "" {
		t, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to: must be an RFC3339 timestamp"})
			return nil, nil, false
		}
		to = &t
	}
	return from, to, true
}

func (h *DetectionHandler) List(c *gin.Context) {
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

	detections, total, err := h.db.QueryDetections(c.Request.Context(), branchID, c.Query("re_id"), from, to, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.DetectionResponse, 0, len(detections))
	for _, d := range detections {
		resp = append(resp, dto.DetectionResponse{
			ID:                 d.ID,
			ReID:               d.ReID,
			BranchID:           d.BranchID,
			DeviceID:           d.DeviceID,
			DetectionTimestamp: d.DetectionTimestamp.Format(time.RFC3339),
			DetectedCount:      d.DetectedCount,
			DetectionData:      d.DetectionData,
			CreatedAt:          d.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, dto.DetectionListResponse{Detections: resp, Total: total})
}

// Summary aggregates one day's detections per branch.
func (h *DetectionHandler) Summary(c *gin.Context) {
	date := time.Now().UTC()
	if dStr := c.Query("date"); dStr != "" {
		parsed, err := time.Parse("2006-01-02", dStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	summaries, err := h.db.BranchSummaries(c.Request.Context(), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":     date.Format("2006-01-02"),
		"branches": summaries,
	})
}
