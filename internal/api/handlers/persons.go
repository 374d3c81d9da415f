package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/watchtower/internal/models"
	"github.com/your-org/watchtower/internal/storage"
	"github.com/your-org/watchtower/pkg/dto"
)

type PersonHandler struct {
	db *storage.PostgresStore
}

func NewPersonHandler(db *storage.PostgresStore) *PersonHandler {
	return &PersonHandler{db: db}
}

func personToResponse(p *models.ReIDPerson) dto.PersonResponse {
	return dto.PersonResponse{
		ReID:               p.ReID,
		DetectionDate:      p.DetectionDate.Format("2006-01-02"),
		DetectionTime:      p.DetectionTime.Format(time.RFC3339),
		PersonName:         p.PersonName,
		AppearanceFeatures: p.AppearanceFeatures,
		FirstDetectedAt:    p.FirstDetectedAt.Format(time.RFC3339),
		LastDetectedAt:     p.LastDetectedAt.Format(time.RFC3339),
		BranchCount:        p.BranchCount,
		ActualCount:        p.ActualCount,
		Status:             string(p.Status),
	}
}

func parseDateQuery(c *gin.Context) (time.Time, bool) {
	dStr := c.Query("date")
	if dStr == "" {
		return time.Now().UTC(), true
	}
	parsed, err := time.Parse("2006-01-02", dStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return parsed, true
}

func (h *PersonHandler) List(c *gin.Context) {
	date, ok := parseDateQuery(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	persons, total, err := h.db.ListPersons(c.Request.Context(), date, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for i := range persons {
		resp = append(resp, personToResponse(&persons[i]))
	}

	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: resp, Total: total})
}

func (h *PersonHandler) Get(c *gin.Context) {
	date, ok := parseDateQuery(c)
	if !ok {
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), c.Param("re_id"), date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	c.JSON(http.StatusOK, personToResponse(person))
}

// Update applies operator edits: rename and status toggle. The
// pipeline's counters are never writable through the API.
func (h *PersonHandler) Update(c *gin.Context) {
	var req dto.UpdatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectFields(c, fieldErrors(err))
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
			return
		}
		date = parsed
	}

	var status *models.PersonStatus
	if req.Status != nil {
		s := models.PersonStatus(*req.Status)
		status = &s
	}

	err := h.db.UpdatePersonProfile(c.Request.Context(), c.Param("re_id"), date, req.PersonName, status)
	if err != nil {
		if err == storage.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	person, err := h.db.GetPerson(c.Request.Context(), c.Param("re_id"), date)
	if err != nil || person == nil {
		c.JSON(http.StatusOK, gin.H{"status": "updated"})
		return
	}
	c.JSON(http.StatusOK, personToResponse(person))
}
