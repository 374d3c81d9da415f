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

type DeviceHandler struct {
	db *storage.PostgresStore
}

func NewDeviceHandler(db *storage.PostgresStore) *DeviceHandler {
	return &DeviceHandler{db: db}
}

func deviceToResponse(d *models.Device) dto.DeviceResponse {
	return dto.DeviceResponse{
		DeviceID:   d.DeviceID,
		BranchID:   d.BranchID,
		Name:       d.Name,
		DeviceType: d.DeviceType,
		Status:     string(d.Status),
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
}

func (h *DeviceHandler) Create(c *gin.Context) {
	var req dto.CreateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectFields(c, fieldErrors(err))
		return
	}

	branch, err := h.db.GetBranch(c.Request.Context(), req.BranchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if branch == nil {
		rejectFields(c, map[string][]string{"branch_id": {"does not reference a known branch"}})
		return
	}

	d := &models.Device{
		DeviceID:   req.DeviceID,
		BranchID:   req.BranchID,
		Name:       req.Name,
		DeviceType: req.DeviceType,
	}
	if err := h.db.CreateDevice(c.Request.Context(), d); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, deviceToResponse(d))
}

func (h *DeviceHandler) List(c *gin.Context) {
	var branchID *int64
	if bStr := c.Query("branch_id"); bStr != "" {
		id, err := strconv.ParseInt(bStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch_id"})
			return
		}
		branchID = &id
	}

	devices, err := h.db.ListDevices(c.Request.Context(), branchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.DeviceResponse, 0, len(devices))
	for i := range devices {
		resp = append(resp, deviceToResponse(&devices[i]))
	}

	c.JSON(http.StatusOK, gin.H{"devices": resp, "total": len(resp)})
}

func (h *DeviceHandler) Get(c *gin.Context) {
	device, err := h.db.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	c.JSON(http.StatusOK, deviceToResponse(device))
}

func (h *DeviceHandler) Update(c *gin.Context) {
	var req dto.UpdateDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectFields(c, fieldErrors(err))
		return
	}

	device, err := h.db.GetDevice(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}

	if req.BranchID != nil {
		device.BranchID = *req.BranchID
	}
	if req.Name != nil {
		device.Name = *req.Name
	}
	if req.DeviceType != nil {
		device.DeviceType = *req.DeviceType
	}
	if req.Status != nil {
		device.Status = models.DeviceStatus(*req.Status)
	}

	if err := h.db.UpdateDevice(c.Request.Context(), device); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, deviceToResponse(device))
}

func (h *DeviceHandler) Delete(c *gin.Context) {
	if err := h.db.DeleteDevice(c.Request.Context(), c.Param("id")); err != nil {
		if err == storage.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
