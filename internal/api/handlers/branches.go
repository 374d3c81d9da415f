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

type BranchHandler struct {
	db *storage.PostgresStore
}

func NewBranchHandler(db *storage.PostgresStore) *BranchHandler {
	return &BranchHandler{db: db}
}

func branchToResponse(b *models.Branch) dto.BranchResponse {
	return dto.BranchResponse{
		ID:        b.ID,
		Name:      b.Name,
		Code:      b.Code,
		Address:   b.Address,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
	}
}

func (h *BranchHandler) Create(c *gin.Context) {
	var req dto.CreateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectFields(c, fieldErrors(err))
		return
	}

	b := &models.Branch{
		Name:    req.Name,
		Code:    req.Code,
		Address: req.Address,
	}
	if err := h.db.CreateBranch(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, branchToResponse(b))
}

func (h *BranchHandler) List(c *gin.Context) {
	branches, err := h.db.ListBranches(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.BranchResponse, 0, len(branches))
	for i := range branches {
		resp = append(resp, branchToResponse(&branches[i]))
	}

	c.JSON(http.StatusOK, gin.H{"branches": resp, "total": len(resp)})
}

func (h *BranchHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch id"})
		return
	}

	branch, err := h.db.GetBranch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if branch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "branch not found"})
		return
	}

	c.JSON(http.StatusOK, branchToResponse(branch))
}

func (h *BranchHandler) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch id"})
		return
	}

	var req dto.UpdateBranchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		rejectFields(c, fieldErrors(err))
		return
	}

	branch, err := h.db.GetBranch(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if branch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "branch not found"})
		return
	}

	if req.Name != nil {
		branch.Name = *req.Name
	}
	if req.Code != nil {
		branch.Code = *req.Code
	}
	if req.Address != nil {
		branch.Address = *req.Address
	}
	if req.Status != nil {
		branch.Status = models.BranchStatus(*req.Status)
	}

	if err := h.db.UpdateBranch(c.Request.Context(), branch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, branchToResponse(branch))
}

func (h *BranchHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid branch id"})
		return
	}

	if err := h.db.DeleteBranch(c.Request.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "branch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
