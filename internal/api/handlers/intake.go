package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/your-org/watchtower/internal/models"
	"github.com/your-org/watchtower/internal/observability"
	"github.com/your-org/watchtower/internal/queue"
	"github.com/your-org/watchtower/internal/storage"
	"github.com/your-org/watchtower/pkg/dto"
)

// ReferenceStore resolves the branch/device references a submission
// must name. *storage.PostgresStore satisfies it.
type ReferenceStore interface {
	GetBranch(ctx context.Context, id int64) (*models.Branch, error)
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
}

// ImageStore persists uploaded detection images. *storage.MinIOStore
// satisfies it.
type ImageStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// TaskPublisher enqueues processing tasks. *queue.Producer satisfies it.
type TaskPublisher interface {
	PublishDetectionTask(ctx context.Context, task *models.DetectionTask) error
}

// JobRecorder registers a job before its task is published.
// *queue.JobTracker satisfies it.
type JobRecorder interface {
	MarkPending(ctx context.Context, job queue.PendingJob) error
}

// IntakeHandler validates detection submissions, stores images
// best-effort, and enqueues processing tasks. It never waits for the
// worker: the reply is always an immediate 202 or an error.
type IntakeHandler struct {
	refs          ReferenceStore
	images        ImageStore
	tasks         TaskPublisher
	jobs          JobRecorder
	refCache      *gocache.Cache
	maxImageBytes int64
}

func NewIntakeHandler(refs ReferenceStore, images ImageStore, tasks TaskPublisher, jobs JobRecorder, cacheTTL time.Duration, maxImageBytes int64) *IntakeHandler {
	return &IntakeHandler{
		refs:          refs,
		images:        images,
		tasks:         tasks,
		jobs:          jobs,
		refCache:      gocache.New(cacheTTL, 2*cacheTTL),
		maxImageBytes: maxImageBytes,
	}
}

// SubmitDetection handles POST /v1/detections.
func (h *IntakeHandler) SubmitDetection(c *gin.Context) {
	h.accept(c, models.TaskKindDetection)
}

// SubmitEvent handles POST /v1/events: same pipeline, but the worker
// writes an event_logs fact and manages the image_sent flag.
func (h *IntakeHandler) SubmitEvent(c *gin.Context) {
	h.accept(c, models.TaskKindEvent)
}

func (h *IntakeHandler) accept(c *gin.Context, kind models.TaskKind) {
	var req dto.DetectionSubmission
	multipart := strings.HasPrefix(c.ContentType(), "multipart/form-data") ||
		strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded")

	var bindErr error
	if multipart {
		bindErr = c.ShouldBind(&req)
		if bindErr == nil {
			if raw := c.PostForm("detection_data"); raw != "" {
				if !json.Valid([]byte(raw)) {
					rejectFields(c, map[string][]string{"detection_data": {"must be a valid JSON object"}})
					return
				}
				req.DetectionData = json.RawMessage(raw)
			}
		}
	} else {
		bindErr = c.ShouldBindJSON(&req)
	}
	if bindErr != nil {
		rejectFields(c, fieldErrors(bindErr))
		return
	}
	if len(req.DetectionData) > 0 && !json.Valid(req.DetectionData) {
		rejectFields(c, map[string][]string{"detection_data": {"must be a valid JSON object"}})
		return
	}

	ts := time.Now().UTC()
	if req.DetectionTimestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.DetectionTimestamp)
		if err != nil {
			rejectFields(c, map[string][]string{"detection_timestamp": {"must be an RFC3339 timestamp"}})
			return
		}
		ts = parsed.UTC()
	}

	// Reference checks happen before anything touches the queue.
	branch, err := h.lookupBranch(c.Request.Context(), req.BranchID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "branch lookup failed", "detail": err.Error()})
		return
	}
	if branch == nil {
		rejectFields(c, map[string][]string{"branch_id": {"does not reference a known branch"}})
		return
	}
	if branch.Status != models.BranchStatusActive {
		rejectFields(c, map[string][]string{"branch_id": {"must reference an active branch"}})
		return
	}

	device, err := h.lookupDevice(c.Request.Context(), req.DeviceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device lookup failed", "detail": err.Error()})
		return
	}
	if device == nil {
		rejectFields(c, map[string][]string{"device_id": {"does not reference a known device"}})
		return
	}

	// Image storage is best-effort: a storage failure downgrades to
	// "no image attached", the detection itself is still queued.
	imagePath := ""
	if multipart {
		imagePath = h.storeImage(c, ts)
	}

	jobID := uuid.New()
	task := &models.DetectionTask{
		JobID:              jobID,
		Kind:               kind,
		ReID:               req.ReID,
		BranchID:           req.BranchID,
		DeviceID:           req.DeviceID,
		DetectionTimestamp: ts,
		DetectedCount:      req.DetectedCount,
		DetectionData:      req.DetectionData,
		EventType:          models.EventType(req.EventType),
		ImagePath:          imagePath,
	}

	// Pending state goes in before the publish so a poll racing the
	// enqueue resolves to "processing" rather than a false "completed".
	// Without the record a queued job would read as completed while it
	// is still in flight, so a write failure refuses the submission.
	pending := queue.PendingJob{
		JobID:      jobID.String(),
		ReID:       req.ReID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := h.jobs.MarkPending(c.Request.Context(), pending); err != nil {
		slog.Warn("mark job pending, retrying", "job_id", jobID, "error", err)
		if err := h.jobs.MarkPending(c.Request.Context(), pending); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register job", "detail": err.Error()})
			return
		}
	}

	if err := h.tasks.PublishDetectionTask(c.Request.Context(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue detection", "detail": err.Error()})
		return
	}

	observability.DetectionsIngested.WithLabelValues(string(kind)).Inc()

	c.JSON(http.StatusAccepted, dto.DetectionAccepted{
		JobID:     jobID,
		Status:    "processing",
		ReID:      req.ReID,
		BranchID:  req.BranchID,
		DeviceID:  req.DeviceID,
		ImagePath: imagePath,
	})
}

func (h *IntakeHandler) storeImage(c *gin.Context, ts time.Time) string {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		return ""
	}
	defer file.Close()

	if header.Size > h.maxImageBytes {
		slog.Warn("detection image too large, dropping", "size", header.Size, "limit", h.maxImageBytes)
		observability.ImageStoreFailures.Inc()
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxImageBytes))
	if err != nil {
		slog.Warn("read detection image", "error", err)
		observability.ImageStoreFailures.Inc()
		return ""
	}

	key := storage.DetectionImageKey(ts)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if err := h.images.PutObject(c.Request.Context(), key, data, contentType); err != nil {
		slog.Warn("store detection image", "error", err)
		observability.ImageStoreFailures.Inc()
		return ""
	}
	return key
}

func (h *IntakeHandler) lookupBranch(ctx context.Context, id int64) (*models.Branch, error) {
	cacheKey := fmt.Sprintf("branch:%d", id)
	if v, ok := h.refCache.Get(cacheKey); ok {
		return v.(*models.Branch), nil
	}
	branch, err := h.refs.GetBranch(ctx, id)
	if err != nil {
		return nil, err
	}
	if branch != nil {
		h.refCache.Set(cacheKey, branch, gocache.DefaultExpiration)
	}
	return branch, nil
}

func (h *IntakeHandler) lookupDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	cacheKey := "device:" + deviceID
	if v, ok := h.refCache.Get(cacheKey); ok {
		return v.(*models.Device), nil
	}
	device, err := h.refs.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device != nil {
		h.refCache.Set(cacheKey, device, gocache.DefaultExpiration)
	}
	return device, nil
}

func rejectFields(c *gin.Context, fields map[string][]string) {
	observability.DetectionsRejected.Inc()
	c.JSON(http.StatusUnprocessableEntity, dto.ValidationFailure{
		Error:  "validation failed",
		Fields: fields,
	})
}

// RegisterFieldNames makes validator report json field names, so 422
// bodies enumerate the fields callers actually sent.
func RegisterFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
}

// fieldErrors flattens a gin binding error into per-field messages.
func fieldErrors(err error) map[string][]string {
	out := map[string][]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			name := fe.Field()
			out[name] = append(out[name], validationMessage(fe))
		}
		return out
	}
	out["body"] = []string{err.Error()}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
