package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/watchtower/internal/models"
	"github.com/your-org/watchtower/internal/queue"
	"github.com/your-org/watchtower/pkg/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterFieldNames()
}

type fakeRefs struct {
	branches map[int64]*models.Branch
	devices  map[string]*models.Device
	err      error
}

func (f *fakeRefs) GetBranch(_ context.Context, id int64) (*models.Branch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.branches[id], nil
}

func (f *fakeRefs) GetDevice(_ context.Context, deviceID string) (*models.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.devices[deviceID], nil
}

type fakeImages struct {
	keys []string
	err  error
}

func (f *fakeImages) PutObject(_ context.Context, key string, _ []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	return nil
}

type fakeTasks struct {
	published []*models.DetectionTask
	err       error
}

func (f *fakeTasks) PublishDetectionTask(_ context.Context, task *models.DetectionTask) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, task)
	return nil
}

type fakeJobRecorder struct {
	pending  []queue.PendingJob
	failures int // errors to return before succeeding
	calls    int
}

func (f *fakeJobRecorder) MarkPending(_ context.Context, job queue.PendingJob) error {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("kv put failed")
	}
	f.pending = append(f.pending, job)
	return nil
}

type intakeFixture struct {
	handler *IntakeHandler
	refs    *fakeRefs
	images  *fakeImages
	tasks   *fakeTasks
	jobs    *fakeJobRecorder
	router  *gin.Engine
}

func newIntakeFixture() *intakeFixture {
	f := &intakeFixture{
		refs: &fakeRefs{
			branches: map[int64]*models.Branch{
				1: {ID: 1, Code: "JKT-01", Status: models.BranchStatusActive},
				2: {ID: 2, Code: "JKT-02", Status: models.BranchStatusInactive},
			},
			devices: map[string]*models.Device{
				"CAM-1": {DeviceID: "CAM-1", BranchID: 1, Status: models.DeviceStatusOnline},
			},
		},
		images: &fakeImages{},
		tasks:  &fakeTasks{},
		jobs:   &fakeJobRecorder{},
	}
	f.handler = NewIntakeHandler(f.refs, f.images, f.tasks, f.jobs, time.Minute, 1<<20)
	f.router = gin.New()
	f.router.POST("/v1/detections", f.handler.SubmitDetection)
	f.router.POST("/v1/events", f.handler.SubmitEvent)
	return f
}

func postJSON(r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func validSubmission() map[string]any {
	return map[string]any{
		"re_id":               "person-001",
		"branch_id":           1,
		"device_id":           "CAM-1",
		"detected_count":      2,
		"detection_timestamp": "2026-09-01T10:00:00Z",
		"detection_data":      map[string]any{"confidence": 0.97},
	}
}

func TestSubmitDetectionAccepted(t *testing.T) {
	f := newIntakeFixture()

	w := postJSON(f.router, "/v1/detections", validSubmission())

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp dto.DetectionAccepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "person-001", resp.ReID)

	require.Len(t, f.tasks.published, 1)
	task := f.tasks.published[0]
	assert.Equal(t, models.TaskKindDetection, task.Kind)
	assert.Equal(t, resp.JobID, task.JobID)
	assert.Equal(t, 2, task.DetectedCount)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), task.DetectionTimestamp)

	// Pending record exists before the caller could ever poll.
	require.Len(t, f.jobs.pending, 1)
	assert.Equal(t, task.JobID.String(), f.jobs.pending[0].JobID)
}

func TestSubmitEventAccepted(t *testing.T) {
	f := newIntakeFixture()

	body := validSubmission()
	body["event_type"] = "alert"
	w := postJSON(f.router, "/v1/events", body)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.tasks.published, 1)
	assert.Equal(t, models.TaskKindEvent, f.tasks.published[0].Kind)
	assert.Equal(t, models.EventTypeAlert, f.tasks.published[0].EventType)
}

func TestSubmitDetectionMissingFields(t *testing.T) {
	f := newIntakeFixture()

	body := validSubmission()
	delete(body, "detected_count")
	delete(body, "re_id")
	w := postJSON(f.router, "/v1/detections", body)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp dto.ValidationFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "detected_count")
	assert.Contains(t, resp.Fields, "re_id")
	assert.Empty(t, f.tasks.published)
}

func TestSubmitDetectionInvalidCount(t *testing.T) {
	f := newIntakeFixture()

	body := validSubmission()
	body["detected_count"] = -1
	w := postJSON(f.router, "/v1/detections", body)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp dto.ValidationFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "detected_count")
}

func TestSubmitDetectionBadTimestamp(t *testing.T) {
	f := newIntakeFixture()

	body := validSubmission()
	body["detection_timestamp"] = "yesterday"
	w := postJSON(f.router, "/v1/detections", body)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp dto.ValidationFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "detection_timestamp")
}

func TestSubmitDetectionDefaultsTimestamp(t *testing.T) {
	f := newIntakeFixture()

	body := validSubmission()
	delete(body, "detection_timestamp")
	before := time.Now().UTC()
	w := postJSON(f.router, "/v1/detections", body)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.tasks.published, 1)
	ts := f.tasks.published[0].DetectionTimestamp
	assert.False(t, ts.Before(before))
	assert.False(t, ts.After(time.Now().UTC()))
}

func TestSubmitDetectionUnknownBranch(t *testing.T) {
	f := newIntakeFixture()

	body := validSubmission()
	body["branch_id"] = 99
	w := postJSON(f.router, "/v1/detections", body)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp dto.ValidationFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields["branch_id"], "does not reference a known branch")
	assert.Empty(t, f.tasks.published)
}

func TestSubmitDetectionInactiveBranch(t *testing.T) {
	f := newIntakeFixture()

	body := validSubmission()
	body["branch_id"] = 2
	w := postJSON(f.router, "/v1/detections", body)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp dto.ValidationFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields["branch_id"], "must reference an active branch")
}

func TestSubmitDetectionUnknownDevice(t *testing.T) {
	f := newIntakeFixture()

	body := validSubmission()
	body["device_id"] = "CAM-404"
	w := postJSON(f.router, "/v1/detections", body)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp dto.ValidationFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "device_id")
}

func TestSubmitDetectionPublishFailure(t *testing.T) {
	f := newIntakeFixture()
	f.tasks.err = errors.New("jetstream unavailable")

	w := postJSON(f.router, "/v1/detections", validSubmission())

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "failed to queue detection")
}

func TestSubmitDetectionPendingWriteRetries(t *testing.T) {
	f := newIntakeFixture()
	f.jobs.failures = 1

	w := postJSON(f.router, "/v1/detections", validSubmission())

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 2, f.jobs.calls)
	require.Len(t, f.jobs.pending, 1)
	require.Len(t, f.tasks.published, 1)
}

func TestSubmitDetectionPendingWriteFailure(t *testing.T) {
	// Without a pending record a poll would read the queued job as
	// completed, so a persistent write failure refuses the submission.
	f := newIntakeFixture()
	f.jobs.failures = 2

	w := postJSON(f.router, "/v1/detections", validSubmission())

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "failed to register job")
	assert.Empty(t, f.tasks.published)
}

func TestSubmitDetectionBranchCached(t *testing.T) {
	f := newIntakeFixture()

	w := postJSON(f.router, "/v1/detections", validSubmission())
	require.Equal(t, http.StatusAccepted, w.Code)

	// Second submission hits the cache; a now-failing store is not asked.
	f.refs.err = errors.New("db down")
	w = postJSON(f.router, "/v1/detections", validSubmission())
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func multipartSubmission(t *testing.T, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("re_id", "person-001"))
	require.NoError(t, mw.WriteField("branch_id", "1"))
	require.NoError(t, mw.WriteField("device_id", "CAM-1"))
	require.NoError(t, mw.WriteField("detected_count", "1"))
	require.NoError(t, mw.WriteField("detection_data", `{"confidence":0.9}`))
	if image != nil {
		part, err := mw.CreateFormFile("image", "frame.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSubmitDetectionMultipartWithImage(t *testing.T) {
	f := newIntakeFixture()

	body, contentType := multipartSubmission(t, []byte("jpegbytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/detections", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.images.keys, 1)
	assert.True(t, strings.HasPrefix(f.images.keys[0], "detections/"))

	require.Len(t, f.tasks.published, 1)
	assert.Equal(t, f.images.keys[0], f.tasks.published[0].ImagePath)
	assert.JSONEq(t, `{"confidence":0.9}`, string(f.tasks.published[0].DetectionData))
}

func TestSubmitDetectionImageStoreFailure(t *testing.T) {
	f := newIntakeFixture()
	f.images.err = errors.New("bucket gone")

	body, contentType := multipartSubmission(t, []byte("jpegbytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/detections", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	// Image loss downgrades, it does not block the detection.
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.tasks.published, 1)
	assert.Empty(t, f.tasks.published[0].ImagePath)
}

func TestSubmitDetectionInvalidJSONDetectionData(t *testing.T) {
	f := newIntakeFixture()

	req := httptest.NewRequest(http.MethodPost, "/v1/detections",
		strings.NewReader(`{"re_id":"p","branch_id":1,"device_id":"CAM-1","detected_count":1,"detection_data":{`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
