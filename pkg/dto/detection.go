package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

// DetectionSubmission is the intake payload posted by external AI
// nodes, as JSON or multipart form (with an optional image part).
type DetectionSubmission struct {
	ReID               string          `json:"re_id" form:"re_id" binding:"required"`
	BranchID           int64           `json:"branch_id" form:"branch_id" binding:"required,gt=0"`
	DeviceID           string          `json:"device_id" form:"device_id" binding:"required"`
	DetectedCount      int             `json:"detected_count" form:"detected_count" binding:"required,gte=1"`
	DetectionTimestamp string          `json:"detection_timestamp,omitempty" form:"detection_timestamp" binding:"omitempty"`
	EventType          string          `json:"event_type,omitempty" form:"event_type" binding:"omitempty,oneof=detection alert motion manual"`
	DetectionData      json.RawMessage `json:"detection_data,omitempty"`
}

// DetectionAccepted is the 202 reply; processing continues in the
// worker, the caller polls the job endpoint for the outcome.
type DetectionAccepted struct {
	JobID     uuid.UUID `json:"job_id"`
	Status    string    `json:"status"`
	ReID      string    `json:"re_id"`
	BranchID  int64     `json:"branch_id"`
	DeviceID  string    `json:"device_id"`
	ImagePath string    `json:"image_path,omitempty"`
}

// ValidationFailure enumerates per-field messages for a 422 reply.
type ValidationFailure struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

type JobStatusResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type DetectionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	ReID               string          `json:"re_id"`
	BranchID           int64           `json:"branch_id"`
	DeviceID           string          `json:"device_id"`
	DetectionTimestamp string          `json:"detection_timestamp"`
	DetectedCount      int             `json:"detected_count"`
	DetectionData      json.RawMessage `json:"detection_data,omitempty"`
	CreatedAt          string          `json:"created_at"`
}

type DetectionListResponse struct {
	Detections []DetectionResponse `json:"detections"`
	Total      int                 `json:"total"`
}

type EventLogResponse struct {
	ID                 uuid.UUID       `json:"id"`
	ReID               string          `json:"re_id"`
	BranchID           int64           `json:"branch_id"`
	DeviceID           string          `json:"device_id"`
	EventType          string          `json:"event_type"`
	DetectionTimestamp string          `json:"detection_timestamp"`
	DetectedCount      int             `json:"detected_count"`
	EventData          json.RawMessage `json:"event_data,omitempty"`
	ImageURL           string          `json:"image_url,omitempty"`
	ImageSent          bool            `json:"image_sent"`
	MessageSent        bool            `json:"message_sent"`
	NotificationSent   bool            `json:"notification_sent"`
	CreatedAt          string          `json:"created_at"`
}

type EventLogListResponse struct {
	Events []EventLogResponse `json:"events"`
	Total  int                `json:"total"`
}

// WSEvent is a WebSocket message for real-time detection delivery.
type WSEvent struct {
	Type     string      `json:"type"` // detection_processed, event_processed
	BranchID int64       `json:"branch_id"`
	Data     interface{} `json:"data,omitempty"`
}
