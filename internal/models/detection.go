package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BranchDetection is one reported sighting of a person at a branch
// device. Rows are append-only: every processed task yields exactly one
// row, and the pipeline never updates or deletes them.
type BranchDetection struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	ReID               string          `json:"re_id" db:"re_id"`
	BranchID           int64           `json:"branch_id" db:"branch_id"`
	DeviceID           string          `json:"device_id" db:"device_id"`
	DetectionTimestamp time.Time       `json:"detection_timestamp" db:"detection_timestamp"`
	DetectedCount      int             `json:"detected_count" db:"detected_count"`
	DetectionData      json.RawMessage `json:"detection_data,omitempty" db:"detection_data"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// TaskKind selects which fact table a queued task writes to.
type TaskKind string

const (
	TaskKindDetection TaskKind = "detection"
	TaskKindEvent     TaskKind = "event"
)

// DetectionTask is the message published to NATS for worker processing.
type DetectionTask struct {
	JobID              uuid.UUID       `json:"job_id"`
	Kind               TaskKind        `json:"kind"`
	ReID               string          `json:"re_id"`
	BranchID           int64           `json:"branch_id"`
	DeviceID           string          `json:"device_id"`
	DetectionTimestamp time.Time       `json:"detection_timestamp"`
	DetectedCount      int             `json:"detected_count"`
	DetectionData      json.RawMessage `json:"detection_data,omitempty"`
	EventType          EventType       `json:"event_type,omitempty"`
	ImagePath          string          `json:"image_path,omitempty"`
}

// DetectionResult is published to the EVENTS stream after a task
// commits, for live feed broadcast.
type DetectionResult struct {
	JobID              uuid.UUID `json:"job_id"`
	Kind               TaskKind  `json:"kind"`
	ReID               string    `json:"re_id"`
	BranchID           int64     `json:"branch_id"`
	DeviceID           string    `json:"device_id"`
	DetectionTimestamp time.Time `json:"detection_timestamp"`
	DetectedCount      int       `json:"detected_count"`
	BranchCount        int       `json:"total_detection_branch_count"`
	ActualCount        int       `json:"total_actual_count"`
	ImagePath          string    `json:"image_path,omitempty"`
}
