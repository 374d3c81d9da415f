package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTypeDetection EventType = "detection"
	EventTypeAlert     EventType = "alert"
	EventTypeMotion    EventType = "motion"
	EventTypeManual    EventType = "manual"
)

// EventLog is the event-style fact row: same branch/device/re_id
// linkage as BranchDetection plus notification-delivery flags and an
// optional stored image. The row itself is append-only; only the
// delivery flags are mutated, by the notification path.
type EventLog struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	ReID               string          `json:"re_id" db:"re_id"`
	BranchID           int64           `json:"branch_id" db:"branch_id"`
	DeviceID           string          `json:"device_id" db:"device_id"`
	EventType          EventType       `json:"event_type" db:"event_type"`
	DetectionTimestamp time.Time       `json:"detection_timestamp" db:"detection_timestamp"`
	DetectedCount      int             `json:"detected_count" db:"detected_count"`
	EventData          json.RawMessage `json:"event_data,omitempty" db:"event_data"`
	ImagePath          string          `json:"image_path,omitempty" db:"image_path"`
	ImageSent          bool            `json:"image_sent" db:"image_sent"`
	MessageSent        bool            `json:"message_sent" db:"message_sent"`
	NotificationSent   bool            `json:"notification_sent" db:"notification_sent"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}
