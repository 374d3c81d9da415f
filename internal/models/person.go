package models

import (
	"encoding/json"
	"time"
)

type PersonStatus string

const (
	PersonStatusActive   PersonStatus = "active"
	PersonStatusInactive PersonStatus = "inactive"
)

// ReIDPerson is the per-day aggregate for one re-identified person.
// Keyed by (ReID, DetectionDate): the same re_id recurs on different
// days as distinct rows. Facts reference re_id alone; the pair is
// resolved in application logic, not by a foreign key.
type ReIDPerson struct {
	ReID               string          `json:"re_id" db:"re_id"`
	DetectionDate      time.Time       `json:"detection_date" db:"detection_date"`
	DetectionTime      time.Time       `json:"detection_time" db:"detection_time"`
	PersonName         string          `json:"person_name,omitempty" db:"person_name"`
	AppearanceFeatures json.RawMessage `json:"appearance_features,omitempty" db:"appearance_features"`
	FirstDetectedAt    time.Time       `json:"first_detected_at" db:"first_detected_at"`
	LastDetectedAt     time.Time       `json:"last_detected_at" db:"last_detected_at"`
	BranchCount        int             `json:"total_detection_branch_count" db:"total_detection_branch_count"`
	ActualCount        int             `json:"total_actual_count" db:"total_actual_count"`
	Status             PersonStatus    `json:"status" db:"status"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// DetectionDateOf returns the aggregate day for a detection timestamp.
// The day comes from the event's own timestamp, never from processing
// time, so late-processed tasks land on the correct row.
func DetectionDateOf(ts time.Time) time.Time {
	u := ts.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NewReIDPerson builds the aggregate row for the first sighting of a
// (re_id, day) pair.
func NewReIDPerson(reID string, ts time.Time, count int, features json.RawMessage) *ReIDPerson {
	return &ReIDPerson{
		ReID:               reID,
		DetectionDate:      DetectionDateOf(ts),
		DetectionTime:      ts,
		AppearanceFeatures: features,
		FirstDetectedAt:    ts,
		LastDetectedAt:     ts,
		BranchCount:        1,
		ActualCount:        count,
		Status:             PersonStatusActive,
	}
}

// ApplyDetection folds one more sighting into an existing aggregate.
// newBranch reports whether this branch has not yet contributed a fact
// row for this (re_id, day); the branch counter moves only then.
// Timestamps never regress regardless of processing order.
func (p *ReIDPerson) ApplyDetection(ts time.Time, count int, newBranch bool) {
	p.ActualCount += count
	if newBranch {
		p.BranchCount++
	}
	if ts.After(p.LastDetectedAt) {
		p.LastDetectedAt = ts
	}
	if ts.Before(p.FirstDetectedAt) {
		p.FirstDetectedAt = ts
	}
}
