package dto

import "encoding/json"

type PersonResponse struct {
	ReID               string          `json:"re_id"`
	DetectionDate      string          `json:"detection_date"`
	DetectionTime      string          `json:"detection_time"`
	PersonName         string          `json:"person_name,omitempty"`
	AppearanceFeatures json.RawMessage `json:"appearance_features,omitempty"`
	FirstDetectedAt    string          `json:"first_detected_at"`
	LastDetectedAt     string          `json:"last_detected_at"`
	BranchCount        int             `json:"total_detection_branch_count"`
	ActualCount        int             `json:"total_actual_count"`
	Status             string          `json:"status"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
}

// UpdatePersonRequest carries the only operator edits allowed on the
// aggregate: naming a person and toggling their status.
type UpdatePersonRequest struct {
	Date       string  `json:"date" form:"date"`
	PersonName *string `json:"person_name,omitempty"`
	Status     *string `json:"status,omitempty" binding:"omitempty,oneof=active inactive"`
}
