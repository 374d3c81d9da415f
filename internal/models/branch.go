package models

import "time"

type BranchStatus string

const (
	BranchStatusActive   BranchStatus = "active"
	BranchStatusInactive BranchStatus = "inactive"
)

// Branch is a physical site containing one or more camera devices.
type Branch struct {
	ID        int64        `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Code      string       `json:"code" db:"code"`
	Address   string       `json:"address,omitempty" db:"address"`
	Status    BranchStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
)

// Device is a camera or sensor unit belonging to a branch. The
// external AI nodes identify themselves by DeviceID, so the id is an
// operator-assigned string, not a surrogate key.
type Device struct {
	DeviceID   string       `json:"device_id" db:"device_id"`
	BranchID   int64        `json:"branch_id" db:"branch_id"`
	Name       string       `json:"name" db:"name"`
	DeviceType string       `json:"device_type" db:"device_type"`
	Status     DeviceStatus `json:"status" db:"status"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at" db:"updated_at"`
}
