package dto

type CreateBranchRequest struct {
	Name    string `json:"name" binding:"required"`
	Code    string `json:"code" binding:"required"`
	Address string `json:"address"`
}

type UpdateBranchRequest struct {
	Name    *string `json:"name,omitempty"`
	Code    *string `json:"code,omitempty"`
	Address *string `json:"address,omitempty"`
	Status  *string `json:"status,omitempty" binding:"omitempty,oneof=active inactive"`
}

type BranchResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Address   string `json:"address,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type CreateDeviceRequest struct {
	DeviceID   string `json:"device_id" binding:"required"`
	BranchID   int64  `json:"branch_id" binding:"required,gt=0"`
	Name       string `json:"name" binding:"required"`
	DeviceType string `json:"device_type"`
}

type UpdateDeviceRequest struct {
	BranchID   *int64  `json:"branch_id,omitempty" binding:"omitempty,gt=0"`
	Name       *string `json:"name,omitempty"`
	DeviceType *string `json:"device_type,omitempty"`
	Status     *string `json:"status,omitempty" binding:"omitempty,oneof=online offline"`
}

type DeviceResponse struct {
	DeviceID   string `json:"device_id"`
	BranchID   int64  `json:"branch_id"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type,omitempty"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}
