package types

import (
	"context"
	"time"
)

// BaseModel carries the fields every stored record shares: tenant scoping,
// lifecycle status (soft delete) and audit bookkeeping.
type BaseModel struct {
	TenantID  string    `json:"tenant_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedBy string    `json:"updated_by"`
}

// GetDefaultBaseModel seeds the shared fields for a record created in the
// given context
func GetDefaultBaseModel(ctx context.Context) BaseModel {
	now := time.Now().UTC()
	return BaseModel{
		TenantID:  GetTenantID(ctx),
		Status:    StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: GetUserID(ctx),
		UpdatedBy: GetUserID(ctx),
	}
}

// Touch records a mutation made in the given context
func (m *BaseModel) Touch(ctx context.Context) {
	m.UpdatedAt = time.Now().UTC()
	m.UpdatedBy = GetUserID(ctx)
}
