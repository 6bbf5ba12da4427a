package entitlement

import (
	"context"

	"github.com/meterflow/meterflow/internal/types"
)

// Repository provides access to entitlement storage
type Repository interface {
	Create(ctx context.Context, e *Entitlement) (*Entitlement, error)
	Get(ctx context.Context, id string) (*Entitlement, error)
	// GetActiveBySubjectAndFeature returns the single non-deleted entitlement
	// for a (subject, feature key) pair, or a not found error
	GetActiveBySubjectAndFeature(ctx context.Context, subjectID, featureKey string) (*Entitlement, error)
	List(ctx context.Context, filter *types.EntitlementFilter) ([]*Entitlement, error)
	Count(ctx context.Context, filter *types.EntitlementFilter) (int, error)
	// Update persists reset bookkeeping (last reset, current period, anchor,
	// carried overage); all other fields are immutable after creation
	Update(ctx context.Context, e *Entitlement) (*Entitlement, error)
	Delete(ctx context.Context, id string) error
}
