package grant

import (
	"context"
	"time"

	"github.com/meterflow/meterflow/internal/types"
)

// Repository provides access to grant storage. Grants are append-only: the
// only writes after creation are voiding and next-recurrence bookkeeping.
type Repository interface {
	Create(ctx context.Context, g *Grant) (*Grant, error)
	Get(ctx context.Context, id string) (*Grant, error)
	List(ctx context.Context, filter *types.GrantFilter) ([]*Grant, error)
	Count(ctx context.Context, filter *types.GrantFilter) (int, error)
	// ListActive returns the grants contributing balance at the given
	// instant, in burn-down precedence order
	ListActive(ctx context.Context, entitlementID string, at time.Time) ([]*Grant, error)
	// ListForEntitlement returns every grant of an entitlement regardless of
	// state, in burn-down precedence order
	ListForEntitlement(ctx context.Context, entitlementID string) ([]*Grant, error)
	// Void marks a grant voided at the given instant. Voiding an already
	// voided grant is a no-op that preserves the original voidedAt.
	Void(ctx context.Context, id string, at time.Time) (*Grant, error)
	// UpdateNextRecurrence persists the system-computed next reissue instant
	UpdateNextRecurrence(ctx context.Context, id string, next time.Time) (*Grant, error)
}
