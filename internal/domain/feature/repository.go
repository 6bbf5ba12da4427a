package feature

import "context"

// Repository is the feature/meter catalog contract. The catalog itself is an
// external collaborator; the engine only resolves feature keys through it.
type Repository interface {
	Create(ctx context.Context, feature *Feature) (*Feature, error)
	Get(ctx context.Context, id string) (*Feature, error)
	GetByLookupKey(ctx context.Context, lookupKey string) (*Feature, error)
	Delete(ctx context.Context, id string) error
}
