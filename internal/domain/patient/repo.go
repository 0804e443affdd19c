package patient

import (
	"context"

	"github.com/google/uuid"
)

// SearchFilter narrows patient listings. Empty fields are ignored.
type SearchFilter struct {
	MRN  string
	Name string
}

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Patient, int, error)
}
