package audit

import (
	"context"

	"github.com/google/uuid"
)

// SearchFilter narrows audit searches. Empty fields are ignored.
type SearchFilter struct {
	ActorUserID  uuid.UUID
	Action       string
	ResourceType string
	ResourceID   uuid.UUID
}

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Entry, int, error)
}
