package organization

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists organizations and their members.
type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Organization, int, error)

	AddMember(ctx context.Context, m *Member) error
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error)
	ListAdmins(ctx context.Context, orgID uuid.UUID) ([]*Member, error)
	RemoveMember(ctx context.Context, id uuid.UUID) error
}
