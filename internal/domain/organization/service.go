package organization

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

var validMemberRoles = map[string]bool{
	"admin": true, "physician": true, "nurse": true, "clerk": true,
}

func (s *Service) Create(ctx context.Context, o *Organization) error {
	if o.Name == "" {
		return fmt.Errorf("name is required")
	}
	if o.TypeCode == "" {
		o.TypeCode = "hospital"
	}
	o.Active = true
	return s.repo.Create(ctx, o)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, o *Organization) error {
	if o.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.repo.Update(ctx, o)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) AddMember(ctx context.Context, m *Member) error {
	if m.OrgID == uuid.Nil {
		return fmt.Errorf("organization_id is required")
	}
	if m.UserID == uuid.Nil {
		return fmt.Errorf("user_id is required")
	}
	if m.Role == "" {
		m.Role = "clerk"
	}
	if !validMemberRoles[m.Role] {
		return fmt.Errorf("invalid role: %s", m.Role)
	}
	m.Active = true
	return s.repo.AddMember(ctx, m)
}

func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	return s.repo.ListMembers(ctx, orgID)
}

// ListAdmins returns the active admin members of an organization. Admins
// review incoming share requests and receive the related notifications.
func (s *Service) ListAdmins(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	return s.repo.ListAdmins(ctx, orgID)
}

func (s *Service) RemoveMember(ctx context.Context, id uuid.UUID) error {
	return s.repo.RemoveMember(ctx, id)
}
