package patient

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

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.OrganizationID == uuid.Nil {
		return fmt.Errorf("organization_id is required")
	}
	if p.MRN == "" {
		return fmt.Errorf("mrn is required")
	}
	if p.FamilyName == "" {
		return fmt.Errorf("family_name is required")
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if p.MRN == "" {
		return fmt.Errorf("mrn is required")
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Patient, int, error) {
	return s.repo.Search(ctx, filter, limit, offset)
}
