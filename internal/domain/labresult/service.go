package labresult

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

var validResultStatuses = map[string]bool{
	"preliminary": true, "final": true, "amended": true, "cancelled": true,
}

func (s *Service) Create(ctx context.Context, lr *LabResult) error {
	if lr.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if lr.OrganizationID == uuid.Nil {
		return fmt.Errorf("organization_id is required")
	}
	if lr.TestCode == "" {
		return fmt.Errorf("test_code is required")
	}
	if lr.TestName == "" {
		return fmt.Errorf("test_name is required")
	}
	if lr.Status == "" {
		lr.Status = "final"
	}
	if !validResultStatuses[lr.Status] {
		return fmt.Errorf("invalid status: %s", lr.Status)
	}
	if lr.EffectiveAt.IsZero() {
		return fmt.Errorf("effective_at is required")
	}
	return s.repo.Create(ctx, lr)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, lr *LabResult) error {
	if lr.Status != "" && !validResultStatuses[lr.Status] {
		return fmt.Errorf("invalid status: %s", lr.Status)
	}
	return s.repo.Update(ctx, lr)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, patientID, orgID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
	return s.repo.List(ctx, patientID, orgID, limit, offset)
}
