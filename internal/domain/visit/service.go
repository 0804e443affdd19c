package visit

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

var validVisitStatuses = map[string]bool{
	"planned": true, "in-progress": true, "finished": true, "cancelled": true,
}

func (s *Service) Create(ctx context.Context, v *Visit) error {
	if v.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if v.OrganizationID == uuid.Nil {
		return fmt.Errorf("organization_id is required")
	}
	if v.Status == "" {
		v.Status = "finished"
	}
	if !validVisitStatuses[v.Status] {
		return fmt.Errorf("invalid status: %s", v.Status)
	}
	if v.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	return s.repo.Create(ctx, v)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, v *Visit) error {
	if v.Status != "" && !validVisitStatuses[v.Status] {
		return fmt.Errorf("invalid status: %s", v.Status)
	}
	return s.repo.Update(ctx, v)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) List(ctx context.Context, patientID, orgID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	return s.repo.List(ctx, patientID, orgID, limit, offset)
}
