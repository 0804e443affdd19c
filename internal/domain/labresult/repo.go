package labresult

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, lr *LabResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error)
	Update(ctx context.Context, lr *LabResult) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, patientID, orgID uuid.UUID, limit, offset int) ([]*LabResult, int, error)
	// ListByPatientOrg returns all results owned by orgID for the patient,
	// newest first, without pagination. Used to build review candidates.
	ListByPatientOrg(ctx context.Context, patientID, orgID uuid.UUID) ([]*LabResult, error)
	// AppendSharedWith adds orgID to the shared_with set of each result.
	// Results already shared with orgID are left unchanged.
	AppendSharedWith(ctx context.Context, ids []uuid.UUID, orgID uuid.UUID) error
}
