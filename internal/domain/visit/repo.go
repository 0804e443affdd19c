package visit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, patientID, orgID uuid.UUID, limit, offset int) ([]*Visit, int, error)
	// ListByPatientOrg returns all visits owned by orgID for the patient,
	// newest first, without pagination. Used to build review candidates.
	ListByPatientOrg(ctx context.Context, patientID, orgID uuid.UUID) ([]*Visit, error)
	// AppendSharedWith adds orgID to the shared_with set of each visit.
	// Visits already shared with orgID are left unchanged.
	AppendSharedWith(ctx context.Context, ids []uuid.UUID, orgID uuid.UUID) error
}
