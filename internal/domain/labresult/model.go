package labresult

import (
	"time"

	"github.com/google/uuid"
)

// LabResult is a laboratory observation owned by an organization.
// SharedWith lists the organizations the result has been shared with.
type LabResult struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	PatientID      uuid.UUID   `db:"patient_id" json:"patient_id"`
	OrganizationID uuid.UUID   `db:"organization_id" json:"organization_id"`
	TestCode       string      `db:"test_code" json:"test_code"`
	TestName       string      `db:"test_name" json:"test_name"`
	Status         string      `db:"status" json:"status"`
	Value          *string     `db:"value" json:"value,omitempty"`
	Unit           *string     `db:"unit" json:"unit,omitempty"`
	ReferenceRange *string     `db:"reference_range" json:"reference_range,omitempty"`
	EffectiveAt    time.Time   `db:"effective_at" json:"effective_at"`
	SharedWith     []uuid.UUID `db:"shared_with" json:"shared_with"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}
