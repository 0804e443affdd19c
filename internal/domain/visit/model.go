package visit

import (
	"time"

	"github.com/google/uuid"
)

// Visit is a patient encounter at the owning organization. SharedWith
// lists the organizations the visit has been shared with; it only grows.
type Visit struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	PatientID        uuid.UUID   `db:"patient_id" json:"patient_id"`
	OrganizationID   uuid.UUID   `db:"organization_id" json:"organization_id"`
	PractitionerName *string     `db:"practitioner_name" json:"practitioner_name,omitempty"`
	Status           string      `db:"status" json:"status"`
	Reason           *string     `db:"reason" json:"reason,omitempty"`
	StartedAt        time.Time   `db:"started_at" json:"started_at"`
	EndedAt          *time.Time  `db:"ended_at" json:"ended_at,omitempty"`
	SharedWith       []uuid.UUID `db:"shared_with" json:"shared_with"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}
