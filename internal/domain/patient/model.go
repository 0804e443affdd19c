package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is a patient registered at a single organization. MRN is the
// organization-local medical record number.
type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrganizationID uuid.UUID  `db:"organization_id" json:"organization_id"`
	MRN            string     `db:"mrn" json:"mrn"`
	FamilyName     string     `db:"family_name" json:"family_name"`
	GivenName      string     `db:"given_name" json:"given_name"`
	BirthDate      *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender         *string    `db:"gender" json:"gender,omitempty"`
	Phone          *string    `db:"phone" json:"phone,omitempty"`
	Email          *string    `db:"email" json:"email,omitempty"`
	AddressLine    *string    `db:"address_line" json:"address_line,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
