package organization

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a hospital participating in record sharing.
type Organization struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	TypeCode    string    `db:"type_code" json:"type_code"`
	Active      bool      `db:"active" json:"active"`
	AddressLine *string   `db:"address_line" json:"address_line,omitempty"`
	City        *string   `db:"city" json:"city,omitempty"`
	State       *string   `db:"state" json:"state,omitempty"`
	PostalCode  *string   `db:"postal_code" json:"postal_code,omitempty"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Email       *string   `db:"email" json:"email,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Member represents a user's membership in an organization. Members with
// the admin role review incoming share requests.
type Member struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OrgID     uuid.UUID `db:"organization_id" json:"organization_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Role      string    `db:"role" json:"role"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
