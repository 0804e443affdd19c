package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an in-app message for a single recipient.
type Notification struct {
	ID              uuid.UUID         `db:"id" json:"id"`
	RecipientUserID uuid.UUID         `db:"recipient_user_id" json:"recipient_user_id"`
	Type            string            `db:"type" json:"type"`
	Title           string            `db:"title" json:"title"`
	Message         string            `db:"message" json:"message"`
	ActionURL       *string           `db:"action_url" json:"action_url,omitempty"`
	Read            bool              `db:"read" json:"read"`
	Metadata        map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}
