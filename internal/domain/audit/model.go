package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorKind distinguishes human actors from internal subsystems.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
)

// Actor identifies who performed an audited action. Exactly one of UserID
// (kind user) or Subsystem (kind system) is meaningful.
type Actor struct {
	Kind      ActorKind
	UserID    uuid.UUID
	Subsystem string
}

// UserActor returns an Actor for a human user.
func UserActor(userID uuid.UUID) Actor {
	return Actor{Kind: ActorUser, UserID: userID}
}

// SystemActor returns an Actor for an internal subsystem, e.g. the
// request expiry sweeper.
func SystemActor(subsystem string) Actor {
	return Actor{Kind: ActorSystem, Subsystem: subsystem}
}

// Validate checks the actor's internal consistency.
func (a Actor) Validate() error {
	switch a.Kind {
	case ActorUser:
		if a.UserID == uuid.Nil {
			return fmt.Errorf("user actor requires a user id")
		}
	case ActorSystem:
		if a.Subsystem == "" {
			return fmt.Errorf("system actor requires a subsystem name")
		}
	default:
		return fmt.Errorf("invalid actor kind: %s", a.Kind)
	}
	return nil
}

// String renders the actor for logs and search results.
func (a Actor) String() string {
	if a.Kind == ActorSystem {
		return "system:" + a.Subsystem
	}
	return "user:" + a.UserID.String()
}

// Entry is a single audit record.
type Entry struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	ActorKind      ActorKind         `db:"actor_kind" json:"actor_kind"`
	ActorUserID    *uuid.UUID        `db:"actor_user_id" json:"actor_user_id,omitempty"`
	ActorSubsystem *string           `db:"actor_subsystem" json:"actor_subsystem,omitempty"`
	Action         string            `db:"action" json:"action"`
	Details        string            `db:"details" json:"details"`
	ResourceType   string            `db:"resource_type" json:"resource_type"`
	ResourceID     *uuid.UUID        `db:"resource_id" json:"resource_id,omitempty"`
	Metadata       map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}
