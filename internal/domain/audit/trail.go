package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/metrics"
)

// Trail records audit entries. Recording is best-effort: a storage failure
// is logged and counted but never propagated, so auditing cannot fail the
// operation being audited.
type Trail struct {
	repo Repository
	log  zerolog.Logger
}

func NewTrail(repo Repository, log zerolog.Logger) *Trail {
	return &Trail{repo: repo, log: log}
}

// Record writes a single audit entry for the given actor and action.
func (t *Trail) Record(ctx context.Context, actor Actor, action, details, resourceType string, resourceID uuid.UUID, metadata map[string]string) {
	if err := actor.Validate(); err != nil {
		metrics.AuditFailures.Inc()
		t.log.Error().Err(err).Str("action", action).Msg("invalid audit actor")
		return
	}

	e := &Entry{
		ActorKind:    actor.Kind,
		Action:       action,
		Details:      details,
		ResourceType: resourceType,
		Metadata:     metadata,
	}
	if actor.Kind == ActorUser {
		uid := actor.UserID
		e.ActorUserID = &uid
	} else {
		sub := actor.Subsystem
		e.ActorSubsystem = &sub
	}
	if resourceID != uuid.Nil {
		rid := resourceID
		e.ResourceID = &rid
	}

	if err := t.repo.Create(ctx, e); err != nil {
		metrics.AuditFailures.Inc()
		t.log.Error().Err(err).
			Str("actor", actor.String()).
			Str("action", action).
			Msg("failed to persist audit entry")
	}
}

// Search returns matching audit entries, newest first.
func (t *Trail) Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Entry, int, error) {
	return t.repo.Search(ctx, filter, limit, offset)
}
