package sharing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RequestRepository persists share requests.
type RequestRepository interface {
	Create(ctx context.Context, r *ShareRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ShareRequest, error)
	// ListIncoming returns requests where orgID is the requested-from
	// party, newest first.
	ListIncoming(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error)
	// ListOutgoing returns requests where orgID is the requesting party,
	// newest first.
	ListOutgoing(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error)
	// ResolvePending transitions the request out of pending with a
	// conditional update. It reports false, without error, when the
	// request was not pending, so racing resolvers cannot both win.
	ResolvePending(ctx context.Context, id uuid.UUID, status Status, grantID *uuid.UUID) (bool, error)
	// ExpireStale transitions every pending request created before the
	// cutoff to expired and returns the affected ids.
	ExpireStale(ctx context.Context, before time.Time) ([]uuid.UUID, error)
}

// GrantRepository persists the share ledger. Grants are append-only.
type GrantRepository interface {
	Create(ctx context.Context, g *ShareGrant) error
	// ListByTarget returns grants received by targetOrg, newest first,
	// optionally filtered by patient.
	ListByTarget(ctx context.Context, targetOrg, patientID uuid.UUID, limit, offset int) ([]*ShareGrant, int, error)
}
