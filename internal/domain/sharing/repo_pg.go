package sharing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Request Repository ===========

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository {
	return &requestRepoPG{pool: pool}
}

func (r *requestRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const requestCols = `id, patient_id, from_org_id, to_org_id, requested_by, scope, urgent,
	reason, status, grant_id, created_at, resolved_at`

func (r *requestRepoPG) scanRequest(row pgx.Row) (*ShareRequest, error) {
	var sr ShareRequest
	err := row.Scan(&sr.ID, &sr.PatientID, &sr.FromOrgID, &sr.ToOrgID, &sr.RequestedBy,
		&sr.Scope, &sr.Urgent, &sr.Reason, &sr.Status, &sr.GrantID,
		&sr.CreatedAt, &sr.ResolvedAt)
	return &sr, err
}

func (r *requestRepoPG) Create(ctx context.Context, sr *ShareRequest) error {
	sr.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO share_request (id, patient_id, from_org_id, to_org_id, requested_by,
			scope, urgent, reason, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		sr.ID, sr.PatientID, sr.FromOrgID, sr.ToOrgID, sr.RequestedBy,
		sr.Scope, sr.Urgent, sr.Reason, sr.Status)
	return err
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ShareRequest, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx, `SELECT `+requestCols+` FROM share_request WHERE id = $1`, id))
}

func (r *requestRepoPG) ListIncoming(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error) {
	return r.listByOrg(ctx, "to_org_id", orgID, limit, offset)
}

func (r *requestRepoPG) ListOutgoing(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error) {
	return r.listByOrg(ctx, "from_org_id", orgID, limit, offset)
}

func (r *requestRepoPG) listByOrg(ctx context.Context, col string, orgID uuid.UUID, limit, offset int) ([]*ShareRequest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM share_request WHERE `+col+` = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+requestCols+` FROM share_request
		WHERE `+col+` = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ShareRequest
	for rows.Next() {
		sr, err := r.scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, sr)
	}
	return items, total, nil
}

func (r *requestRepoPG) ResolvePending(ctx context.Context, id uuid.UUID, status Status, grantID *uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE share_request SET status=$2, grant_id=$3, resolved_at=NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, status, grantID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *requestRepoPG) ExpireStale(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE share_request SET status='expired', resolved_at=NOW()
		WHERE status = 'pending' AND created_at < $1
		RETURNING id`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// =========== Grant Repository ===========

type grantRepoPG struct{ pool *pgxpool.Pool }

func NewGrantRepoPG(pool *pgxpool.Pool) GrantRepository {
	return &grantRepoPG{pool: pool}
}

func (r *grantRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const grantCols = `id, patient_id, source_org_id, target_org_id, request_id, scope,
	visit_count, lab_count, created_at`

func (r *grantRepoPG) scanGrant(row pgx.Row) (*ShareGrant, error) {
	var g ShareGrant
	err := row.Scan(&g.ID, &g.PatientID, &g.SourceOrgID, &g.TargetOrgID, &g.RequestID,
		&g.Scope, &g.VisitCount, &g.LabCount, &g.CreatedAt)
	return &g, err
}

func (r *grantRepoPG) Create(ctx context.Context, g *ShareGrant) error {
	g.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO share_grant (id, patient_id, source_org_id, target_org_id,
			request_id, scope, visit_count, lab_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		g.ID, g.PatientID, g.SourceOrgID, g.TargetOrgID,
		g.RequestID, g.Scope, g.VisitCount, g.LabCount)
	return err
}

func (r *grantRepoPG) ListByTarget(ctx context.Context, targetOrg, patientID uuid.UUID, limit, offset int) ([]*ShareGrant, int, error) {
	where := `target_org_id = $1`
	args := []interface{}{targetOrg}
	if patientID != uuid.Nil {
		where += ` AND patient_id = $2`
		args = append(args, patientID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM share_grant WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	dataSQL := fmt.Sprintf(`SELECT `+grantCols+` FROM share_grant WHERE `+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, dataSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ShareGrant
	for rows.Next() {
		g, err := r.scanGrant(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, g)
	}
	return items, total, nil
}
