package visit

import (
	"context"
	"fmt"

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const visitCols = `id, patient_id, organization_id, practitioner_name, status, reason,
	started_at, ended_at, shared_with, created_at, updated_at`

func (r *repoPG) scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.OrganizationID, &v.PractitionerName,
		&v.Status, &v.Reason, &v.StartedAt, &v.EndedAt, &v.SharedWith,
		&v.CreatedAt, &v.UpdatedAt)
	return &v, err
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	if v.SharedWith == nil {
		v.SharedWith = []uuid.UUID{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visit (id, patient_id, organization_id, practitioner_name,
			status, reason, started_at, ended_at, shared_with)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.PatientID, v.OrganizationID, v.PractitionerName,
		v.Status, v.Reason, v.StartedAt, v.EndedAt, v.SharedWith)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return r.scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET practitioner_name=$2, status=$3, reason=$4,
			started_at=$5, ended_at=$6, updated_at=NOW()
		WHERE id = $1`,
		v.ID, v.PractitionerName, v.Status, v.Reason, v.StartedAt, v.EndedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, patientID, orgID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	where := ""
	args := []interface{}{}
	n := 0
	if patientID != uuid.Nil {
		n++
		where += fmt.Sprintf(" AND patient_id = $%d", n)
		args = append(args, patientID)
	}
	if orgID != uuid.Nil {
		n++
		where += fmt.Sprintf(" AND organization_id = $%d", n)
		args = append(args, orgID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit WHERE TRUE`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := fmt.Sprintf(`SELECT `+visitCols+` FROM visit WHERE TRUE`+where+
		` ORDER BY started_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, dataSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := r.scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, nil
}

func (r *repoPG) ListByPatientOrg(ctx context.Context, patientID, orgID uuid.UUID) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+visitCols+` FROM visit
		WHERE patient_id = $1 AND organization_id = $2
		ORDER BY started_at DESC`, patientID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Visit
	for rows.Next() {
		v, err := r.scanVisit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

func (r *repoPG) AppendSharedWith(ctx context.Context, ids []uuid.UUID, orgID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit SET shared_with = array_append(shared_with, $2), updated_at = NOW()
		WHERE id = ANY($1) AND NOT ($2 = ANY(shared_with))`, ids, orgID)
	return err
}
