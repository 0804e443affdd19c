package labresult

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

const labResultCols = `id, patient_id, organization_id, test_code, test_name, status,
	value, unit, reference_range, effective_at, shared_with, created_at, updated_at`

func (r *repoPG) scanResult(row pgx.Row) (*LabResult, error) {
	var lr LabResult
	err := row.Scan(&lr.ID, &lr.PatientID, &lr.OrganizationID, &lr.TestCode, &lr.TestName,
		&lr.Status, &lr.Value, &lr.Unit, &lr.ReferenceRange, &lr.EffectiveAt,
		&lr.SharedWith, &lr.CreatedAt, &lr.UpdatedAt)
	return &lr, err
}

func (r *repoPG) Create(ctx context.Context, lr *LabResult) error {
	lr.ID = uuid.New()
	if lr.SharedWith == nil {
		lr.SharedWith = []uuid.UUID{}
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_result (id, patient_id, organization_id, test_code, test_name,
			status, value, unit, reference_range, effective_at, shared_with)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		lr.ID, lr.PatientID, lr.OrganizationID, lr.TestCode, lr.TestName,
		lr.Status, lr.Value, lr.Unit, lr.ReferenceRange, lr.EffectiveAt, lr.SharedWith)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabResult, error) {
	return r.scanResult(r.conn(ctx).QueryRow(ctx, `SELECT `+labResultCols+` FROM lab_result WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, lr *LabResult) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_result SET test_code=$2, test_name=$3, status=$4, value=$5,
			unit=$6, reference_range=$7, effective_at=$8, updated_at=NOW()
		WHERE id = $1`,
		lr.ID, lr.TestCode, lr.TestName, lr.Status, lr.Value,
		lr.Unit, lr.ReferenceRange, lr.EffectiveAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_result WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, patientID, orgID uuid.UUID, limit, offset int) ([]*LabResult, int, error) {
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
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_result WHERE TRUE`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := fmt.Sprintf(`SELECT `+labResultCols+` FROM lab_result WHERE TRUE`+where+
		` ORDER BY effective_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, dataSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*LabResult
	for rows.Next() {
		lr, err := r.scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, lr)
	}
	return items, total, nil
}

func (r *repoPG) ListByPatientOrg(ctx context.Context, patientID, orgID uuid.UUID) ([]*LabResult, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+labResultCols+` FROM lab_result
		WHERE patient_id = $1 AND organization_id = $2
		ORDER BY effective_at DESC`, patientID, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*LabResult
	for rows.Next() {
		lr, err := r.scanResult(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lr)
	}
	return items, nil
}

func (r *repoPG) AppendSharedWith(ctx context.Context, ids []uuid.UUID, orgID uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE lab_result SET shared_with = array_append(shared_with, $2), updated_at = NOW()
		WHERE id = ANY($1) AND NOT ($2 = ANY(shared_with))`, ids, orgID)
	return err
}
