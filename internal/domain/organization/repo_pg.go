package organization

import (
	"context"

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

const orgCols = `id, name, type_code, active, address_line, city, state, postal_code,
	phone, email, created_at, updated_at`

func (r *repoPG) scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.TypeCode, &o.Active, &o.AddressLine, &o.City,
		&o.State, &o.PostalCode, &o.Phone, &o.Email, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *repoPG) Create(ctx context.Context, o *Organization) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO organization (id, name, type_code, active, address_line, city,
			state, postal_code, phone, email)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.Name, o.TypeCode, o.Active, o.AddressLine, o.City,
		o.State, o.PostalCode, o.Phone, o.Email)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return r.scanOrg(r.conn(ctx).QueryRow(ctx, `SELECT `+orgCols+` FROM organization WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, o *Organization) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE organization SET name=$2, type_code=$3, active=$4, address_line=$5,
			city=$6, state=$7, postal_code=$8, phone=$9, email=$10, updated_at=NOW()
		WHERE id = $1`,
		o.ID, o.Name, o.TypeCode, o.Active, o.AddressLine,
		o.City, o.State, o.PostalCode, o.Phone, o.Email)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM organization WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Organization, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM organization`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+orgCols+` FROM organization ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Organization
	for rows.Next() {
		o, err := r.scanOrg(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, nil
}

const memberCols = `id, organization_id, user_id, role, active, created_at`

func (r *repoPG) scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.OrgID, &m.UserID, &m.Role, &m.Active, &m.CreatedAt)
	return &m, err
}

func (r *repoPG) AddMember(ctx context.Context, m *Member) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO organization_member (id, organization_id, user_id, role, active)
		VALUES ($1,$2,$3,$4,$5)`,
		m.ID, m.OrgID, m.UserID, m.Role, m.Active)
	return err
}

func (r *repoPG) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	return r.queryMembers(ctx, `SELECT `+memberCols+` FROM organization_member
		WHERE organization_id = $1 AND active = TRUE ORDER BY created_at`, orgID)
}

func (r *repoPG) ListAdmins(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	return r.queryMembers(ctx, `SELECT `+memberCols+` FROM organization_member
		WHERE organization_id = $1 AND role = 'admin' AND active = TRUE ORDER BY created_at`, orgID)
}

func (r *repoPG) queryMembers(ctx context.Context, sql string, args ...interface{}) ([]*Member, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Member
	for rows.Next() {
		m, err := r.scanMember(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, nil
}

func (r *repoPG) RemoveMember(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE organization_member SET active = FALSE WHERE id = $1`, id)
	return err
}
