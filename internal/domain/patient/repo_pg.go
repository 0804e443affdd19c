package patient

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

const patientCols = `id, organization_id, mrn, family_name, given_name, birth_date,
	gender, phone, email, address_line, created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.OrganizationID, &p.MRN, &p.FamilyName, &p.GivenName,
		&p.BirthDate, &p.Gender, &p.Phone, &p.Email, &p.AddressLine,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, organization_id, mrn, family_name, given_name,
			birth_date, gender, phone, email, address_line)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.OrganizationID, p.MRN, p.FamilyName, p.GivenName,
		p.BirthDate, p.Gender, p.Phone, p.Email, p.AddressLine)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET mrn=$2, family_name=$3, given_name=$4, birth_date=$5,
			gender=$6, phone=$7, email=$8, address_line=$9, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.MRN, p.FamilyName, p.GivenName, p.BirthDate,
		p.Gender, p.Phone, p.Email, p.AddressLine)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient WHERE id = $1`, id)
	return err
}

func (r *repoPG) Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Patient, int, error) {
	where := ""
	args := []interface{}{}
	n := 0
	if filter.MRN != "" {
		n++
		where += fmt.Sprintf(" AND mrn = $%d", n)
		args = append(args, filter.MRN)
	}
	if filter.Name != "" {
		n++
		where += fmt.Sprintf(" AND (family_name ILIKE $%d OR given_name ILIKE $%d)", n, n)
		args = append(args, "%"+filter.Name+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE TRUE`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := fmt.Sprintf(`SELECT `+patientCols+` FROM patient WHERE TRUE`+where+
		` ORDER BY family_name, given_name LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, dataSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}
