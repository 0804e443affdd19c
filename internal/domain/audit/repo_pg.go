package audit

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

const entryCols = `id, actor_kind, actor_user_id, actor_subsystem, action, details,
	resource_type, resource_id, metadata, created_at`

func (r *repoPG) scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.ActorKind, &e.ActorUserID, &e.ActorSubsystem, &e.Action,
		&e.Details, &e.ResourceType, &e.ResourceID, &e.Metadata, &e.CreatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO audit_entry (id, actor_kind, actor_user_id, actor_subsystem,
			action, details, resource_type, resource_id, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.ActorKind, e.ActorUserID, e.ActorSubsystem,
		e.Action, e.Details, e.ResourceType, e.ResourceID, e.Metadata)
	return err
}

func (r *repoPG) Search(ctx context.Context, filter SearchFilter, limit, offset int) ([]*Entry, int, error) {
	where := ""
	args := []interface{}{}
	n := 0
	if filter.ActorUserID != uuid.Nil {
		n++
		where += fmt.Sprintf(" AND actor_user_id = $%d", n)
		args = append(args, filter.ActorUserID)
	}
	if filter.Action != "" {
		n++
		where += fmt.Sprintf(" AND action = $%d", n)
		args = append(args, filter.Action)
	}
	if filter.ResourceType != "" {
		n++
		where += fmt.Sprintf(" AND resource_type = $%d", n)
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != uuid.Nil {
		n++
		where += fmt.Sprintf(" AND resource_id = $%d", n)
		args = append(args, filter.ResourceID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM audit_entry WHERE TRUE`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := fmt.Sprintf(`SELECT `+entryCols+` FROM audit_entry WHERE TRUE`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, dataSQL, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, nil
}
