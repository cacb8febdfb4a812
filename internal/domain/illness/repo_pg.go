package illness

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recoup/recoup/internal/platform/db"
	"github.com/recoup/recoup/internal/platform/storage"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const illnessCols = `id, label, note, started_at, resolved_at, created_at, updated_at`

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

var _ storage.Repository[*Illness] = (*repoPG)(nil)

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func scanIllness(row pgx.Row) (*Illness, error) {
	var i Illness
	err := row.Scan(&i.ID, &i.Label, &i.Note, &i.StartedAt, &i.ResolvedAt, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repoPG) Save(ctx context.Context, ill *Illness) (*Illness, error) {
	if ill.ID == uuid.Nil {
		return nil, fmt.Errorf("storage: entity has no id")
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO illnesses (id, label, note, started_at, resolved_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			label=$2, note=$3, started_at=$4, resolved_at=$5, updated_at=$7`,
		ill.ID, ill.Label, ill.Note, ill.StartedAt, ill.ResolvedAt, ill.CreatedAt, ill.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return ill, nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Illness, error) {
	ill, err := scanIllness(r.conn(ctx).QueryRow(ctx, `SELECT `+illnessCols+` FROM illnesses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ill, err
}

func (r *repoPG) GetAll(ctx context.Context) ([]*Illness, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+illnessCols+` FROM illnesses ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Illness
	for rows.Next() {
		ill, err := scanIllness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ill)
	}
	return out, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM illnesses WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM illnesses WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) Find(ctx context.Context, match func(*Illness) bool) ([]*Illness, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Illness
	for _, ill := range all {
		if match(ill) {
			out = append(out, ill)
		}
	}
	return out, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM illnesses`).Scan(&n)
	return n, err
}
