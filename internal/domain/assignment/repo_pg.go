package assignment

import (
	"context"
	"encoding/json"
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

const assignmentCols = `id, document_id, claim_id, illness_id, status, score, reason_type, reason,
	amount_match, date_match, confirmed_at, confirmed_by, review_notes, created_at, updated_at`

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed assignment Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

var _ storage.IndexedRepository[*DocumentClaimAssignment] = (*repoPG)(nil)

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

var indexColumns = map[string]string{
	IndexDocumentID: "document_id",
	IndexClaimID:    "claim_id",
	IndexStatus:     "status",
}

func scanAssignment(row pgx.Row) (*DocumentClaimAssignment, error) {
	var (
		a          DocumentClaimAssignment
		amountJSON []byte
		dateJSON   []byte
	)
	err := row.Scan(&a.ID, &a.DocumentID, &a.ClaimID, &a.IllnessID, &a.Status, &a.Score,
		&a.ReasonType, &a.Reason, &amountJSON, &dateJSON,
		&a.ConfirmedAt, &a.ConfirmedBy, &a.ReviewNotes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if amountJSON != nil {
		if err := json.Unmarshal(amountJSON, &a.AmountMatch); err != nil {
			return nil, fmt.Errorf("decode amount_match: %w", err)
		}
	}
	if dateJSON != nil {
		if err := json.Unmarshal(dateJSON, &a.DateMatch); err != nil {
			return nil, fmt.Errorf("decode date_match: %w", err)
		}
	}
	return &a, nil
}

func (r *repoPG) Save(ctx context.Context, a *DocumentClaimAssignment) (*DocumentClaimAssignment, error) {
	if a.ID == uuid.Nil {
		return nil, fmt.Errorf("storage: entity has no id")
	}
	amountJSON, err := marshalOrNil(a.AmountMatch, a.AmountMatch == nil)
	if err != nil {
		return nil, err
	}
	dateJSON, err := marshalOrNil(a.DateMatch, a.DateMatch == nil)
	if err != nil {
		return nil, err
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO assignments (id, document_id, claim_id, illness_id, status, score, reason_type,
			reason, amount_match, date_match, confirmed_at, confirmed_by, review_notes,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			document_id=$2, claim_id=$3, illness_id=$4, status=$5, score=$6, reason_type=$7,
			reason=$8, amount_match=$9, date_match=$10, confirmed_at=$11, confirmed_by=$12,
			review_notes=$13, updated_at=$15`,
		a.ID, a.DocumentID, a.ClaimID, a.IllnessID, a.Status, a.Score, a.ReasonType,
		a.Reason, amountJSON, dateJSON, a.ConfirmedAt, a.ConfirmedBy, a.ReviewNotes,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*DocumentClaimAssignment, error) {
	a, err := scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *repoPG) GetAll(ctx context.Context) ([]*DocumentClaimAssignment, error) {
	return r.queryMany(ctx, `SELECT `+assignmentCols+` FROM assignments ORDER BY created_at, id`)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM assignments WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) Find(ctx context.Context, match func(*DocumentClaimAssignment) bool) ([]*DocumentClaimAssignment, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*DocumentClaimAssignment
	for _, a := range all {
		if match(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assignments`).Scan(&n)
	return n, err
}

func (r *repoPG) FindByIndex(ctx context.Context, field string, value any) (*DocumentClaimAssignment, error) {
	col, ok := indexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	a, err := scanAssignment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+assignmentCols+` FROM assignments WHERE `+col+` = $1 ORDER BY created_at, id LIMIT 1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *repoPG) FindAllByIndex(ctx context.Context, field string, value any) ([]*DocumentClaimAssignment, error) {
	col, ok := indexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	return r.queryMany(ctx, `SELECT `+assignmentCols+` FROM assignments WHERE `+col+` = $1 ORDER BY created_at, id`, value)
}

func (r *repoPG) CountByIndex(ctx context.Context, field string, value any) (int, error) {
	col, ok := indexColumns[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM assignments WHERE `+col+` = $1`, value).Scan(&n)
	return n, err
}

func (r *repoPG) queryMany(ctx context.Context, sql string, args ...interface{}) ([]*DocumentClaimAssignment, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DocumentClaimAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func marshalOrNil(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode jsonb: %w", err)
	}
	return b, nil
}
