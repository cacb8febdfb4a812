package draftclaim

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

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed draft claim Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

var _ Repository = (*repoPG)(nil)

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

var draftIndexColumns = map[string]string{
	IndexStatus: "status",
}

const draftCols = `id, status, primary_document_id, document_ids, payment, illness_id,
	treatment_date, treatment_date_source, payment_proof_document_ids,
	record_version, created_at, updated_at`

func scanDraft(row pgx.Row) (*DraftClaim, error) {
	var (
		d        DraftClaim
		docsJSON []byte
		payJSON  []byte
		prfJSON  []byte
	)
	err := row.Scan(&d.ID, &d.Status, &d.PrimaryDocumentID, &docsJSON, &payJSON, &d.IllnessID,
		&d.TreatmentDate, &d.TreatmentDateSource, &prfJSON,
		&d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if docsJSON != nil {
		if err := json.Unmarshal(docsJSON, &d.DocumentIDs); err != nil {
			return nil, fmt.Errorf("decode document_ids: %w", err)
		}
	}
	if payJSON != nil {
		if err := json.Unmarshal(payJSON, &d.Payment); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
	}
	if prfJSON != nil {
		if err := json.Unmarshal(prfJSON, &d.PaymentProofDocumentIDs); err != nil {
			return nil, fmt.Errorf("decode payment_proof_document_ids: %w", err)
		}
	}
	return &d, nil
}

// Save upserts the draft with a compare-and-swap on record_version. The row is
// written with the incremented version; a concurrent writer that bumped the
// version first makes the guarded update match zero rows, which surfaces as
// storage.ErrVersionConflict.
func (r *repoPG) Save(ctx context.Context, d *DraftClaim) (*DraftClaim, error) {
	if d.ID == uuid.Nil {
		return nil, fmt.Errorf("storage: entity has no id")
	}
	docsJSON, err := marshalOrNil(d.DocumentIDs, len(d.DocumentIDs) == 0)
	if err != nil {
		return nil, err
	}
	payJSON, err := json.Marshal(d.Payment)
	if err != nil {
		return nil, fmt.Errorf("encode payment: %w", err)
	}
	prfJSON, err := marshalOrNil(d.PaymentProofDocumentIDs, len(d.PaymentProofDocumentIDs) == 0)
	if err != nil {
		return nil, err
	}

	next := d.Clone()
	next.SetRecordVersion(next.RecordVersion() + 1)

	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO draft_claims (id, status, primary_document_id, document_ids, payment, illness_id,
			treatment_date, treatment_date_source, payment_proof_document_ids,
			record_version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			status=$2, primary_document_id=$3, document_ids=$4, payment=$5, illness_id=$6,
			treatment_date=$7, treatment_date_source=$8, payment_proof_document_ids=$9,
			record_version=$10, updated_at=$12
		WHERE draft_claims.record_version = $13`,
		next.ID, next.Status, next.PrimaryDocumentID, docsJSON, payJSON, next.IllnessID,
		next.TreatmentDate, next.TreatmentDateSource, prfJSON,
		next.Version, next.CreatedAt, next.UpdatedAt, d.Version)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, storage.ErrVersionConflict
	}
	return next, nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*DraftClaim, error) {
	d, err := scanDraft(r.conn(ctx).QueryRow(ctx, `SELECT `+draftCols+` FROM draft_claims WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *repoPG) GetAll(ctx context.Context) ([]*DraftClaim, error) {
	return r.queryMany(ctx, `SELECT `+draftCols+` FROM draft_claims ORDER BY created_at, id`)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM draft_claims WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM draft_claims WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) Find(ctx context.Context, match func(*DraftClaim) bool) ([]*DraftClaim, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*DraftClaim
	for _, d := range all {
		if match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM draft_claims`).Scan(&n)
	return n, err
}

func (r *repoPG) FindByIndex(ctx context.Context, field string, value any) (*DraftClaim, error) {
	col, ok := draftIndexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	d, err := scanDraft(r.conn(ctx).QueryRow(ctx,
		`SELECT `+draftCols+` FROM draft_claims WHERE `+col+` = $1 ORDER BY created_at, id LIMIT 1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (r *repoPG) FindAllByIndex(ctx context.Context, field string, value any) ([]*DraftClaim, error) {
	col, ok := draftIndexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	return r.queryMany(ctx, `SELECT `+draftCols+` FROM draft_claims WHERE `+col+` = $1 ORDER BY created_at, id`, value)
}

func (r *repoPG) CountByIndex(ctx context.Context, field string, value any) (int, error) {
	col, ok := draftIndexColumns[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM draft_claims WHERE `+col+` = $1`, value).Scan(&n)
	return n, err
}

// FindByDocumentID matches on JSONB containment over the attached id array.
func (r *repoPG) FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*DraftClaim, error) {
	needle, err := json.Marshal([]uuid.UUID{documentID})
	if err != nil {
		return nil, fmt.Errorf("encode document id: %w", err)
	}
	return r.queryMany(ctx,
		`SELECT `+draftCols+` FROM draft_claims WHERE document_ids @> $1 ORDER BY created_at, id`, needle)
}

func (r *repoPG) queryMany(ctx context.Context, sql string, args ...interface{}) ([]*DraftClaim, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DraftClaim
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
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
