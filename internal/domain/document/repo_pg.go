package document

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

// NewRepoPG returns the Postgres-backed document Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

var _ storage.IndexedRepository[*MedicalDocument] = (*repoPG)(nil)

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// indexColumns whitelists the index fields the contract exposes.
var indexColumns = map[string]string{
	IndexMessageID:   "message_id",
	IndexSourceType:  "source_type",
	IndexFingerprint: "fingerprint",
}

const docCols = `id, source_type, title, message_id, attachment_path, fingerprint,
	provider, document_date, classification, detected_amounts, payment_override,
	archived_at, created_at, updated_at`

func scanDocument(row pgx.Row) (*MedicalDocument, error) {
	var (
		d            MedicalDocument
		amountsJSON  []byte
		overrideJSON []byte
	)
	err := row.Scan(&d.ID, &d.SourceType, &d.Title, &d.MessageID, &d.AttachmentPath, &d.Fingerprint,
		&d.Provider, &d.DocumentDate, &d.Classification, &amountsJSON, &overrideJSON,
		&d.ArchivedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if amountsJSON != nil {
		if err := json.Unmarshal(amountsJSON, &d.DetectedAmounts); err != nil {
			return nil, fmt.Errorf("decode detected_amounts: %w", err)
		}
	}
	if overrideJSON != nil {
		if err := json.Unmarshal(overrideJSON, &d.PaymentOverride); err != nil {
			return nil, fmt.Errorf("decode payment_override: %w", err)
		}
	}
	return &d, nil
}

func (r *repoPG) Save(ctx context.Context, doc *MedicalDocument) (*MedicalDocument, error) {
	if doc.ID == uuid.Nil {
		return nil, fmt.Errorf("storage: entity has no id")
	}
	amountsJSON, err := marshalOrNil(doc.DetectedAmounts, len(doc.DetectedAmounts) == 0)
	if err != nil {
		return nil, err
	}
	overrideJSON, err := marshalOrNil(doc.PaymentOverride, doc.PaymentOverride == nil)
	if err != nil {
		return nil, err
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO documents (id, source_type, title, message_id, attachment_path, fingerprint,
			provider, document_date, classification, detected_amounts, payment_override,
			archived_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			source_type=$2, title=$3, message_id=$4, attachment_path=$5, fingerprint=$6,
			provider=$7, document_date=$8, classification=$9, detected_amounts=$10,
			payment_override=$11, archived_at=$12, updated_at=$14`,
		doc.ID, doc.SourceType, doc.Title, doc.MessageID, doc.AttachmentPath, doc.Fingerprint,
		doc.Provider, doc.DocumentDate, doc.Classification, amountsJSON, overrideJSON,
		doc.ArchivedAt, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*MedicalDocument, error) {
	doc, err := scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+docCols+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (r *repoPG) GetAll(ctx context.Context) ([]*MedicalDocument, error) {
	return r.queryMany(ctx, `SELECT `+docCols+` FROM documents ORDER BY created_at, id`)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// Find loads the full pool and filters in memory; the predicate contract is
// storage-agnostic, so it cannot be pushed into SQL.
func (r *repoPG) Find(ctx context.Context, match func(*MedicalDocument) bool) ([]*MedicalDocument, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*MedicalDocument
	for _, d := range all {
		if match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

func (r *repoPG) FindByIndex(ctx context.Context, field string, value any) (*MedicalDocument, error) {
	col, ok := indexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	doc, err := scanDocument(r.conn(ctx).QueryRow(ctx,
		`SELECT `+docCols+` FROM documents WHERE `+col+` = $1 ORDER BY created_at, id LIMIT 1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return doc, err
}

func (r *repoPG) FindAllByIndex(ctx context.Context, field string, value any) ([]*MedicalDocument, error) {
	col, ok := indexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	return r.queryMany(ctx, `SELECT `+docCols+` FROM documents WHERE `+col+` = $1 ORDER BY created_at, id`, value)
}

func (r *repoPG) CountByIndex(ctx context.Context, field string, value any) (int, error) {
	col, ok := indexColumns[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE `+col+` = $1`, value).Scan(&n)
	return n, err
}

func (r *repoPG) queryMany(ctx context.Context, sql string, args ...interface{}) ([]*MedicalDocument, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*MedicalDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// marshalOrNil serializes v for a JSONB column, writing NULL when empty.
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
