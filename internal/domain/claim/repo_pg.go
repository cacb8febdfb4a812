package claim

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

const scrapedCols = `id, external_id, submission_id, member_ref, provider_name, amount, currency,
	treatment_date, status, created_at, updated_at`

type scrapedRepoPG struct{ pool *pgxpool.Pool }

// NewScrapedRepoPG returns the Postgres-backed ScrapedRepository.
func NewScrapedRepoPG(pool *pgxpool.Pool) ScrapedRepository { return &scrapedRepoPG{pool: pool} }

var _ storage.IndexedRepository[*ScrapedClaim] = (*scrapedRepoPG)(nil)

func (r *scrapedRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

var scrapedIndexColumns = map[string]string{
	IndexExternalID: "external_id",
	IndexStatus:     "status",
}

func scanScrapedClaim(row pgx.Row) (*ScrapedClaim, error) {
	var sc ScrapedClaim
	err := row.Scan(&sc.ID, &sc.ExternalID, &sc.SubmissionID, &sc.MemberRef, &sc.ProviderName,
		&sc.Amount, &sc.Currency, &sc.TreatmentDate, &sc.Status, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (r *scrapedRepoPG) Save(ctx context.Context, sc *ScrapedClaim) (*ScrapedClaim, error) {
	if sc.ID == uuid.Nil {
		return nil, fmt.Errorf("storage: entity has no id")
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO scraped_claims (id, external_id, submission_id, member_ref, provider_name,
			amount, currency, treatment_date, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			external_id=$2, submission_id=$3, member_ref=$4, provider_name=$5,
			amount=$6, currency=$7, treatment_date=$8, status=$9, updated_at=$11`,
		sc.ID, sc.ExternalID, sc.SubmissionID, sc.MemberRef, sc.ProviderName,
		sc.Amount, sc.Currency, sc.TreatmentDate, sc.Status, sc.CreatedAt, sc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (r *scrapedRepoPG) Get(ctx context.Context, id uuid.UUID) (*ScrapedClaim, error) {
	sc, err := scanScrapedClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+scrapedCols+` FROM scraped_claims WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

func (r *scrapedRepoPG) GetAll(ctx context.Context) ([]*ScrapedClaim, error) {
	return r.queryMany(ctx, `SELECT `+scrapedCols+` FROM scraped_claims ORDER BY created_at, id`)
}

func (r *scrapedRepoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM scraped_claims WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *scrapedRepoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM scraped_claims WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *scrapedRepoPG) Find(ctx context.Context, match func(*ScrapedClaim) bool) ([]*ScrapedClaim, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*ScrapedClaim
	for _, sc := range all {
		if match(sc) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (r *scrapedRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM scraped_claims`).Scan(&n)
	return n, err
}

func (r *scrapedRepoPG) FindByIndex(ctx context.Context, field string, value any) (*ScrapedClaim, error) {
	col, ok := scrapedIndexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	sc, err := scanScrapedClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+scrapedCols+` FROM scraped_claims WHERE `+col+` = $1 ORDER BY created_at, id LIMIT 1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sc, err
}

func (r *scrapedRepoPG) FindAllByIndex(ctx context.Context, field string, value any) ([]*ScrapedClaim, error) {
	col, ok := scrapedIndexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	return r.queryMany(ctx, `SELECT `+scrapedCols+` FROM scraped_claims WHERE `+col+` = $1 ORDER BY created_at, id`, value)
}

func (r *scrapedRepoPG) CountByIndex(ctx context.Context, field string, value any) (int, error) {
	col, ok := scrapedIndexColumns[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM scraped_claims WHERE `+col+` = $1`, value).Scan(&n)
	return n, err
}

func (r *scrapedRepoPG) queryMany(ctx context.Context, sql string, args ...interface{}) ([]*ScrapedClaim, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScrapedClaim
	for rows.Next() {
		sc, err := scanScrapedClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

const claimCols = `id, submission_id, member_ref, provider_name, amount, currency, treatment_date,
	draft_claim_id, illness_id, status, status_changed_at, submitted_at, created_at, updated_at`

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns the Postgres-backed claim Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

var _ storage.IndexedRepository[*Claim] = (*repoPG)(nil)

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

var claimIndexColumns = map[string]string{
	IndexStatus: "status",
}

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.SubmissionID, &c.MemberRef, &c.ProviderName, &c.Amount, &c.Currency,
		&c.TreatmentDate, &c.DraftClaimID, &c.IllnessID, &c.Status, &c.StatusChangedAt,
		&c.SubmittedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repoPG) Save(ctx context.Context, c *Claim) (*Claim, error) {
	if c.ID == uuid.Nil {
		return nil, fmt.Errorf("storage: entity has no id")
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claims (id, submission_id, member_ref, provider_name, amount, currency,
			treatment_date, draft_claim_id, illness_id, status, status_changed_at,
			submitted_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			submission_id=$2, member_ref=$3, provider_name=$4, amount=$5, currency=$6,
			treatment_date=$7, draft_claim_id=$8, illness_id=$9, status=$10,
			status_changed_at=$11, submitted_at=$12, updated_at=$14`,
		c.ID, c.SubmissionID, c.MemberRef, c.ProviderName, c.Amount, c.Currency,
		c.TreatmentDate, c.DraftClaimID, c.IllnessID, c.Status, c.StatusChangedAt,
		c.SubmittedAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *repoPG) GetAll(ctx context.Context) ([]*Claim, error) {
	return r.queryMany(ctx, `SELECT `+claimCols+` FROM claims ORDER BY created_at, id`)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM claims WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) Find(ctx context.Context, match func(*Claim) bool) ([]*Claim, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Claim
	for _, c := range all {
		if match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *repoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claims`).Scan(&n)
	return n, err
}

func (r *repoPG) FindByIndex(ctx context.Context, field string, value any) (*Claim, error) {
	col, ok := claimIndexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claims WHERE `+col+` = $1 ORDER BY created_at, id LIMIT 1`, value))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (r *repoPG) FindAllByIndex(ctx context.Context, field string, value any) ([]*Claim, error) {
	col, ok := claimIndexColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	return r.queryMany(ctx, `SELECT `+claimCols+` FROM claims WHERE `+col+` = $1 ORDER BY created_at, id`, value)
}

func (r *repoPG) CountByIndex(ctx context.Context, field string, value any) (int, error) {
	col, ok := claimIndexColumns[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrUnknownIndex, field)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claims WHERE `+col+` = $1`, value).Scan(&n)
	return n, err
}

func (r *repoPG) queryMany(ctx context.Context, sql string, args ...interface{}) ([]*Claim, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
