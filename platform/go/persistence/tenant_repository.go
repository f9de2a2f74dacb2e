package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantsTable is the tenant registry in the system schema.
const TenantsTable = "tenants"

var tenantColumns = []string{"id", "name", "slug", "schema_name", "is_active", "created_at", "updated_at"}

// TenantRecord is one row of the tenant registry. SchemaName never changes once assigned.
type TenantRecord struct {
	ID         uuid.UUID `db:"id"`
	Name       string    `db:"name"`
	Slug       string    `db:"slug"`
	SchemaName string    `db:"schema_name"`
	IsActive   bool      `db:"is_active"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

var (
	// ErrNotFound is returned when a tenant record is not found.
	ErrNotFound = errors.New("tenant not found")
	// ErrTenantConflict indicates a duplicated slug or schema name.
	ErrTenantConflict = errors.New("tenant conflict")
)

// TenantStore provides access to the tenants table. It is never tenant scoped:
// it is read by login and job runners before any tenant is established.
type TenantStore struct {
	q Querier
}

func NewTenantStore(q Querier) (*TenantStore, error) {
	if q == nil {
		return nil, errors.New("querier is required")
	}
	return &TenantStore{q: q}, nil
}

// Create inserts a tenant. Slug and schema uniqueness are enforced by the store.
func (s *TenantStore) Create(ctx context.Context, rec TenantRecord) (TenantRecord, error) {
	if rec.ID == uuid.Nil {
		return TenantRecord{}, errors.New("tenant id is required")
	}
	if strings.TrimSpace(rec.SchemaName) == "" {
		return TenantRecord{}, errors.New("tenant schema name is required")
	}

	row, err := queryRow(ctx, s.q, psql.Insert(TenantsTable).
		Columns("id", "name", "slug", "schema_name", "is_active").
		Values(rec.ID, strings.TrimSpace(rec.Name), rec.Slug, rec.SchemaName, true).
		Suffix("RETURNING "+strings.Join(tenantColumns, ", ")))
	if err != nil {
		return TenantRecord{}, err
	}

	out, err := scanTenantRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return TenantRecord{}, ErrTenantConflict
		}
		return TenantRecord{}, err
	}
	return out, nil
}

// Get returns a tenant regardless of its active flag.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	return s.getWhere(ctx, sq.Eq{"id": id})
}

// GetActive returns the tenant only while it is active.
func (s *TenantStore) GetActive(ctx context.Context, id uuid.UUID) (TenantRecord, error) {
	return s.getWhere(ctx, sq.Eq{"id": id, "is_active": true})
}

// GetBySlug returns a tenant by slug.
func (s *TenantStore) GetBySlug(ctx context.Context, slug string) (TenantRecord, error) {
	return s.getWhere(ctx, sq.Eq{"slug": slug})
}

func (s *TenantStore) getWhere(ctx context.Context, where sq.Eq) (TenantRecord, error) {
	row, err := queryRow(ctx, s.q, psql.Select(tenantColumns...).From(TenantsTable).Where(where))
	if err != nil {
		return TenantRecord{}, err
	}
	return scanTenantRecord(row)
}

// List returns tenants ordered by creation time, newest first.
func (s *TenantStore) List(ctx context.Context, includeInactive bool, limit, offset int) ([]TenantRecord, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	where := sq.And{}
	if !includeInactive {
		where = append(where, sq.Eq{"is_active": true})
	}

	var total int
	countRow, err := queryRow(ctx, s.q, psql.Select("COUNT(*)").From(TenantsTable).Where(where))
	if err != nil {
		return nil, 0, err
	}
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}

	rows, err := query(ctx, s.q, psql.Select(tenantColumns...).From(TenantsTable).Where(where).
		OrderBy("created_at DESC").Limit(uint64(limit)).Offset(uint64(offset)))
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	records := make([]TenantRecord, 0)
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// SetActive flips the soft activation flag. Tenants are never deleted.
func (s *TenantStore) SetActive(ctx context.Context, id uuid.UUID, active bool) (TenantRecord, error) {
	row, err := queryRow(ctx, s.q, psql.Update(TenantsTable).
		Set("is_active", active).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING "+strings.Join(tenantColumns, ", ")))
	if err != nil {
		return TenantRecord{}, err
	}
	return scanTenantRecord(row)
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Slug, &rec.SchemaName, &rec.IsActive, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}
