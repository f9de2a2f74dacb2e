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

	"github.com/traidnet/wificore/platform/go/faults"
)

// SchemaMappingTable maps RADIUS usernames to their tenant namespace.
const SchemaMappingTable = "radius_user_schema_mapping"

var mappingColumns = []string{"id", "username", "schema_name", "tenant_id", "user_role", "is_active", "created_at", "updated_at"}

// ErrMappingConflict is returned when an active mapping already exists for the username.
var ErrMappingConflict = errors.New("schema mapping already exists")

// SchemaMapping is one row of the username to namespace index.
type SchemaMapping struct {
	ID         uuid.UUID
	Username   string
	SchemaName string
	TenantID   uuid.UUID
	UserRole   string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SchemaMappingStore reads and writes the mapping index. Lookups here happen
// before any tenant is known, so the store never applies a tenant filter.
type SchemaMappingStore struct {
	q Querier
}

func NewSchemaMappingStore(q Querier) (*SchemaMappingStore, error) {
	if q == nil {
		return nil, errors.New("querier is required")
	}
	return &SchemaMappingStore{q: q}, nil
}

// With returns a copy of the store bound to q, typically a transaction.
func (s *SchemaMappingStore) With(q Querier) *SchemaMappingStore {
	return &SchemaMappingStore{q: q}
}

// Resolve returns the single active mapping for username.
//
// No rows yields faults.ErrUnknownUser, rows that are all inactive yield
// faults.ErrInactiveMapping and more than one active row yields
// faults.ErrAmbiguousMapping.
func (s *SchemaMappingStore) Resolve(ctx context.Context, username string) (SchemaMapping, error) {
	rows, err := query(ctx, s.q, psql.Select(mappingColumns...).
		From(SchemaMappingTable).
		Where(sq.Eq{"username": username}).
		OrderBy("created_at DESC"))
	if err != nil {
		return SchemaMapping{}, fmt.Errorf("resolve schema mapping: %w", err)
	}
	defer rows.Close()

	var (
		total  int
		active []SchemaMapping
	)
	for rows.Next() {
		m, err := scanSchemaMapping(rows)
		if err != nil {
			return SchemaMapping{}, err
		}
		total++
		if m.IsActive {
			active = append(active, m)
		}
	}
	if err := rows.Err(); err != nil {
		return SchemaMapping{}, err
	}

	switch {
	case total == 0:
		return SchemaMapping{}, faults.ErrUnknownUser
	case len(active) > 1:
		return SchemaMapping{}, fmt.Errorf("%w: %d active rows", faults.ErrAmbiguousMapping, len(active))
	case len(active) == 0:
		return SchemaMapping{}, faults.ErrInactiveMapping
	default:
		return active[0], nil
	}
}

// Create inserts an active mapping. Concurrent creates for the same username
// are serialized by the partial unique index and the loser gets ErrMappingConflict.
func (s *SchemaMappingStore) Create(ctx context.Context, m SchemaMapping) (SchemaMapping, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if strings.TrimSpace(m.Username) == "" {
		return SchemaMapping{}, errors.New("username is required")
	}
	if m.TenantID == uuid.Nil || m.SchemaName == "" {
		return SchemaMapping{}, errors.New("tenant id and schema name are required")
	}
	if m.UserRole == "" {
		m.UserRole = "user"
	}

	row, err := queryRow(ctx, s.q, psql.Insert(SchemaMappingTable).
		Columns("id", "username", "schema_name", "tenant_id", "user_role", "is_active").
		Values(m.ID, m.Username, m.SchemaName, m.TenantID, m.UserRole, true).
		Suffix("RETURNING "+strings.Join(mappingColumns, ", ")))
	if err != nil {
		return SchemaMapping{}, err
	}

	out, err := scanSchemaMapping(row)
	if err != nil {
		if isUniqueViolation(err) {
			return SchemaMapping{}, ErrMappingConflict
		}
		return SchemaMapping{}, err
	}
	return out, nil
}

// Deactivate turns off the active mapping for username. It reports whether a row changed.
func (s *SchemaMappingStore) Deactivate(ctx context.Context, username string) (bool, error) {
	tag, err := exec(ctx, s.q, psql.Update(SchemaMappingTable).
		Set("is_active", false).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"username": username, "is_active": true}))
	if err != nil {
		return false, fmt.Errorf("deactivate schema mapping: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateTenant turns off every mapping that points at tenantID.
func (s *SchemaMappingStore) DeactivateTenant(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	tag, err := exec(ctx, s.q, psql.Update(SchemaMappingTable).
		Set("is_active", false).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"tenant_id": tenantID, "is_active": true}))
	if err != nil {
		return 0, fmt.Errorf("deactivate tenant mappings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanSchemaMapping(row pgx.Row) (SchemaMapping, error) {
	var m SchemaMapping
	if err := row.Scan(&m.ID, &m.Username, &m.SchemaName, &m.TenantID, &m.UserRole, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SchemaMapping{}, faults.ErrUnknownUser
		}
		return SchemaMapping{}, err
	}
	return m, nil
}
