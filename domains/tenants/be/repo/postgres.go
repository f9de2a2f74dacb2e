package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/domains/tenants/be/service"
	"github.com/traidnet/wificore/platform/go/persistence"
)

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository implements the tenant repository on the platform schema.
type PostgresRepository struct {
	db     txStarter
	store  *persistence.TenantStore
	logger *zap.Logger
}

// NewPostgresRepository constructs a repository backed by TenantStore. db is
// used for the transaction that deactivates a tenant together with its
// schema mappings.
func NewPostgresRepository(db txStarter, store *persistence.TenantStore, logger *zap.Logger) *PostgresRepository {
	if db == nil {
		panic("tenant repo requires db")
	}
	if store == nil {
		panic("tenant store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{db: db, store: store, logger: logger}
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) (service.ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	rows, total, err := r.store.List(ctx, opts.IncludeInactive, size, offset)
	if err != nil {
		return service.ListResult{}, err
	}

	tenants := make([]service.Tenant, 0, len(rows))
	for _, rec := range rows {
		tenants = append(tenants, toServiceTenant(rec))
	}

	totalPages := (total + size - 1) / size
	return service.ListResult{Tenants: tenants, Page: page, PageSize: size, TotalItems: total, TotalPages: totalPages}, nil
}

func (r *PostgresRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	out, err := r.store.Create(ctx, toRecord(t))
	if err != nil {
		return service.Tenant{}, mapConflict(err)
	}
	return toServiceTenant(out), nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) FindBySlug(ctx context.Context, slug string) (service.Tenant, error) {
	rec, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (service.Tenant, error) {
	if active {
		rec, err := r.store.SetActive(ctx, id, true)
		if err != nil {
			return service.Tenant{}, mapNotFound(err)
		}
		return toServiceTenant(rec), nil
	}

	var (
		rec      persistence.TenantRecord
		released int64
	)
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		tenants, err := persistence.NewTenantStore(tx)
		if err != nil {
			return err
		}
		mappings, err := persistence.NewSchemaMappingStore(tx)
		if err != nil {
			return err
		}

		rec, err = tenants.SetActive(ctx, id, false)
		if err != nil {
			return err
		}
		released, err = mappings.DeactivateTenant(ctx, id)
		if err != nil {
			return fmt.Errorf("deactivate tenant mappings: %w", err)
		}
		return nil
	})
	if err != nil {
		return service.Tenant{}, mapNotFound(err)
	}

	r.logger.Info("tenant mappings deactivated",
		zap.String("tenant_id", id.String()),
		zap.Int64("mappings", released),
	)
	return toServiceTenant(rec), nil
}

func toRecord(t service.Tenant) persistence.TenantRecord {
	return persistence.TenantRecord{
		ID:         t.ID,
		Name:       t.Name,
		Slug:       t.Slug,
		SchemaName: t.SchemaName,
		IsActive:   t.IsActive,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func toServiceTenant(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:         rec.ID,
		Name:       rec.Name,
		Slug:       rec.Slug,
		SchemaName: rec.SchemaName,
		IsActive:   rec.IsActive,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return service.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	if errors.Is(err, persistence.ErrTenantConflict) {
		return service.ErrConflict
	}
	return err
}

// Ensure interface compliance.
var _ service.Repository = (*PostgresRepository)(nil)
