package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound     = errors.New("tenant not found")
	ErrConflict     = errors.New("tenant slug or schema already exists")
	ErrInvalidInput = errors.New("invalid tenant input")
	ErrProvisioning = errors.New("tenant provisioning failed")
)

// Tenant represents the domain model for a tenant registry entry.
type Tenant struct {
	ID         uuid.UUID
	Name       string
	Slug       string
	SchemaName string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CreateInput represents the request to create a tenant.
type CreateInput struct {
	Name string
	Slug string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page            int
	PageSize        int
	IncludeInactive bool
}

// ListResult wraps paginated tenants.
type ListResult struct {
	Tenants    []Tenant
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts persistence.
type Repository interface {
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Create(ctx context.Context, t Tenant) (Tenant, error)
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
	// SetActive flips the tenant flag. Deactivation also deactivates every
	// schema mapping of the tenant in the same transaction.
	SetActive(ctx context.Context, id uuid.UUID, active bool) (Tenant, error)
}

// DBProvisioner creates and checks the tenant's database namespace.
// Ensure is mutating/idempotent, Check is read-only/health verification.
type DBProvisioner interface {
	Ensure(ctx context.Context, req DBProvisionRequest) (DBProvisionResult, error)
	Check(ctx context.Context, req DBProvisionRequest) (DBProvisionResult, error)
}

type DBProvisionRequest struct {
	TenantID   uuid.UUID
	SchemaName string
}

type DBProvisionResult struct {
	Ready bool
}

// Service provides tenant registry operations.
type Service struct {
	repo   Repository
	db     DBProvisioner
	logger *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, db DBProvisioner, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if db == nil {
		panic("tenants db provisioner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, db: db, logger: logger}
}

// List tenants, active only unless opts.IncludeInactive.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Create registers a tenant and provisions its namespace. The record is
// inserted inactive and only activated once the namespace is ready, so a
// failed provisioning never leaves a usable tenant without tables.
func (s *Service) Create(ctx context.Context, input CreateInput) (Tenant, error) {
	slug, err := persistence.NormalizeSlug(input.Slug)
	if err != nil {
		return Tenant{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = slug
	}

	schemaName := tenant.BuildSchemaName(slug)
	if err := tenant.ValidateSchemaName(schemaName); err != nil {
		return Tenant{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	created, err := s.repo.Create(ctx, Tenant{
		ID:         uuid.New(),
		Name:       name,
		Slug:       slug,
		SchemaName: schemaName,
		IsActive:   false,
	})
	if err != nil {
		return Tenant{}, err
	}

	res, err := s.db.Ensure(ctx, DBProvisionRequest{TenantID: created.ID, SchemaName: created.SchemaName})
	if err == nil && !res.Ready {
		err = fmt.Errorf("namespace %s not ready", created.SchemaName)
	}
	if err != nil {
		s.logger.Error("tenant provisioning failed",
			zap.String("tenant_id", created.ID.String()),
			zap.String("schema", created.SchemaName),
			zap.Error(err),
		)
		return created, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	activated, err := s.repo.SetActive(ctx, created.ID, true)
	if err != nil {
		return created, err
	}

	s.logger.Info("tenant created",
		zap.String("tenant_id", activated.ID.String()),
		zap.String("slug", activated.Slug),
		zap.String("schema", activated.SchemaName),
	)
	return activated, nil
}

// Reprovision re-runs the idempotent namespace setup for an existing tenant
// and activates it. It recovers tenants left inactive by a failed Create.
func (s *Service) Reprovision(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	if _, err := s.db.Ensure(ctx, DBProvisionRequest{TenantID: t.ID, SchemaName: t.SchemaName}); err != nil {
		return Tenant{}, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	return s.repo.SetActive(ctx, id, true)
}

// Get returns a tenant by id regardless of its active flag.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return s.repo.Get(ctx, id)
}

// Deactivate disables the tenant and its schema mappings. Logins for its users
// fail from then on.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.SetActive(ctx, id, false)
	if err != nil {
		return Tenant{}, err
	}
	s.logger.Info("tenant deactivated", zap.String("tenant_id", id.String()))
	return t, nil
}

// Activate re-enables the tenant. Schema mappings stay inactive until their
// users are re-created.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.SetActive(ctx, id, true)
	if err != nil {
		return Tenant{}, err
	}
	s.logger.Info("tenant activated", zap.String("tenant_id", id.String()))
	return t, nil
}

// ActiveTenant returns nil when the tenant exists and is active. Unknown and
// inactive tenants both match faults.ErrInactiveTenant.
func (s *Service) ActiveTenant(ctx context.Context, id uuid.UUID) error {
	_, err := s.GetActive(ctx, id)
	return err
}

// ActiveTenantSlug is ActiveTenant returning the slug that names the tenant host.
func (s *Service) ActiveTenantSlug(ctx context.Context, id uuid.UUID) (string, error) {
	t, err := s.GetActive(ctx, id)
	if err != nil {
		return "", err
	}
	return t.Slug, nil
}

// GetActive returns the tenant only while it is active.
func (s *Service) GetActive(ctx context.Context, id uuid.UUID) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tenant{}, fmt.Errorf("%w: %w", ErrNotFound, faults.ErrInactiveTenant)
		}
		return Tenant{}, err
	}
	if !t.IsActive {
		return Tenant{}, faults.ErrInactiveTenant
	}
	return t, nil
}

// ProvisionStatus performs a live check of the tenant namespace.
func (s *Service) ProvisionStatus(ctx context.Context, id uuid.UUID) (DBProvisionResult, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return DBProvisionResult{}, err
	}
	return s.db.Check(ctx, DBProvisionRequest{TenantID: t.ID, SchemaName: t.SchemaName})
}
