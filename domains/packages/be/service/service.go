package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/platform/go/guard"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/tenantscope"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrRouterNotFound  = errors.New("router not found")
)

// Repository is implemented by persistence.CatalogStore. Reads are tenant scoped by ctx.
type Repository interface {
	ListPackages(ctx context.Context, onlyActive bool) ([]persistence.Package, error)
	GetPackage(ctx context.Context, id uuid.UUID) (persistence.Package, error)
	GetRouter(ctx context.Context, id uuid.UUID) (persistence.Router, error)
	AssignRouter(ctx context.Context, tenantID, packageID, routerID uuid.UUID) error
}

type Service struct {
	repo   Repository
	guard  *guard.Guard
	logger *zap.Logger
}

func New(repo Repository, g *guard.Guard, logger *zap.Logger) *Service {
	if repo == nil {
		panic("packages repo is required")
	}
	if g == nil {
		panic("packages guard is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, guard: g, logger: logger}
}

// List returns the packages of the tenant the caller acts for.
func (s *Service) List(ctx context.Context, onlyActive bool) ([]persistence.Package, error) {
	return s.repo.ListPackages(ctx, onlyActive)
}

// ListForTenant lets a system administrator read one tenant's packages.
// Other callers get faults.ErrScopeBypassUnauthorized.
func (s *Service) ListForTenant(ctx context.Context, tenantID uuid.UUID, onlyActive bool) ([]persistence.Package, error) {
	return s.repo.ListPackages(tenantscope.WithTenant(ctx, tenantID), onlyActive)
}

// AssignRouter makes a package available on a router. Both must belong to the
// tenant of the current unit of work.
func (s *Service) AssignRouter(ctx context.Context, packageID, routerID uuid.UUID) error {
	lookup := tenantscope.WithoutTenant(ctx, "router assignment ownership check")

	pkg, err := s.repo.GetPackage(lookup, packageID)
	if err != nil {
		if errors.Is(err, persistence.ErrPackageNotFound) {
			return ErrPackageNotFound
		}
		return fmt.Errorf("load package: %w", err)
	}
	router, err := s.repo.GetRouter(lookup, routerID)
	if err != nil {
		if errors.Is(err, persistence.ErrRouterNotFound) {
			return ErrRouterNotFound
		}
		return fmt.Errorf("load router: %w", err)
	}

	if err := s.guard.AssertAllSameTenant(ctx, pkg, router); err != nil {
		return err
	}

	if err := s.repo.AssignRouter(ctx, pkg.TenantID, pkg.ID, router.ID); err != nil {
		return err
	}
	s.logger.Info("router assigned to package",
		zap.String("tenant_id", pkg.TenantID.String()),
		zap.String("package_id", pkg.ID.String()),
		zap.String("router_id", router.ID.String()),
	)
	return nil
}
