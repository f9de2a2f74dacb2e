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

	"github.com/traidnet/wificore/platform/go/tenantscope"
)

const (
	PackagesTable       = "packages"
	RoutersTable        = "routers"
	PackageRoutersTable = "package_routers"
)

var (
	ErrPackageNotFound = errors.New("package not found")
	ErrRouterNotFound  = errors.New("router not found")
)

var packageColumns = []string{"id", "tenant_id", "name", "price", "speed", "validity_hours", "is_active", "created_at", "updated_at"}

// Package is a sellable internet access plan owned by one tenant.
type Package struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenantId"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Speed         string    `json:"speed"`
	ValidityHours int       `json:"validityHours"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p Package) EntityType() string       { return "package" }
func (p Package) EntityID() string         { return p.ID.String() }
func (p Package) OwnerTenantID() uuid.UUID { return p.TenantID }

// Router is a tenant's NAS device.
type Router struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	Name      string    `json:"name"`
	IPAddress string    `json:"ipAddress"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r Router) EntityType() string       { return "router" }
func (r Router) EntityID() string         { return r.ID.String() }
func (r Router) OwnerTenantID() uuid.UUID { return r.TenantID }

// CatalogStore reads and writes packages and routers under the tenant scope.
type CatalogStore struct {
	q     Querier
	scope *tenantscope.Enforcer
}

func NewCatalogStore(q Querier, scope *tenantscope.Enforcer) (*CatalogStore, error) {
	if q == nil {
		return nil, errors.New("querier is required")
	}
	if scope == nil {
		return nil, errors.New("scope enforcer is required")
	}
	return &CatalogStore{q: q, scope: scope}, nil
}

// ListPackages returns the packages visible to the current scope.
func (s *CatalogStore) ListPackages(ctx context.Context, onlyActive bool) ([]Package, error) {
	b := psql.Select(packageColumns...).From(PackagesTable).OrderBy("created_at DESC")
	if onlyActive {
		b = b.Where(sq.Eq{"is_active": true})
	}
	b, err := s.scope.Select(ctx, b, "tenant_id")
	if err != nil {
		return nil, err
	}

	rows, err := query(ctx, s.q, b)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	out := make([]Package, 0)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPackage returns the package when the current scope can see it.
func (s *CatalogStore) GetPackage(ctx context.Context, id uuid.UUID) (Package, error) {
	b, err := s.scope.Select(ctx, psql.Select(packageColumns...).From(PackagesTable).Where(sq.Eq{"id": id}), "tenant_id")
	if err != nil {
		return Package{}, err
	}
	row, err := queryRow(ctx, s.q, b)
	if err != nil {
		return Package{}, err
	}
	return scanPackage(row)
}

// CreatePackage inserts a package owned by the tenant in scope.
func (s *CatalogStore) CreatePackage(ctx context.Context, p Package) (Package, error) {
	tenantID, err := s.scope.TenantForWrite(ctx)
	if err != nil {
		return Package{}, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if strings.TrimSpace(p.Name) == "" {
		return Package{}, errors.New("package name is required")
	}
	if p.ValidityHours <= 0 {
		p.ValidityHours = 24
	}

	row, err := queryRow(ctx, s.q, psql.Insert(PackagesTable).
		Columns("id", "tenant_id", "name", "price", "speed", "validity_hours", "is_active").
		Values(p.ID, tenantID, strings.TrimSpace(p.Name), p.Price, p.Speed, p.ValidityHours, true).
		Suffix("RETURNING "+strings.Join(packageColumns, ", ")))
	if err != nil {
		return Package{}, err
	}
	return scanPackage(row)
}

var routerColumns = []string{"id", "tenant_id", "name", "ip_address", "created_at", "updated_at"}

// GetRouter returns the router when the current scope can see it.
func (s *CatalogStore) GetRouter(ctx context.Context, id uuid.UUID) (Router, error) {
	b, err := s.scope.Select(ctx, psql.Select(routerColumns...).From(RoutersTable).Where(sq.Eq{"id": id}), "tenant_id")
	if err != nil {
		return Router{}, err
	}
	row, err := queryRow(ctx, s.q, b)
	if err != nil {
		return Router{}, err
	}
	var r Router
	if err := row.Scan(&r.ID, &r.TenantID, &r.Name, &r.IPAddress, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Router{}, ErrRouterNotFound
		}
		return Router{}, err
	}
	return r, nil
}

// CreateRouter inserts a router owned by the tenant in scope.
func (s *CatalogStore) CreateRouter(ctx context.Context, r Router) (Router, error) {
	tenantID, err := s.scope.TenantForWrite(ctx)
	if err != nil {
		return Router{}, err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	row, err := queryRow(ctx, s.q, psql.Insert(RoutersTable).
		Columns("id", "tenant_id", "name", "ip_address").
		Values(r.ID, tenantID, r.Name, r.IPAddress).
		Suffix("RETURNING "+strings.Join(routerColumns, ", ")))
	if err != nil {
		return Router{}, err
	}
	var out Router
	if err := row.Scan(&out.ID, &out.TenantID, &out.Name, &out.IPAddress, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Router{}, err
	}
	return out, nil
}

// AssignRouter links a package to a router. Both must already have been checked
// to belong to tenantID.
func (s *CatalogStore) AssignRouter(ctx context.Context, tenantID, packageID, routerID uuid.UUID) error {
	if _, err := exec(ctx, s.q, psql.Insert(PackageRoutersTable).
		Columns("package_id", "router_id", "tenant_id").
		Values(packageID, routerID, tenantID).
		Suffix("ON CONFLICT (package_id, router_id) DO NOTHING")); err != nil {
		return fmt.Errorf("assign router: %w", err)
	}
	return nil
}

func scanPackage(row pgx.Row) (Package, error) {
	var p Package
	if err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Price, &p.Speed, &p.ValidityHours, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Package{}, ErrPackageNotFound
		}
		return Package{}, err
	}
	return p, nil
}
