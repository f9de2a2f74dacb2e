package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/domains/tenants/be/service"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/tenant"
)

// radiusTables must exist in every tenant namespace.
var radiusTables = []string{
	persistence.NASTable,
	persistence.RadcheckTable,
	persistence.RadreplyTable,
	persistence.RadusergroupTable,
	persistence.RadacctTable,
	persistence.RadpostauthTable,
}

// DBProvisioner creates the tenant namespace and its FreeRADIUS tables.
type DBProvisioner struct {
	pool     *pgxpool.Pool
	tenantDB *persistence.TenantDB
	logger   *zap.Logger
}

func NewDBProvisioner(pool *pgxpool.Pool, tenantDB *persistence.TenantDB, logger *zap.Logger) *DBProvisioner {
	if pool == nil {
		panic("db provisioner requires pool")
	}
	if tenantDB == nil {
		panic("db provisioner requires tenant db")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBProvisioner{pool: pool, tenantDB: tenantDB, logger: logger}
}

func (p *DBProvisioner) Ensure(ctx context.Context, req service.DBProvisionRequest) (service.DBProvisionResult, error) {
	if err := tenant.ValidateSchemaName(req.SchemaName); err != nil {
		return service.DBProvisionResult{}, err
	}

	if err := persistence.CreateNamespace(ctx, p.pool, req.SchemaName); err != nil {
		return service.DBProvisionResult{}, err
	}

	err := p.tenantDB.WithTenant(ctx, req.SchemaName, func(ctx context.Context, tx pgx.Tx) error {
		return persistence.ApplyTenantSpaceDDL(ctx, tx)
	})
	if err != nil {
		return service.DBProvisionResult{}, err
	}

	p.logger.Info("tenant namespace provisioned",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("schema", req.SchemaName),
	)
	return p.Check(ctx, req)
}

// Check is read-only. A missing schema or table reports Ready=false without error.
func (p *DBProvisioner) Check(ctx context.Context, req service.DBProvisionRequest) (service.DBProvisionResult, error) {
	if err := tenant.ValidateSchemaName(req.SchemaName); err != nil {
		return service.DBProvisionResult{}, err
	}

	var dummy int
	if err := p.pool.QueryRow(ctx, "SELECT 1 FROM information_schema.schemata WHERE schema_name = $1", req.SchemaName).Scan(&dummy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return service.DBProvisionResult{Ready: false}, nil
		}
		return service.DBProvisionResult{}, fmt.Errorf("check schema: %w", err)
	}

	ready := true
	err := p.tenantDB.WithTenant(ctx, req.SchemaName, func(ctx context.Context, tx pgx.Tx) error {
		for _, table := range radiusTables {
			var exists bool
			if err := tx.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1
					FROM pg_class c
					JOIN pg_namespace n ON n.oid = c.relnamespace
					WHERE n.nspname = $1 AND c.relname = $2
				)`, req.SchemaName, table).Scan(&exists); err != nil {
				return fmt.Errorf("check %s regclass: %w", table, err)
			}
			if !exists {
				ready = false
				return nil
			}
		}
		// Unqualified read probe through the namespace search_path.
		if err := tx.QueryRow(ctx, "SELECT 1 FROM "+persistence.RadcheckTable+" LIMIT 1").Scan(&dummy); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read radcheck: %w", err)
		}
		return nil
	})
	if err != nil {
		return service.DBProvisionResult{}, err
	}

	return service.DBProvisionResult{Ready: ready}, nil
}

var _ service.DBProvisioner = (*DBProvisioner)(nil)
