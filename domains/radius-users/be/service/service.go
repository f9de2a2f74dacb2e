// Package service manages the RADIUS credentials of tenant users: the
// platform-wide schema mapping plus the radcheck/radreply rows in the
// tenant namespace, written in one transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/persistence"
)

var (
	ErrInvalidInput  = errors.New("invalid radius user input")
	ErrUsernameTaken = errors.New("username already mapped to a tenant")
	ErrNotFound      = errors.New("radius user not found")
)

const serviceTypeAdministrative = "Administrative-User"

// TenantLookup returns active tenants only. Implemented by persistence.TenantStore.
type TenantLookup interface {
	GetActive(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error)
}

// NamespaceRunner is implemented by persistence.TenantDB.
type NamespaceRunner interface {
	WithTenant(ctx context.Context, schema string, fn func(ctx context.Context, tx pgx.Tx) error) error
}

type CreateInput struct {
	TenantID uuid.UUID
	Username string
	Password string
	// Role is admin, user or hotspot_user. Empty means user.
	Role string
}

type Service struct {
	tenants    TenantLookup
	namespaces NamespaceRunner
	mappings   *persistence.SchemaMappingStore
	logger     *zap.Logger
}

func New(tenants TenantLookup, namespaces NamespaceRunner, mappings *persistence.SchemaMappingStore, logger *zap.Logger) *Service {
	if tenants == nil || namespaces == nil || mappings == nil {
		panic("radius users service requires tenants, namespaces and mappings")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tenants: tenants, namespaces: namespaces, mappings: mappings, logger: logger}
}

// Create maps username to the tenant and stores its cleartext credential for
// FreeRADIUS. Admins also get Service-Type := Administrative-User.
func (s *Service) Create(ctx context.Context, in CreateInput) (persistence.SchemaMapping, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return persistence.SchemaMapping{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	role, err := normalizeRole(in.Role)
	if err != nil {
		return persistence.SchemaMapping{}, err
	}

	rec, err := s.activeTenant(ctx, in.TenantID)
	if err != nil {
		return persistence.SchemaMapping{}, err
	}

	var mapping persistence.SchemaMapping
	err = s.namespaces.WithTenant(ctx, rec.SchemaName, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		mapping, err = s.mappings.With(tx).Create(ctx, persistence.SchemaMapping{
			Username:   username,
			SchemaName: rec.SchemaName,
			TenantID:   rec.ID,
			UserRole:   string(role),
		})
		if err != nil {
			return err
		}

		store := persistence.NewRadiusStore(tx)
		if err := store.SetPassword(ctx, username, in.Password); err != nil {
			return err
		}
		if role == platformauth.RoleAdmin {
			return store.AddReply(ctx, username, persistence.RadiusAttribute{
				Attribute: persistence.AttrServiceType,
				Value:     serviceTypeAdministrative,
			})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrMappingConflict) {
			return persistence.SchemaMapping{}, ErrUsernameTaken
		}
		return persistence.SchemaMapping{}, err
	}

	s.logger.Info("radius user created",
		zap.String("tenant_id", rec.ID.String()),
		zap.String("username", username),
		zap.String("role", string(role)),
	)
	return mapping, nil
}

// Delete deactivates the mapping and removes the user's FreeRADIUS rows.
func (s *Service) Delete(ctx context.Context, tenantID uuid.UUID, username string) error {
	username = strings.TrimSpace(username)
	rec, err := s.activeTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	err = s.namespaces.WithTenant(ctx, rec.SchemaName, func(ctx context.Context, tx pgx.Tx) error {
		mappings := s.mappings.With(tx)
		if err := ownedMapping(ctx, mappings, rec.ID, username); err != nil {
			return err
		}
		if _, err := mappings.Deactivate(ctx, username); err != nil {
			return err
		}
		return persistence.NewRadiusStore(tx).DeleteUser(ctx, username)
	})
	if err != nil {
		return err
	}

	s.logger.Info("radius user deleted", zap.String("tenant_id", rec.ID.String()), zap.String("username", username))
	return nil
}

// UpdatePassword replaces the stored credential.
func (s *Service) UpdatePassword(ctx context.Context, tenantID uuid.UUID, username, password string) error {
	username = strings.TrimSpace(username)
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	rec, err := s.activeTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	return s.namespaces.WithTenant(ctx, rec.SchemaName, func(ctx context.Context, tx pgx.Tx) error {
		if err := ownedMapping(ctx, s.mappings.With(tx), rec.ID, username); err != nil {
			return err
		}
		store := persistence.NewRadiusStore(tx)
		ok, err := store.HasUser(ctx, username)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return store.SetPassword(ctx, username, password)
	})
}

func (s *Service) activeTenant(ctx context.Context, id uuid.UUID) (persistence.TenantRecord, error) {
	rec, err := s.tenants.GetActive(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return persistence.TenantRecord{}, faults.ErrInactiveTenant
		}
		return persistence.TenantRecord{}, err
	}
	return rec, nil
}

// ownedMapping reports ErrNotFound unless username's active mapping belongs
// to tenantID. Other tenants' users are indistinguishable from missing ones.
func ownedMapping(ctx context.Context, mappings *persistence.SchemaMappingStore, tenantID uuid.UUID, username string) error {
	m, err := mappings.Resolve(ctx, username)
	if err != nil {
		if errors.Is(err, faults.ErrUnknownUser) || errors.Is(err, faults.ErrInactiveMapping) {
			return ErrNotFound
		}
		return err
	}
	if m.TenantID != tenantID {
		return ErrNotFound
	}
	return nil
}

func normalizeRole(role string) (platformauth.Role, error) {
	switch r := platformauth.Role(strings.ToLower(strings.TrimSpace(role))); r {
	case "":
		return platformauth.RoleUser, nil
	case platformauth.RoleAdmin, platformauth.RoleUser, platformauth.RoleHotspotUser:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, role)
	}
}
