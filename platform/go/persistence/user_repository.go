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

// UsersTable holds platform identities in the system schema.
const UsersTable = "users"

var userColumns = []string{
	"id", "tenant_id", "username", "email", "password_hash", "role", "is_active",
	"last_login_at", "failed_login_attempts", "created_at", "updated_at",
}

// User represents a row in the users table. TenantID is nil only for system administrators.
type User struct {
	ID                  uuid.UUID  `json:"id"`
	TenantID            *uuid.UUID `json:"tenantId,omitempty"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Role                string     `json:"role"`
	IsActive            bool       `json:"isActive"`
	LastLoginAt         *time.Time `json:"lastLoginAt,omitempty"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// EntityType, EntityID and OwnerTenantID let the tenant guard check users.
func (u User) EntityType() string { return "user" }
func (u User) EntityID() string   { return u.ID.String() }
func (u User) OwnerTenantID() uuid.UUID {
	if u.TenantID == nil {
		return uuid.Nil
	}
	return *u.TenantID
}

var (
	// ErrUserNotFound indicates a missing user record.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserConflict indicates a uniqueness violation (e.g., duplicated username in a tenant).
	ErrUserConflict = errors.New("user conflict")
)

// UserStore exposes persistence helpers for the users table. Reads and updates
// are confined to the caller's tenant by the scope enforcer.
type UserStore struct {
	q     Querier
	scope *tenantscope.Enforcer
}

func NewUserStore(q Querier, scope *tenantscope.Enforcer) (*UserStore, error) {
	if q == nil {
		return nil, errors.New("querier is required")
	}
	if scope == nil {
		return nil, errors.New("scope enforcer is required")
	}
	return &UserStore{q: q, scope: scope}, nil
}

// CreateUserParams captures the fields required to insert a new user record.
type CreateUserParams struct {
	ID           uuid.UUID
	TenantID     *uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Role         string
}

func (p CreateUserParams) normalize() (CreateUserParams, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Username = strings.TrimSpace(p.Username)
	if p.Username == "" {
		return p, errors.New("username is required")
	}
	if p.Role == "" {
		return p, errors.New("role is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		p.Email = p.Username + "@radius.local"
	}
	return p, nil
}

// Create inserts a new user and returns the persisted record.
func (s *UserStore) Create(ctx context.Context, params CreateUserParams) (User, error) {
	params, err := params.normalize()
	if err != nil {
		return User{}, err
	}

	row, err := queryRow(ctx, s.q, psql.Insert(UsersTable).
		Columns("id", "tenant_id", "username", "email", "password_hash", "role").
		Values(params.ID, params.TenantID, params.Username, params.Email, params.PasswordHash, params.Role).
		Suffix("RETURNING "+strings.Join(userColumns, ", ")))
	if err != nil {
		return User{}, err
	}

	user, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrUserConflict
		}
		return User{}, err
	}
	return user, nil
}

// FindOrCreate returns the identity for (tenant, username), inserting it when
// missing. The insert uses ON CONFLICT DO NOTHING so concurrent logins for the
// same username create at most one row; the loser re-reads the winner's row.
// The re-read is not tenant scoped: callers pass the tenant explicitly.
func (s *UserStore) FindOrCreate(ctx context.Context, params CreateUserParams) (User, bool, error) {
	params, err := params.normalize()
	if err != nil {
		return User{}, false, err
	}

	row, err := queryRow(ctx, s.q, psql.Insert(UsersTable).
		Columns("id", "tenant_id", "username", "email", "password_hash", "role").
		Values(params.ID, params.TenantID, params.Username, params.Email, params.PasswordHash, params.Role).
		Suffix("ON CONFLICT DO NOTHING RETURNING "+strings.Join(userColumns, ", ")))
	if err != nil {
		return User{}, false, err
	}

	user, err := scanUser(row)
	switch {
	case err == nil:
		return user, true, nil
	case !errors.Is(err, ErrUserNotFound):
		return User{}, false, fmt.Errorf("insert identity: %w", err)
	}

	existing, err := s.findByUsername(ctx, params.TenantID, params.Username)
	if err != nil {
		return User{}, false, fmt.Errorf("reload identity: %w", err)
	}
	return existing, false, nil
}

// GetByID returns the user when it is visible to the current scope.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	b, err := s.scope.Select(ctx, psql.Select(userColumns...).From(UsersTable).Where(sq.Eq{"id": id}), "tenant_id")
	if err != nil {
		return User{}, err
	}
	row, err := queryRow(ctx, s.q, b)
	if err != nil {
		return User{}, err
	}
	return scanUser(row)
}

// findByUsername looks up a user by username inside tenantID (nil for system
// administrators). It is not tenant scoped.
func (s *UserStore) findByUsername(ctx context.Context, tenantID *uuid.UUID, username string) (User, error) {
	row, err := queryRow(ctx, s.q, usernameQuery(tenantID, username))
	if err != nil {
		return User{}, err
	}
	return scanUser(row)
}

func usernameQuery(tenantID *uuid.UUID, username string) sq.SelectBuilder {
	b := psql.Select(userColumns...).From(UsersTable).Where(sq.Eq{"username": strings.TrimSpace(username)})
	if tenantID == nil {
		return b.Where(sq.Eq{"tenant_id": nil})
	}
	return b.Where(sq.Eq{"tenant_id": *tenantID})
}

// RecordLogin stamps a successful login and resets the failure counter.
func (s *UserStore) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	b, err := s.scope.Update(ctx, psql.Update(UsersTable).
		Set("last_login_at", at).
		Set("failed_login_attempts", 0).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}), "tenant_id")
	if err != nil {
		return err
	}
	tag, err := exec(ctx, s.q, b)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordFailedLogin increments the failure counter of an existing identity.
// A username with no identity yet is not an error.
func (s *UserStore) RecordFailedLogin(ctx context.Context, tenantID uuid.UUID, username string) (bool, error) {
	b, err := s.scope.Update(ctx, psql.Update(UsersTable).
		Set("failed_login_attempts", sq.Expr("failed_login_attempts + 1")).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"tenant_id": tenantID, "username": username}), "tenant_id")
	if err != nil {
		return false, err
	}
	tag, err := exec(ctx, s.q, b)
	if err != nil {
		return false, fmt.Errorf("record failed login: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetActive toggles the identity's active flag within the current scope.
func (s *UserStore) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	b, err := s.scope.Update(ctx, psql.Update(UsersTable).
		Set("is_active", active).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}), "tenant_id")
	if err != nil {
		return err
	}
	tag, err := exec(ctx, s.q, b)
	if err != nil {
		return fmt.Errorf("set user active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	if err := row.Scan(
		&u.ID, &u.TenantID, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive,
		&u.LastLoginAt, &u.FailedLoginAttempts, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}
