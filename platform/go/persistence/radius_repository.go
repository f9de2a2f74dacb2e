package persistence

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// FreeRADIUS tables created inside every tenant namespace. Statements use
// unqualified names and rely on the search_path set by TenantDB.WithTenant.
const (
	RadcheckTable     = "radcheck"
	RadreplyTable     = "radreply"
	RadusergroupTable = "radusergroup"
	RadpostauthTable  = "radpostauth"
	RadacctTable      = "radacct"
	NASTable          = "nas"
)

// Common radcheck/radreply attribute names.
const (
	AttrCleartextPassword = "Cleartext-Password"
	AttrServiceType       = "Service-Type"
)

// RadiusAttribute is one radcheck or radreply row.
type RadiusAttribute struct {
	Attribute string
	Op        string
	Value     string
}

// RadiusStore manages the per-tenant FreeRADIUS tables. It must be bound to
// a transaction opened by TenantDB.WithTenant.
type RadiusStore struct {
	q Querier
}

func NewRadiusStore(tx pgx.Tx) *RadiusStore {
	return &RadiusStore{q: tx}
}

// NASIdentifier returns the short name of the tenant's first registered NAS,
// or an empty string when none is registered.
func (s *RadiusStore) NASIdentifier(ctx context.Context) (string, error) {
	row, err := queryRow(ctx, s.q, psql.Select("shortname").From(NASTable).OrderBy("id").Limit(1))
	if err != nil {
		return "", err
	}
	var name string
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load nas: %w", err)
	}
	return name, nil
}

// ReplyAttributes returns the radreply rows configured for username.
func (s *RadiusStore) ReplyAttributes(ctx context.Context, username string) ([]RadiusAttribute, error) {
	rows, err := query(ctx, s.q, psql.Select("attribute", "op", "value").
		From(RadreplyTable).
		Where(sq.Eq{"username": username}).
		OrderBy("id"))
	if err != nil {
		return nil, fmt.Errorf("load radreply: %w", err)
	}
	defer rows.Close()

	var attrs []RadiusAttribute
	for rows.Next() {
		var a RadiusAttribute
		if err := rows.Scan(&a.Attribute, &a.Op, &a.Value); err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}

// SetPassword replaces the Cleartext-Password check item for username.
func (s *RadiusStore) SetPassword(ctx context.Context, username, password string) error {
	if _, err := exec(ctx, s.q, psql.Delete(RadcheckTable).
		Where(sq.Eq{"username": username, "attribute": AttrCleartextPassword})); err != nil {
		return fmt.Errorf("clear radcheck password: %w", err)
	}
	if _, err := exec(ctx, s.q, psql.Insert(RadcheckTable).
		Columns("username", "attribute", "op", "value").
		Values(username, AttrCleartextPassword, ":=", password)); err != nil {
		return fmt.Errorf("insert radcheck password: %w", err)
	}
	return nil
}

// HasUser reports whether username has any check items in this namespace.
func (s *RadiusStore) HasUser(ctx context.Context, username string) (bool, error) {
	row, err := queryRow(ctx, s.q, psql.Select("COUNT(*)").From(RadcheckTable).Where(sq.Eq{"username": username}))
	if err != nil {
		return false, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddReply appends a reply item for username.
func (s *RadiusStore) AddReply(ctx context.Context, username string, attr RadiusAttribute) error {
	if attr.Op == "" {
		attr.Op = ":="
	}
	if _, err := exec(ctx, s.q, psql.Insert(RadreplyTable).
		Columns("username", "attribute", "op", "value").
		Values(username, attr.Attribute, attr.Op, attr.Value)); err != nil {
		return fmt.Errorf("insert radreply: %w", err)
	}
	return nil
}

// DeleteUser removes every check, reply and group row for username.
func (s *RadiusStore) DeleteUser(ctx context.Context, username string) error {
	for _, table := range []string{RadcheckTable, RadreplyTable, RadusergroupTable} {
		if _, err := exec(ctx, s.q, psql.Delete(table).Where(sq.Eq{"username": username})); err != nil {
			return fmt.Errorf("delete %s rows: %w", table, err)
		}
	}
	return nil
}

// RecordPostAuth writes an accepted authentication to radpostauth.
func (s *RadiusStore) RecordPostAuth(ctx context.Context, username, reply string) error {
	if _, err := exec(ctx, s.q, psql.Insert(RadpostauthTable).
		Columns("username", "reply").
		Values(username, reply)); err != nil {
		return fmt.Errorf("insert radpostauth: %w", err)
	}
	return nil
}
