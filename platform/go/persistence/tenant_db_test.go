package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/traidnet/wificore/platform/go/tenant"
)

// fakeTx satisfies pgx.Tx and records the statements and lifecycle calls it sees.
type fakeTx struct {
	stmts       []string
	args        [][]any
	execErr     error
	commits     int
	rollbacks   int
	rollbackCtx error
	closed      bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) Commit(ctx context.Context) error {
	f.commits++
	f.closed = true
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	if f.closed {
		return pgx.ErrTxClosed
	}
	f.rollbacks++
	f.rollbackCtx = ctx.Err()
	f.closed = true
	return nil
}
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, f.execErr
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool returns a preconstructed transaction.
type fakePool struct{ tx *fakeTx }

func (p *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return p.tx, nil
}

func newFakeTenantDB() (*TenantDB, *fakeTx) {
	ftx := &fakeTx{}
	return newTenantDB(&fakePool{tx: ftx}, "public", nil), ftx
}

func TestTenantDBWithTenantSetsAndRestoresSearchPath(t *testing.T) {
	db, ftx := newFakeTenantDB()

	err := db.WithTenant(context.Background(), "tenant_acme", func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "SELECT 1 FROM radcheck")
		return err
	})
	require.NoError(t, err)

	require.Len(t, ftx.stmts, 3)
	require.Equal(t, setSearchPathSQL, ftx.stmts[0])
	require.Equal(t, []any{`"tenant_acme", "public"`}, ftx.args[0])
	require.Equal(t, "SELECT 1 FROM radcheck", ftx.stmts[1])
	require.Equal(t, setSearchPathSQL, ftx.stmts[2])
	require.Equal(t, []any{`"public"`}, ftx.args[2])
	require.Equal(t, 1, ftx.commits)
	require.Equal(t, 0, ftx.rollbacks)
}

func TestTenantDBWithTenantRollsBackOnError(t *testing.T) {
	db, ftx := newFakeTenantDB()

	boom := errors.New("access reject")
	err := db.WithTenant(context.Background(), "tenant_acme", func(ctx context.Context, tx pgx.Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, ftx.commits)
	require.Equal(t, 1, ftx.rollbacks)
}

func TestTenantDBWithTenantRollsBackOnPanic(t *testing.T) {
	db, ftx := newFakeTenantDB()

	require.Panics(t, func() {
		_ = db.WithTenant(context.Background(), "tenant_acme", func(ctx context.Context, tx pgx.Tx) error {
			panic("boom")
		})
	})
	require.Equal(t, 1, ftx.rollbacks)
}

func TestTenantDBWithTenantTearsDownAfterCancellation(t *testing.T) {
	db, ftx := newFakeTenantDB()

	ctx, cancel := context.WithCancel(context.Background())
	err := db.WithTenant(ctx, "tenant_acme", func(ctx context.Context, tx pgx.Tx) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, ftx.rollbacks)
	require.NoError(t, ftx.rollbackCtx, "rollback must run on a live context")
}

func TestTenantDBWithTenantSearchPathFailure(t *testing.T) {
	db, ftx := newFakeTenantDB()
	ftx.execErr = errors.New("connection reset")

	called := false
	err := db.WithTenant(context.Background(), "tenant_acme", func(ctx context.Context, tx pgx.Tx) error {
		called = true
		return nil
	})
	require.ErrorContains(t, err, "set search_path")
	require.False(t, called)
	require.Equal(t, 1, ftx.rollbacks)
}

func TestTenantDBRejectsInvalidSchema(t *testing.T) {
	db, ftx := newFakeTenantDB()

	err := db.WithTenant(context.Background(), `tenant_a"; DROP SCHEMA public; --`, func(ctx context.Context, tx pgx.Tx) error {
		return nil
	})
	require.ErrorContains(t, err, "invalid schema name")
	require.Empty(t, ftx.stmts)
}

func TestTenantDBRestoresSearchPathOnSharedConnection(t *testing.T) {
	t.Parallel()

	// A single connection makes any leaked search_path visible to the next query.
	pool := mustTestPool(t, 1)
	ctx := context.Background()

	db := NewTenantDB(TenantDBConfig{Pool: pool, SystemSchema: testSystemSchema})
	schema := tenant.BuildSchemaName("acme-isp")
	require.NoError(t, CreateNamespace(ctx, pool, schema))

	require.NoError(t, db.WithTenant(ctx, schema, func(ctx context.Context, tx pgx.Tx) error {
		if err := ApplyTenantSpaceDDL(ctx, tx); err != nil {
			return err
		}
		radius := NewRadiusStore(tx)
		if err := radius.SetPassword(ctx, "alice", "s3cret"); err != nil {
			return err
		}
		return radius.AddReply(ctx, "alice", RadiusAttribute{Attribute: "Session-Timeout", Value: "3600"})
	}))

	assertDefaultSearchPath := func() {
		var current string
		require.NoError(t, pool.QueryRow(ctx, `SELECT current_schema()`).Scan(&current))
		require.Equal(t, testSystemSchema, current)
	}
	assertDefaultSearchPath()

	boom := errors.New("boom")
	err := db.WithTenant(ctx, schema, func(ctx context.Context, tx pgx.Tx) error {
		var current string
		if err := tx.QueryRow(ctx, `SELECT current_schema()`).Scan(&current); err != nil {
			return err
		}
		require.Equal(t, schema, current)

		attrs, err := NewRadiusStore(tx).ReplyAttributes(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, []RadiusAttribute{{Attribute: "Session-Timeout", Op: ":=", Value: "3600"}}, attrs)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assertDefaultSearchPath()

	cancelled, cancel := context.WithCancel(ctx)
	err = db.WithTenant(cancelled, schema, func(ctx context.Context, tx pgx.Tx) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assertDefaultSearchPath()

	// radcheck is not visible outside the namespace.
	_, err = pool.Exec(ctx, `SELECT 1 FROM radcheck`)
	require.Error(t, err)
}
