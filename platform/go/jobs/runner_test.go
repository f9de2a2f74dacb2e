package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/platform/go/faults"
	"github.com/traidnet/wificore/platform/go/metrics"
	"github.com/traidnet/wificore/platform/go/tenant"
)

type stubTenants struct {
	inactive map[uuid.UUID]bool
}

func (s stubTenants) ActiveTenant(_ context.Context, id uuid.UUID) error {
	if s.inactive[id] {
		return faults.ErrInactiveTenant
	}
	return nil
}

func TestRunnerSetsAndClearsTenantContext(t *testing.T) {
	runner := NewRunner(stubTenants{}, zap.NewNop(), nil)
	tid := uuid.New()

	var holder *tenant.Context
	err := runner.Run(context.Background(), Payload{Kind: "login_stats", TenantID: tid}, func(ctx context.Context, p Payload) error {
		got, ok := tenant.CurrentID(ctx)
		require.True(t, ok)
		require.Equal(t, tid, got)
		holder, _ = tenant.FromContext(ctx)
		return nil
	})
	require.NoError(t, err)

	_, ok := holder.Current()
	require.False(t, ok)
}

func TestRunnerClearsTenantContextOnFailureAndPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	runner := NewRunner(stubTenants{}, zap.NewNop(), m)
	tid := uuid.New()

	var holders []*tenant.Context
	capture := func(ctx context.Context) {
		h, _ := tenant.FromContext(ctx)
		holders = append(holders, h)
	}

	boom := errors.New("boom")
	err := runner.Run(context.Background(), Payload{Kind: "k", TenantID: tid}, func(ctx context.Context, p Payload) error {
		capture(ctx)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = runner.Run(context.Background(), Payload{Kind: "k", TenantID: tid}, func(ctx context.Context, p Payload) error {
		capture(ctx)
		panic("kaboom")
	})
	require.ErrorContains(t, err, "kaboom")

	for _, h := range holders {
		_, ok := h.Current()
		require.False(t, ok)
	}
	require.Equal(t, 2.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("k", "error")))
}

func TestRunnerRejectsMissingOrInactiveTenant(t *testing.T) {
	inactive := uuid.New()
	runner := NewRunner(stubTenants{inactive: map[uuid.UUID]bool{inactive: true}}, zap.NewNop(), nil)

	called := false
	h := func(ctx context.Context, p Payload) error { called = true; return nil }

	require.ErrorIs(t, runner.Run(context.Background(), Payload{Kind: "k"}, h), ErrMissingTenant)
	require.ErrorIs(t, runner.Run(context.Background(), Payload{Kind: "k", TenantID: inactive}, h), faults.ErrInactiveTenant)
	require.False(t, called)
}

func TestRunnerDoesNotInheritCallerTenant(t *testing.T) {
	runner := NewRunner(stubTenants{}, zap.NewNop(), nil)
	queuedFor, other := uuid.New(), uuid.New()

	// The enqueuing request runs for another tenant; the job must see only its own.
	err := tenant.Run(context.Background(), other, func(ctx context.Context) error {
		return runner.Run(ctx, Payload{Kind: "k", TenantID: queuedFor}, func(ctx context.Context, p Payload) error {
			got, _ := tenant.CurrentID(ctx)
			require.Equal(t, queuedFor, got)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestDispatcherRunsAndDrains(t *testing.T) {
	runner := NewRunner(stubTenants{}, zap.NewNop(), nil)
	d := NewDispatcher(runner, DispatcherConfig{Workers: 3, QueueSize: 16}, zap.NewNop())

	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
	)
	d.Register("count", func(ctx context.Context, p Payload) error {
		tid, ok := tenant.CurrentID(ctx)
		require.True(t, ok)
		require.Equal(t, p.TenantID, tid)
		mu.Lock()
		seen[tid]++
		mu.Unlock()
		return nil
	})
	d.Start(context.Background())

	a, b := uuid.New(), uuid.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Dispatch(Payload{Kind: "count", TenantID: a}))
		require.NoError(t, d.Dispatch(Payload{Kind: "count", TenantID: b}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	require.Equal(t, 5, seen[a])
	require.Equal(t, 5, seen[b])
	require.ErrorIs(t, d.Dispatch(Payload{Kind: "count", TenantID: a}), ErrClosed)
}

func TestDispatcherRejectsUnknownKindAndFullQueue(t *testing.T) {
	runner := NewRunner(stubTenants{}, zap.NewNop(), nil)
	d := NewDispatcher(runner, DispatcherConfig{Workers: 1, QueueSize: 1}, zap.NewNop())
	d.Register("noop", func(ctx context.Context, p Payload) error { return nil })

	require.ErrorIs(t, d.Dispatch(Payload{Kind: "mystery", TenantID: uuid.New()}), ErrUnknownJobKind)

	// Not started: the single slot fills and the next dispatch is refused.
	require.NoError(t, d.Dispatch(Payload{Kind: "noop", TenantID: uuid.New()}))
	require.ErrorIs(t, d.Dispatch(Payload{Kind: "noop", TenantID: uuid.New()}), ErrQueueFull)

	d.Start(context.Background())
	require.NoError(t, d.Close(context.Background()))
}
