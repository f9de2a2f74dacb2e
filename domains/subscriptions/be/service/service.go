package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/guard"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/tenantscope"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrPackageNotFound    = errors.New("package not found")
	ErrPackageInactive    = errors.New("package is not active")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrNotSelf is returned when a non-admin caller subscribes someone else.
	ErrNotSelf = errors.New("users may only subscribe themselves")
)

// PackageReader is implemented by persistence.CatalogStore.
type PackageReader interface {
	GetPackage(ctx context.Context, id uuid.UUID) (persistence.Package, error)
}

// SubscriberReader is implemented by persistence.UserStore.
type SubscriberReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (persistence.User, error)
}

// Repository is implemented by persistence.BillingStore.
type Repository interface {
	CreateSubscription(ctx context.Context, sub persistence.Subscription) (persistence.Subscription, error)
}

const StatusPending = "pending"

type CreateInput struct {
	// UserID defaults to the caller.
	UserID    uuid.UUID
	PackageID uuid.UUID
}

type Service struct {
	packages PackageReader
	users    SubscriberReader
	repo     Repository
	guard    *guard.Guard
	logger   *zap.Logger
	now      func() time.Time
}

func New(packages PackageReader, users SubscriberReader, repo Repository, g *guard.Guard, logger *zap.Logger) *Service {
	if packages == nil || users == nil || repo == nil {
		panic("subscriptions dependencies are required")
	}
	if g == nil {
		panic("subscriptions guard is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{packages: packages, users: users, repo: repo, guard: g, logger: logger.Named("subscriptions"), now: time.Now}
}

// Create subscribes a user to a package. The package and the subscriber must
// both belong to the tenant of the current unit of work; otherwise nothing is written.
func (s *Service) Create(ctx context.Context, in CreateInput) (persistence.Subscription, error) {
	caller, _ := platformauth.CallerFromContext(ctx)
	if in.UserID == uuid.Nil {
		in.UserID = caller.UserID
	}
	if in.UserID == uuid.Nil || in.PackageID == uuid.Nil {
		return persistence.Subscription{}, fmt.Errorf("%w: userId and packageId are required", ErrInvalidInput)
	}
	if !isManager(caller.Role) && in.UserID != caller.UserID {
		return persistence.Subscription{}, ErrNotSelf
	}

	lookup := tenantscope.WithoutTenant(ctx, "subscription ownership check")

	pkg, err := s.packages.GetPackage(lookup, in.PackageID)
	if err != nil {
		if errors.Is(err, persistence.ErrPackageNotFound) {
			return persistence.Subscription{}, ErrPackageNotFound
		}
		return persistence.Subscription{}, fmt.Errorf("load package: %w", err)
	}
	subscriber, err := s.users.GetByID(lookup, in.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return persistence.Subscription{}, ErrSubscriberNotFound
		}
		return persistence.Subscription{}, fmt.Errorf("load subscriber: %w", err)
	}

	if err := s.guard.AssertAllSameTenant(ctx, pkg, subscriber); err != nil {
		return persistence.Subscription{}, err
	}
	if !pkg.IsActive {
		return persistence.Subscription{}, ErrPackageInactive
	}

	startsAt := s.now().UTC()
	sub, err := s.repo.CreateSubscription(ctx, persistence.Subscription{
		UserID:    subscriber.ID,
		PackageID: pkg.ID,
		Status:    StatusPending,
		StartsAt:  startsAt,
		ExpiresAt: startsAt.Add(time.Duration(pkg.ValidityHours) * time.Hour),
	})
	if err != nil {
		return persistence.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}

	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("package_id", pkg.ID.String()),
		zap.String("user_id", subscriber.ID.String()),
	)
	return sub, nil
}

func isManager(role platformauth.Role) bool {
	return role == platformauth.RoleAdmin || role == platformauth.RoleSystemAdmin
}
