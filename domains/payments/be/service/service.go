// Package service records payment intents for packages. Talking to the
// payment gateway is out of scope; a payment starts pending and is settled elsewhere.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

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
	ErrNotSelf            = errors.New("users may only pay for themselves")
	ErrDuplicateReference = errors.New("payment reference already used")
)

const StatusPending = "pending"

type PackageReader interface {
	GetPackage(ctx context.Context, id uuid.UUID) (persistence.Package, error)
}

type SubscriberReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (persistence.User, error)
}

// Repository is implemented by persistence.BillingStore.
type Repository interface {
	CreatePayment(ctx context.Context, p persistence.Payment) (persistence.Payment, error)
}

type InitiateInput struct {
	UserID    uuid.UUID
	PackageID uuid.UUID
	Phone     string
	// Reference is generated when empty.
	Reference string
}

type Service struct {
	packages PackageReader
	users    SubscriberReader
	repo     Repository
	guard    *guard.Guard
	logger   *zap.Logger
}

func New(packages PackageReader, users SubscriberReader, repo Repository, g *guard.Guard, logger *zap.Logger) *Service {
	if packages == nil || users == nil || repo == nil {
		panic("payments dependencies are required")
	}
	if g == nil {
		panic("payments guard is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{packages: packages, users: users, repo: repo, guard: g, logger: logger.Named("payments")}
}

// Initiate records a pending payment for a package. The package and the
// paying user must belong to the tenant of the current unit of work.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (persistence.Payment, error) {
	caller, _ := platformauth.CallerFromContext(ctx)
	if in.UserID == uuid.Nil {
		in.UserID = caller.UserID
	}
	in.Phone = strings.TrimSpace(in.Phone)
	in.Reference = strings.TrimSpace(in.Reference)

	fields := map[string]string{}
	if in.UserID == uuid.Nil {
		fields["userId"] = "is required"
	}
	if in.PackageID == uuid.Nil {
		fields["packageId"] = "is required"
	}
	if in.Phone == "" {
		fields["phone"] = "is required"
	}
	if len(fields) > 0 {
		return persistence.Payment{}, &ValidationError{Fields: fields}
	}
	if caller.Role != platformauth.RoleAdmin && caller.Role != platformauth.RoleSystemAdmin && in.UserID != caller.UserID {
		return persistence.Payment{}, ErrNotSelf
	}

	lookup := tenantscope.WithoutTenant(ctx, "payment ownership check")

	pkg, err := s.packages.GetPackage(lookup, in.PackageID)
	if err != nil {
		if errors.Is(err, persistence.ErrPackageNotFound) {
			return persistence.Payment{}, ErrPackageNotFound
		}
		return persistence.Payment{}, fmt.Errorf("load package: %w", err)
	}
	payer, err := s.users.GetByID(lookup, in.UserID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return persistence.Payment{}, ErrSubscriberNotFound
		}
		return persistence.Payment{}, fmt.Errorf("load subscriber: %w", err)
	}

	if err := s.guard.AssertAllSameTenant(ctx, pkg, payer); err != nil {
		return persistence.Payment{}, err
	}
	if !pkg.IsActive {
		return persistence.Payment{}, ErrPackageInactive
	}

	if in.Reference == "" {
		in.Reference = "WC-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	}

	payment, err := s.repo.CreatePayment(ctx, persistence.Payment{
		UserID:    payer.ID,
		PackageID: pkg.ID,
		Amount:    pkg.Price,
		Phone:     in.Phone,
		Status:    StatusPending,
		Reference: in.Reference,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrPaymentConflict) {
			return persistence.Payment{}, ErrDuplicateReference
		}
		return persistence.Payment{}, fmt.Errorf("create payment: %w", err)
	}

	s.logger.Info("payment initiated",
		zap.String("payment_id", payment.ID.String()),
		zap.String("reference", payment.Reference),
		zap.String("package_id", pkg.ID.String()),
		zap.Float64("amount", payment.Amount),
	)
	return payment, nil
}

// ValidationError lists the rejected input fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "invalid payment request"
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
