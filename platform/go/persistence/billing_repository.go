package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/traidnet/wificore/platform/go/tenantscope"
)

const (
	SubscriptionsTable = "user_subscriptions"
	PaymentsTable      = "payments"
)

// ErrPaymentConflict is returned when a payment reference is reused.
var ErrPaymentConflict = errors.New("payment reference already used")

var subscriptionColumns = []string{"id", "tenant_id", "user_id", "package_id", "status", "starts_at", "expires_at", "created_at", "updated_at"}

// Subscription grants a user access to a package for a validity window.
type Subscription struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	UserID    uuid.UUID `json:"userId"`
	PackageID uuid.UUID `json:"packageId"`
	Status    string    `json:"status"`
	StartsAt  time.Time `json:"startsAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

var paymentColumns = []string{"id", "tenant_id", "user_id", "package_id", "amount", "phone", "status", "reference", "created_at", "updated_at"}

// Payment is a pending or settled charge for a package.
type Payment struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenantId"`
	UserID    uuid.UUID `json:"userId"`
	PackageID uuid.UUID `json:"packageId"`
	Amount    float64   `json:"amount"`
	Phone     string    `json:"phone"`
	Status    string    `json:"status"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BillingStore writes subscriptions and payments for the tenant in scope.
type BillingStore struct {
	q     Querier
	scope *tenantscope.Enforcer
}

func NewBillingStore(q Querier, scope *tenantscope.Enforcer) (*BillingStore, error) {
	if q == nil {
		return nil, errors.New("querier is required")
	}
	if scope == nil {
		return nil, errors.New("scope enforcer is required")
	}
	return &BillingStore{q: q, scope: scope}, nil
}

// CreateSubscription inserts a subscription owned by the tenant in scope.
func (s *BillingStore) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	tenantID, err := s.scope.TenantForWrite(ctx)
	if err != nil {
		return Subscription{}, err
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.Status == "" {
		sub.Status = "pending"
	}

	row, err := queryRow(ctx, s.q, psql.Insert(SubscriptionsTable).
		Columns("id", "tenant_id", "user_id", "package_id", "status", "starts_at", "expires_at").
		Values(sub.ID, tenantID, sub.UserID, sub.PackageID, sub.Status, sub.StartsAt, sub.ExpiresAt).
		Suffix("RETURNING "+strings.Join(subscriptionColumns, ", ")))
	if err != nil {
		return Subscription{}, err
	}

	var out Subscription
	if err := row.Scan(&out.ID, &out.TenantID, &out.UserID, &out.PackageID, &out.Status,
		&out.StartsAt, &out.ExpiresAt, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Subscription{}, err
	}
	return out, nil
}

// CreatePayment records a pending payment owned by the tenant in scope.
func (s *BillingStore) CreatePayment(ctx context.Context, p Payment) (Payment, error) {
	tenantID, err := s.scope.TenantForWrite(ctx)
	if err != nil {
		return Payment{}, err
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = "pending"
	}

	row, err := queryRow(ctx, s.q, psql.Insert(PaymentsTable).
		Columns("id", "tenant_id", "user_id", "package_id", "amount", "phone", "status", "reference").
		Values(p.ID, tenantID, p.UserID, p.PackageID, p.Amount, p.Phone, p.Status, p.Reference).
		Suffix("RETURNING "+strings.Join(paymentColumns, ", ")))
	if err != nil {
		return Payment{}, err
	}

	var out Payment
	if err := row.Scan(&out.ID, &out.TenantID, &out.UserID, &out.PackageID, &out.Amount, &out.Phone,
		&out.Status, &out.Reference, &out.CreatedAt, &out.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Payment{}, ErrPaymentConflict
		}
		return Payment{}, err
	}
	return out, nil
}
