package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the payload of a session token issued after a successful login.
type SessionClaims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	TenantID string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// IssuerConfig configures session token signing.
type IssuerConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		cfg.Issuer = "wificore"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Issuer{secret: cfg.Secret, issuer: cfg.Issuer, ttl: cfg.TTL, now: cfg.Now}, nil
}

// Issue returns a signed token for caller and its expiry.
func (i *Issuer) Issue(caller Caller) (string, time.Time, error) {
	if caller.UserID == uuid.Nil {
		return "", time.Time{}, errors.New("user id is required")
	}
	if !caller.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("invalid role %q", caller.Role)
	}

	now := i.now().UTC()
	expires := now.Add(i.ttl)

	claims := SessionClaims{
		Username: caller.Username,
		Role:     caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   caller.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	if tid, ok := caller.Tenant(); ok {
		claims.TenantID = tid.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expires, nil
}

// Verify validates token and converts its claims into an authenticated Caller.
func (i *Issuer) Verify(_ context.Context, token string) (Caller, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Caller{}, fmt.Errorf("parse session token: %w", err)
	}

	return callerFromClaims(claims)
}

func callerFromClaims(claims *SessionClaims) (Caller, error) {
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Caller{}, fmt.Errorf("invalid subject: %w", err)
	}
	if !claims.Role.Valid() {
		return Caller{}, fmt.Errorf("invalid role %q", claims.Role)
	}

	caller := Caller{
		UserID:        userID,
		Username:      claims.Username,
		Role:          claims.Role,
		Authenticated: true,
	}

	if claims.TenantID != "" {
		tid, err := uuid.Parse(claims.TenantID)
		if err != nil {
			return Caller{}, fmt.Errorf("invalid tenant claim: %w", err)
		}
		caller.TenantID = &tid
	}

	if caller.Role != RoleSystemAdmin && caller.TenantID == nil {
		return Caller{}, errors.New("tenant claim required for non system administrators")
	}

	return caller, nil
}

// ExtractJWTToken pulls a bearer token from the Authorization header.
func ExtractJWTToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}
