// Package problems renders RFC 7807 problem documents.
package problems

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/traidnet/wificore/platform/go/faults"
)

const ContentType = "application/problem+json"

const (
	TypeValidation     = "https://wificore.traidnet.co.ke/problems/validation-error"
	TypeNotFound       = "https://wificore.traidnet.co.ke/problems/not-found"
	TypeConflict       = "https://wificore.traidnet.co.ke/problems/conflict"
	TypeUnauthorized   = "https://wificore.traidnet.co.ke/problems/authentication-failed"
	TypeForbidden      = "https://wificore.traidnet.co.ke/problems/forbidden"
	TypeUnavailable    = "https://wificore.traidnet.co.ke/problems/service-unavailable"
	TypeTooManyRequest = "https://wificore.traidnet.co.ke/problems/too-many-requests"
	TypeInternal       = "https://wificore.traidnet.co.ke/problems/internal-error"
)

// RetryAfterSeconds is advertised on 503 responses caused by an unreachable auth server.
const RetryAfterSeconds = 5

// ProblemDetails is the RFC 7807 body.
type ProblemDetails struct {
	Type   string              `json:"type,omitempty"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

func New(status int, problemType, title, detail string) ProblemDetails {
	return ProblemDetails{Type: problemType, Title: title, Status: status, Detail: detail}
}

// Validation builds a 400 with optional per-field messages.
func Validation(detail string, fields map[string][]string) ProblemDetails {
	p := New(http.StatusBadRequest, TypeValidation, "Invalid request", detail)
	p.Errors = fields
	return p
}

// FromFault maps a core fault to a problem that leaks nothing beyond faults.Outward.
// ok is false for errors the core does not classify.
func FromFault(err error) (ProblemDetails, bool) {
	status, message := faults.Outward(err)
	switch {
	case faults.IsCredentialFault(err):
		return New(status, TypeUnauthorized, "Authentication failed", message), true
	case faults.Retryable(err):
		return New(status, TypeUnavailable, "Service unavailable", message), true
	case errors.Is(err, faults.ErrCrossTenantViolation), errors.Is(err, faults.ErrScopeBypassUnauthorized),
		errors.Is(err, faults.ErrHostTenantMismatch):
		return New(status, TypeForbidden, "Forbidden", message), true
	case faults.IsIntegrityFault(err):
		return Internal(), true
	default:
		return ProblemDetails{}, false
	}
}

func Internal() ProblemDetails {
	return New(http.StatusInternalServerError, TypeInternal, "Internal error", "internal error")
}

// Write renders p with the problem content type.
func Write(w http.ResponseWriter, p ProblemDetails) {
	w.Header().Set("Content-Type", ContentType)
	if p.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteJSON renders a success body.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
