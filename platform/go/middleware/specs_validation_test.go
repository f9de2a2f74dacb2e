package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/traidnet/wificore/contracts"
	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/problems"
)

func newValidatedRouter(t *testing.T, caller *platformauth.Caller) (http.Handler, *int) {
	t.Helper()

	doc, err := contracts.Load()
	require.NoError(t, err)

	reached := 0
	ok := func(w http.ResponseWriter, r *http.Request) {
		reached++
		w.WriteHeader(http.StatusOK)
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if caller != nil {
					r = r.WithContext(platformauth.WithCaller(r.Context(), *caller))
				}
				next.ServeHTTP(w, r)
			})
		})
		r.Use(SpecValidator(doc))
		r.Post("/auth/login", ok)
		r.Get("/auth/me", ok)
		r.Post("/payments", ok)
		r.Get("/admin/tenants", ok)
		r.Options("/auth/login", ok)
	})
	return r, &reached
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func problemOf(t *testing.T, rec *httptest.ResponseRecorder) problems.ProblemDetails {
	t.Helper()
	require.Equal(t, problems.ContentType, rec.Header().Get("Content-Type"))
	var p problems.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestSpecValidatorRejectsBodiesOutsideTheContract(t *testing.T) {
	t.Parallel()

	h, reached := newValidatedRouter(t, nil)

	rec := send(h, http.MethodPost, "/api/v1/auth/login", `{"username":"alice"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	p := problemOf(t, rec)
	require.Equal(t, problems.TypeValidation, p.Type)
	require.Contains(t, p.Detail, "password")

	rec = send(h, http.MethodPost, "/api/v1/auth/login", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(h, http.MethodPost, "/api/v1/auth/login", `{"username":"alice","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, *reached)
}

func TestSpecValidatorChecksPatternsAndRanges(t *testing.T) {
	t.Parallel()

	tid := uuid.New()
	h, reached := newValidatedRouter(t, &platformauth.Caller{UserID: uuid.New(), Role: platformauth.RoleHotspotUser, TenantID: &tid, Authenticated: true})

	rec := send(h, http.MethodPost, "/api/v1/payments", `{"packageId":"`+uuid.NewString()+`","phone":"0700"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, problemOf(t, rec).Detail, "phone")

	rec = send(h, http.MethodPost, "/api/v1/payments", `{"packageId":"not-a-uuid","phone":"+254700000001"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, problemOf(t, rec).Detail, "packageId")

	rec = send(h, http.MethodGet, "/api/v1/admin/tenants?pageSize=500", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, problemOf(t, rec).Detail, "pageSize")

	rec = send(h, http.MethodPost, "/api/v1/payments", `{"packageId":"`+uuid.NewString()+`","phone":"+254700000001"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, *reached)
}

func TestSpecValidatorRequiresCallerForBearerRoutes(t *testing.T) {
	t.Parallel()

	anonymous, reached := newValidatedRouter(t, nil)
	rec := send(anonymous, http.MethodGet, "/api/v1/auth/me", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, problems.TypeUnauthorized, problemOf(t, rec).Type)
	require.Zero(t, *reached)

	caller := &platformauth.Caller{UserID: uuid.New(), Role: platformauth.RoleSystemAdmin, Authenticated: true}
	signedIn, reached := newValidatedRouter(t, caller)
	require.Equal(t, http.StatusOK, send(signedIn, http.MethodGet, "/api/v1/auth/me", "").Code)
	require.Equal(t, 1, *reached)
}

func TestSpecValidatorLetsPreflightThrough(t *testing.T) {
	t.Parallel()

	h, reached := newValidatedRouter(t, nil)
	require.Equal(t, http.StatusOK, send(h, http.MethodOptions, "/api/v1/auth/login", "").Code)
	require.Equal(t, 1, *reached)
}

func TestValidateAuthenticationIgnoresOtherSchemes(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateAuthentication(t.Context(), nil))
}
