package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
	"github.com/traidnet/wificore/platform/go/problems"
)

const bearerScheme = "bearerAuth"

// ValidateAuthentication satisfies operations that declare bearerAuth. It runs
// after the JWT middleware, so it only checks that a caller was established.
// Operations with `security: []` never reach it.
func ValidateAuthentication(_ context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != bearerScheme {
		return nil
	}
	r := input.RequestValidationInput.Request
	if r == nil {
		return errors.New("no request in validation input")
	}
	caller, ok := platformauth.CallerFromContext(r.Context())
	if !ok || !caller.Authenticated {
		return errors.New("missing or invalid bearer token")
	}
	return nil
}

// SpecValidator rejects requests that do not match doc before they reach a
// handler. Failures are written as problem details.
func SpecValidator(doc *openapi3.T) func(http.Handler) http.Handler {
	validate := oapimiddleware.OapiRequestValidatorWithOptions(doc, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: ValidateAuthentication,
		},
		ErrorHandler: writeValidationProblem,
	})

	return func(next http.Handler) http.Handler {
		validated := validate(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			validated.ServeHTTP(w, r)
		})
	}
}

func writeValidationProblem(w http.ResponseWriter, message string, status int) {
	switch status {
	case http.StatusBadRequest:
		problems.Write(w, problems.Validation(message, nil))
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
		problems.Write(w, problems.New(status, problems.TypeUnauthorized, "Authentication failed", "authentication failed"))
	case http.StatusNotFound:
		problems.Write(w, problems.New(status, problems.TypeNotFound, "Not found", message))
	default:
		problems.Write(w, problems.New(status, "", http.StatusText(status), message))
	}
}
