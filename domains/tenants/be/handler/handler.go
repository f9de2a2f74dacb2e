package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/domains/tenants/be/service"
	"github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/problems"
)

// Handler exposes the tenant registry to system administrators.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handler under /admin/tenants. Callers gate it on system_admin.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.TenantsList)
	r.Post("/", h.TenantsCreate)
	r.Get("/{tenantId}", h.TenantsGet)
	r.Post("/{tenantId}/deactivate", h.TenantsDeactivate)
	r.Post("/{tenantId}/activate", h.TenantsActivate)
	r.Post("/{tenantId}/provision", h.TenantsProvision)
	r.Get("/{tenantId}/provision-status", h.TenantsProvisionStatus)
}

type tenantResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	SchemaName string    `json:"schemaName"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type tenantListResponse struct {
	Items      []tenantResponse `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

type createTenantRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type provisionStatusResponse struct {
	Ready bool `json:"ready"`
}

// TenantsList implements GET /admin/tenants
func (h *Handler) TenantsList(w http.ResponseWriter, r *http.Request) {
	opts, fieldErrs := buildListOptions(r)
	if fieldErrs != nil {
		problems.Write(w, problems.Validation("invalid query parameters", fieldErrs))
		return
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toAPITenant(t))
	}

	problems.WriteJSON(w, http.StatusOK, tenantListResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// TenantsCreate implements POST /admin/tenants
func (h *Handler) TenantsCreate(w http.ResponseWriter, r *http.Request) {
	var body createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problems.Write(w, problems.Validation("request body is required", nil))
		return
	}

	t, err := h.svc.Create(r.Context(), service.CreateInput{Name: body.Name, Slug: body.Slug})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/admin/tenants/%s", t.ID))
	problems.WriteJSON(w, http.StatusCreated, toAPITenant(t))
}

// TenantsGet implements GET /admin/tenants/{tenantId}
func (h *Handler) TenantsGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, toAPITenant(t))
}

// TenantsDeactivate implements POST /admin/tenants/{tenantId}/deactivate
func (h *Handler) TenantsDeactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Deactivate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, toAPITenant(t))
}

// TenantsActivate implements POST /admin/tenants/{tenantId}/activate
func (h *Handler) TenantsActivate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Activate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, toAPITenant(t))
}

// TenantsProvision implements POST /admin/tenants/{tenantId}/provision
func (h *Handler) TenantsProvision(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Reprovision(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusAccepted, toAPITenant(t))
}

// TenantsProvisionStatus implements GET /admin/tenants/{tenantId}/provision-status
func (h *Handler) TenantsProvisionStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	status, err := h.svc.ProvisionStatus(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, provisionStatusResponse{Ready: status.Ready})
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantId"))
	if err != nil {
		problems.Write(w, problems.Validation("invalid tenant id", map[string][]string{"tenantId": {"must be a uuid"}}))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	problems.Write(w, h.problemForError(r, err))
}

func (h *Handler) problemForError(r *http.Request, err error) problems.ProblemDetails {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return problems.New(http.StatusNotFound, problems.TypeNotFound, "Not found", service.ErrNotFound.Error())
	case errors.Is(err, service.ErrConflict):
		return problems.New(http.StatusConflict, problems.TypeConflict, "Conflict", err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return problems.Validation(err.Error(), nil)
	}
	if p, ok := problems.FromFault(err); ok {
		return p
	}
	logging.FromRequest(r, h.logger).Error("tenant operation failed", zap.Error(err))
	return problems.Internal()
}

// buildListOptions parses the paging query. Ranges are enforced by the API contract.
func buildListOptions(r *http.Request) (service.ListOptions, map[string][]string) {
	opts := service.ListOptions{Page: 1, PageSize: 20}
	errs := map[string][]string{}
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs["page"] = append(errs["page"], "must be an integer")
		}
		opts.Page = n
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs["pageSize"] = append(errs["pageSize"], "must be an integer")
		}
		opts.PageSize = n
	}
	if v := q.Get("includeInactive"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs["includeInactive"] = append(errs["includeInactive"], "must be a boolean")
		}
		opts.IncludeInactive = b
	}

	if len(errs) > 0 {
		return service.ListOptions{}, errs
	}
	return opts, nil
}

func toAPITenant(t service.Tenant) tenantResponse {
	return tenantResponse{
		ID:         t.ID,
		Name:       t.Name,
		Slug:       t.Slug,
		SchemaName: t.SchemaName,
		IsActive:   t.IsActive,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
