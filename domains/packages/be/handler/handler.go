package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/domains/packages/be/service"
	"github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/persistence"
	"github.com/traidnet/wificore/platform/go/problems"
)

type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("packages service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the tenant-facing endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/packages", h.PackagesList)
	r.Post("/packages/{packageId}/routers/{routerId}", h.PackagesAssignRouter)
}

// AdminRoutes mounts the system administrator endpoints under /admin/tenants.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/{tenantId}/packages", h.TenantPackagesList)
}

type packageResponse struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenantId"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	Speed         string    `json:"speed,omitempty"`
	ValidityHours int       `json:"validityHours"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

type packageListResponse struct {
	Items []packageResponse `json:"items"`
}

// PackagesList implements GET /packages
func (h *Handler) PackagesList(w http.ResponseWriter, r *http.Request) {
	onlyActive, ok := activeParam(w, r)
	if !ok {
		return
	}
	pkgs, err := h.svc.List(r.Context(), onlyActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, toListResponse(pkgs))
}

// TenantPackagesList implements GET /admin/tenants/{tenantId}/packages
func (h *Handler) TenantPackagesList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := uuidParam(w, r, "tenantId")
	if !ok {
		return
	}
	onlyActive, ok := activeParam(w, r)
	if !ok {
		return
	}
	pkgs, err := h.svc.ListForTenant(r.Context(), tenantID, onlyActive)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusOK, toListResponse(pkgs))
}

// PackagesAssignRouter implements POST /packages/{packageId}/routers/{routerId}
func (h *Handler) PackagesAssignRouter(w http.ResponseWriter, r *http.Request) {
	packageID, ok := uuidParam(w, r, "packageId")
	if !ok {
		return
	}
	routerID, ok := uuidParam(w, r, "routerId")
	if !ok {
		return
	}
	if err := h.svc.AssignRouter(r.Context(), packageID, routerID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrPackageNotFound), errors.Is(err, service.ErrRouterNotFound):
		problems.Write(w, problems.New(http.StatusNotFound, problems.TypeNotFound, "Not found", err.Error()))
		return
	}
	if p, ok := problems.FromFault(err); ok {
		problems.Write(w, p)
		return
	}
	logging.FromRequest(r, h.logger).Error("packages request failed", zap.Error(err))
	problems.Write(w, problems.Internal())
}

func activeParam(w http.ResponseWriter, r *http.Request) (bool, bool) {
	v := r.URL.Query().Get("active")
	if v == "" {
		return false, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		problems.Write(w, problems.Validation("invalid query parameters", map[string][]string{"active": {"must be a boolean"}}))
		return false, false
	}
	return b, true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		problems.Write(w, problems.Validation("invalid "+name, map[string][]string{name: {"must be a uuid"}}))
		return uuid.Nil, false
	}
	return id, true
}

func toListResponse(pkgs []persistence.Package) packageListResponse {
	items := make([]packageResponse, 0, len(pkgs))
	for _, p := range pkgs {
		items = append(items, packageResponse{
			ID:            p.ID,
			TenantID:      p.TenantID,
			Name:          p.Name,
			Price:         p.Price,
			Speed:         p.Speed,
			ValidityHours: p.ValidityHours,
			IsActive:      p.IsActive,
			CreatedAt:     p.CreatedAt,
		})
	}
	return packageListResponse{Items: items}
}
