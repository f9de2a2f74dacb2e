package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/domains/subscriptions/be/service"
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
		panic("subscriptions service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/subscriptions", h.SubscriptionsCreate)
}

type createRequest struct {
	UserID    *uuid.UUID `json:"userId"`
	PackageID uuid.UUID  `json:"packageId"`
}

type subscriptionResponse struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	PackageID uuid.UUID `json:"packageId"`
	Status    string    `json:"status"`
	StartsAt  time.Time `json:"startsAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubscriptionsCreate implements POST /subscriptions
func (h *Handler) SubscriptionsCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.Write(w, problems.Validation("invalid JSON body", nil))
		return
	}

	in := service.CreateInput{PackageID: req.PackageID}
	if req.UserID != nil {
		in.UserID = *req.UserID
	}

	sub, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusCreated, toResponse(sub))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		problems.Write(w, problems.Validation(err.Error(), nil))
		return
	case errors.Is(err, service.ErrPackageNotFound), errors.Is(err, service.ErrSubscriberNotFound):
		problems.Write(w, problems.New(http.StatusNotFound, problems.TypeNotFound, "Not found", err.Error()))
		return
	case errors.Is(err, service.ErrPackageInactive):
		problems.Write(w, problems.New(http.StatusConflict, problems.TypeConflict, "Conflict", err.Error()))
		return
	case errors.Is(err, service.ErrNotSelf):
		problems.Write(w, problems.New(http.StatusForbidden, problems.TypeForbidden, "Forbidden", "forbidden"))
		return
	}
	if p, ok := problems.FromFault(err); ok {
		problems.Write(w, p)
		return
	}
	logging.FromRequest(r, h.logger).Error("subscription request failed", zap.Error(err))
	problems.Write(w, problems.Internal())
}

func toResponse(s persistence.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:        s.ID,
		UserID:    s.UserID,
		PackageID: s.PackageID,
		Status:    s.Status,
		StartsAt:  s.StartsAt,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
}
