package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/traidnet/wificore/domains/payments/be/service"
	"github.com/traidnet/wificore/platform/go/logging"
	"github.com/traidnet/wificore/platform/go/problems"
)

type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("payments service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/payments", h.PaymentsInitiate)
}

type initiateRequest struct {
	UserID    *uuid.UUID `json:"userId"`
	PackageID uuid.UUID  `json:"packageId"`
	Phone     string     `json:"phone"`
	Reference string     `json:"reference"`
}

type paymentResponse struct {
	ID        uuid.UUID `json:"id"`
	PackageID uuid.UUID `json:"packageId"`
	Amount    float64   `json:"amount"`
	Phone     string    `json:"phone"`
	Status    string    `json:"status"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
}

// PaymentsInitiate implements POST /payments
func (h *Handler) PaymentsInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problems.Write(w, problems.Validation("invalid JSON body", nil))
		return
	}
	in := service.InitiateInput{PackageID: req.PackageID, Phone: req.Phone, Reference: req.Reference}
	if req.UserID != nil {
		in.UserID = *req.UserID
	}

	p, err := h.svc.Initiate(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	problems.WriteJSON(w, http.StatusAccepted, paymentResponse{
		ID:        p.ID,
		PackageID: p.PackageID,
		Amount:    p.Amount,
		Phone:     p.Phone,
		Status:    p.Status,
		Reference: p.Reference,
		CreatedAt: p.CreatedAt,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make(map[string][]string, len(verr.Fields))
		for k, v := range verr.Fields {
			fields[k] = []string{v}
		}
		problems.Write(w, problems.Validation(verr.Error(), fields))
		return
	case errors.Is(err, service.ErrPackageNotFound), errors.Is(err, service.ErrSubscriberNotFound):
		problems.Write(w, problems.New(http.StatusNotFound, problems.TypeNotFound, "Not found", err.Error()))
		return
	case errors.Is(err, service.ErrPackageInactive), errors.Is(err, service.ErrDuplicateReference):
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
	logging.FromRequest(r, h.logger).Error("payment request failed", zap.Error(err))
	problems.Write(w, problems.Internal())
}
