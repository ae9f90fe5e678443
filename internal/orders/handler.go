package orders

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/apperr"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/httpapi"
)

type Handler struct {
	factory *Factory
	history *History
	logger  *slog.Logger
}

func NewHandler(factory *Factory, history *History, logger *slog.Logger) *Handler {
	return &Handler{
		factory: factory,
		history: history,
		logger:  logger,
	}
}

type createOrderRequest struct {
	UserID             int64  `json:"user_id" validate:"required,gt=0"`
	PaymentMethod      string `json:"payment_method" validate:"required,max=50"`
	ShippingName       string `json:"shipping_name" validate:"required,max=100"`
	ShippingPostalCode string `json:"shipping_postal_code" validate:"required,max=20"`
	ShippingAddress    string `json:"shipping_address" validate:"required"`
	ShippingPhone      string `json:"shipping_phone" validate:"required,max=20"`
}

type createOrderResponse struct {
	Message     string `json:"message"`
	OrderNumber string `json:"order_number"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	order, err := h.factory.Create(r.Context(), req.UserID, domain.ShippingInfo{
		PaymentMethod:      req.PaymentMethod,
		ShippingName:       req.ShippingName,
		ShippingPostalCode: req.ShippingPostalCode,
		ShippingAddress:    req.ShippingAddress,
		ShippingPhone:      req.ShippingPhone,
	})
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusCreated, createOrderResponse{
		Message:     "order created",
		OrderNumber: order.OrderNumber,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.QueryInt64(r, "user_id")
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	orders, err := h.history.List(r.Context(), userID)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("orders listed", "user_id", userID, "count", len(orders))
	httpapi.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	orderNumber := r.PathValue("orderNumber")
	if orderNumber == "" {
		httpapi.WriteError(w, h.logger, apperr.Validation("missing orderNumber"))
		return
	}

	userID, err := httpapi.QueryInt64(r, "user_id")
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	order, err := h.history.Get(r.Context(), orderNumber, userID)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, order)
}
