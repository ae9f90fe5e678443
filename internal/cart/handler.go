package cart

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/httpapi"
)

type Handler struct {
	store  *Store
	logger *slog.Logger
}

func NewHandler(store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type addRequest struct {
	UserID    int64 `json:"user_id" validate:"required,gt=0"`
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gt=0"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	if err := h.store.AddItem(r.Context(), req.UserID, req.ProductID, req.Quantity); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, httpapi.Message{Message: "item added to cart"})
}

func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.QueryInt64(r, "user_id")
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	items, err := h.store.ListItems(r.Context(), userID)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, items)
}

type updateRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpapi.PathInt64(r, "itemId")
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	var req updateRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	if err := h.store.UpdateItem(r.Context(), itemID, req.Quantity); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, httpapi.Message{Message: "cart item updated"})
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := httpapi.PathInt64(r, "itemId")
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	if err := h.store.RemoveItem(r.Context(), itemID); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, httpapi.Message{Message: "cart item removed"})
}

func (h *Handler) HandleTotal(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.QueryInt64(r, "user_id")
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	total, err := h.store.Total(r.Context(), userID)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, total)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.QueryInt64(r, "user_id")
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	if err := h.store.Clear(r.Context(), userID); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, httpapi.Message{Message: "cart cleared"})
}
