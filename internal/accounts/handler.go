package accounts

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront/internal/httpapi"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type loginRequest struct {
	Name     string `json:"name" validate:"required,max=50"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	UserID int64 `json:"userId"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	userID, err := h.service.Login(r.Context(), req.Name, req.Password)
	if err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	httpapi.WriteJSON(w, h.logger, http.StatusOK, loginResponse{UserID: userID})
}
