// Package email is a stand-in mail transport: it accepts messages over HTTP
// and logs them instead of delivering them.
package email

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joao-fontenele/storefront/internal/httpapi"
)

var meter = otel.Meter("storefront/email")

type Handler struct {
	logger *slog.Logger
	sent   metric.Int64Counter
}

func NewHandler(logger *slog.Logger) *Handler {
	sent, err := meter.Int64Counter("email.sent", metric.WithDescription("Messages accepted for delivery"))
	if err != nil {
		sent = noop.Int64Counter{}
	}
	return &Handler{
		logger: logger,
		sent:   sent,
	}
}

type sendRequest struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.logger, err)
		return
	}

	h.sent.Add(r.Context(), 1)
	h.logger.Info("email sent", "to", req.To, "subject", req.Subject, "bytes", len(req.Body))

	httpapi.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}
