// Package worker reacts to committed orders. It runs outside the order
// transaction, so nothing it does can affect stock or the order itself.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
	newBackOff      func() backoff.BackOff
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: strings.TrimSuffix(emailServiceURL, "/"),
		httpClient:      client,
		logger:          logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			return backoff.WithMaxRetries(b, 3)
		},
	}
}

// Handle sends the order confirmation for an order.created payload.
// Malformed payloads are logged and skipped so they cannot block the topic.
func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.Error("dropping malformed order created event", "error", err)
		return nil
	}

	h.logger.Info("processing order created event", "order_number", event.OrderNumber, "user_id", event.UserID)

	if event.Email == "" {
		h.logger.Warn("order has no recipient, skipping confirmation", "order_number", event.OrderNumber)
		return nil
	}

	send := func() error {
		return h.sendEmail(ctx, confirmationEmail(event))
	}
	if err := backoff.Retry(send, backoff.WithContext(h.newBackOff(), ctx)); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_number", event.OrderNumber)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("order confirmation sent", "order_number", event.OrderNumber)
	return nil
}

type emailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func confirmationEmail(event domain.OrderCreatedEvent) emailMessage {
	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\n\nThank you for your order %s.\n\n", event.ShippingName, event.OrderNumber)
	for _, item := range event.Items {
		fmt.Fprintf(&body, "  %s x%d  %d\n", item.ProductName, item.Quantity, item.Price*int64(item.Quantity))
	}
	fmt.Fprintf(&body, "\nTotal: %d\n", event.TotalAmount)

	return emailMessage{
		To:      event.Email,
		Subject: "Order Confirmation: " + event.OrderNumber,
		Body:    body.String(),
	}
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg emailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("email service rejected message with status %d", resp.StatusCode))
	}
}
