// Package server assembles the storefront HTTP surface.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront/internal/accounts"
	"github.com/joao-fontenele/storefront/internal/cart"
	"github.com/joao-fontenele/storefront/internal/catalog"
	"github.com/joao-fontenele/storefront/internal/httpapi"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/telemetry"
)

type Handlers struct {
	Accounts *accounts.Handler
	Catalog  *catalog.Handler
	Cart     *cart.Handler
	Orders   *orders.Handler
	Metrics  http.Handler
}

// NewMux registers every storefront route. Each handler is wrapped so the
// server span carries the matched route.
func NewMux(h Handlers, db *sql.DB, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	route := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, telemetry.WithHTTPRoute(fn))
	}

	route("POST /api/login", h.Accounts.HandleLogin)

	route("GET /api/products", h.Catalog.HandleListProducts)
	route("GET /api/products/{id}", h.Catalog.HandleGetProduct)
	route("GET /api/products/category/{categoryId}", h.Catalog.HandleListByCategory)
	route("GET /api/categories", h.Catalog.HandleListCategories)

	route("POST /api/cart/add", h.Cart.HandleAdd)
	route("GET /api/cart/items", h.Cart.HandleListItems)
	route("PUT /api/cart/items/{itemId}", h.Cart.HandleUpdateItem)
	route("DELETE /api/cart/items/{itemId}", h.Cart.HandleRemoveItem)
	route("GET /api/cart/total", h.Cart.HandleTotal)
	route("DELETE /api/cart/clear", h.Cart.HandleClear)

	route("POST /api/orders/create", h.Orders.HandleCreate)
	route("GET /api/orders", h.Orders.HandleList)
	route("GET /api/orders/{orderNumber}", h.Orders.HandleGet)

	mux.HandleFunc("GET /healthz", healthz(db, logger))
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	return mux
}

// Instrument wraps the mux with server-side tracing, naming spans after the
// matched pattern.
func Instrument(mux http.Handler, serviceName string) http.Handler {
	return otelhttp.NewHandler(mux, serviceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if r.Pattern != "" {
				return r.Pattern
			}
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/healthz" && r.URL.Path != "/metrics"
		}),
	)
}

func healthz(db *sql.DB, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.Warn("health check failed", "error", err)
			httpapi.WriteJSON(w, logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpapi.WriteJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	}
}
