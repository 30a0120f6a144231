// Package httpapi is the HTTP boundary. Handlers decode and validate input,
// call the services and translate domain errors to status codes; they hold no
// business rules of their own.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"storegate.org/internal/auth"
	"storegate.org/internal/obs"
	"storegate.org/internal/shop"
)

// ReadyProbe reports whether the process can serve traffic.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the API dependencies.
type Options struct {
	Log        *zap.Logger
	Auth       *auth.Service
	Shop       *shop.Service
	ReadyProbe ReadyProbe
	Version    string

	MaxBodyBytes    int64
	RateLimitPerSec int
	RateLimitBurst  int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	log        *zap.Logger
	auth       *auth.Service
	shop       *shop.Service
	readyProbe ReadyProbe
	version    string

	maxBodyBytes    int64
	rateLimitPerSec int
	rateLimitBurst  int
}

func New(opts Options) *API {
	a := &API{
		mux:             http.NewServeMux(),
		log:             opts.Log,
		auth:            opts.Auth,
		shop:            opts.Shop,
		readyProbe:      opts.ReadyProbe,
		version:         opts.Version,
		maxBodyBytes:    opts.MaxBodyBytes,
		rateLimitPerSec: opts.RateLimitPerSec,
		rateLimitBurst:  opts.RateLimitBurst,
	}
	if a.log == nil {
		a.log = zap.NewNop()
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// token lifecycle
	a.mux.HandleFunc("/v1/token", a.handleToken)
	a.mux.HandleFunc("/v1/token/refresh", a.handleTokenRefresh)

	// users and role administration
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/me", a.handleMe)
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)
	a.mux.HandleFunc("/v1/admin/audit", a.handleAudit)
	a.mux.HandleFunc("/v1/admin/roles/", a.handleRoleScoped)
	a.mux.HandleFunc("/v1/admin/system-status", a.handleSystemStatus)

	// storefront
	a.mux.HandleFunc("/v1/products", a.handleProducts)
	a.mux.HandleFunc("/v1/products/", a.handleProductScoped)
	a.mux.HandleFunc("/v1/categories", a.handleCategories)
	a.mux.HandleFunc("/v1/orders", a.handleOrders)
	a.mux.HandleFunc("/v1/orders/", a.handleOrderScoped)
	a.mux.HandleFunc("/v1/payments", a.handlePayments)
	a.mux.HandleFunc("/v1/payments/", a.handlePaymentScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	if a.rateLimitPerSec > 0 {
		h = RateLimit(h, a.rateLimitBurst, a.rateLimitPerSec)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(a.log, h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "storegate-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "storegate-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// decodeJSON reads the request body, which the MaxBodyBytes middleware has
// already capped at the configured limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit is out of range")
	}
	return val, nil
}

// handleAuthError maps access-control errors to status codes. Storage
// failures surface as 503, never as a denial.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusUnauthorized, "token expired")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvariant):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func handleShopError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shop.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, shop.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, shop.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, shop.ErrNotRefundable):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
