// Package server exposes payment confirmation and order reads over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/health"
	"github.com/vietddude/paywatch/internal/orders"
	"github.com/vietddude/paywatch/internal/payment/digest"
	"github.com/vietddude/paywatch/internal/reconcile"
)

const (
	// HeaderMerchantID carries the caller's merchant scope, set by the
	// authenticating proxy in front of this service.
	HeaderMerchantID = "X-Merchant-ID"
	// HeaderWebhookSecret authenticates webhook callers.
	HeaderWebhookSecret = "X-Webhook-Secret"
	HeaderRequestID     = "X-Request-ID"

	maxBodyBytes = 1 << 16
)

// Confirmer settles payments.
type Confirmer interface {
	Confirm(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// Config holds HTTP server settings.
type Config struct {
	Port          int
	WebhookSecret string
}

// Server provides the HTTP API.
type Server struct {
	cfg     Config
	engine  Confirmer
	orders  *orders.Service
	monitor *health.Monitor
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, engine Confirmer, svc *orders.Service, monitor *health.Monitor) *Server {
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		orders:  svc,
		monitor: monitor,
		log:     slog.Default().With("component", "server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders/confirm-by-txid", s.handleConfirm)
	mux.HandleFunc("POST /api/orders/webhook", s.handleWebhook)
	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("GET /api/orders/{orderId}/status", s.handleOrderStatus)
	mux.HandleFunc("GET /api/dashboard/summary", s.handleSummary)
	mux.HandleFunc("POST /api/merchants/confirm", s.handleConfirmMerchant)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.withRequestID(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// merchantScope reads the caller's merchant id. A merchant name is accepted
// and resolved the way merchant ids are derived.
func merchantScope(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := digest.FromString(strings.TrimSpace(r.Header.Get(HeaderMerchantID)))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing "+HeaderMerchantID, "", nil)
		return "", false
	}
	return id.String(), true
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// -----------------------------------------------------------------------------
// Confirmation
// -----------------------------------------------------------------------------

type confirmRequest struct {
	TxID      string `json:"txid"`
	OrderID   string `json:"orderId"`
	InvoiceID string `json:"invoiceId"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := merchantScope(w, r)
	if !ok {
		return
	}

	var body confirmRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.confirm(w, r, reconcile.Request{
		TxID:        body.TxID,
		MerchantID:  merchantID,
		OrderHint:   body.OrderID,
		InvoiceHint: body.InvoiceID,
		Source:      reconcile.SourceMerchant,
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret == "" {
		writeError(w, http.StatusInternalServerError, "webhook secret not configured", "", nil)
		return
	}
	got := r.Header.Get(HeaderWebhookSecret)
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.WebhookSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "unauthorized webhook", "", nil)
		return
	}

	var body confirmRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.confirm(w, r, reconcile.Request{TxID: body.TxID, Source: reconcile.SourceWebhook})
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request, req reconcile.Request) {
	if strings.TrimSpace(req.TxID) == "" {
		writeError(w, http.StatusBadRequest, "missing required field: txid", string(domain.KindInvalidInput), nil)
		return
	}

	res, err := s.engine.Confirm(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, res)
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := merchantScope(w, r)
	if !ok {
		return
	}

	var body struct {
		Amount string `json:"amount"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	order, err := s.orders.Create(r.Context(), merchantID, body.Amount)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusCreated, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := merchantScope(w, r)
	if !ok {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", string(domain.KindInvalidInput), nil)
			return
		}
		limit = n
	}

	list, err := s.orders.List(r.Context(), merchantID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"orders": list})
}

type orderStatus struct {
	OrderID   string             `json:"order_id"`
	InvoiceID string             `json:"invoice_id"`
	Amount    string             `json:"amount"`
	Token     string             `json:"token"`
	Status    domain.OrderStatus `json:"status"`
	TxID      string             `json:"txid,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.Get(r.Context(), r.PathValue("orderId"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"order": orderStatus{
		OrderID:   o.OrderID,
		InvoiceID: o.InvoiceID,
		Amount:    o.Amount,
		Token:     o.Token,
		Status:    o.Status,
		TxID:      o.TxID,
		UpdatedAt: o.UpdatedAt,
	}})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := merchantScope(w, r)
	if !ok {
		return
	}
	dash, err := s.orders.Dashboard(r.Context(), merchantID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, dash)
}

// handleConfirmMerchant records the caller's activation from a registry transaction.
func (s *Server) handleConfirmMerchant(w http.ResponseWriter, r *http.Request) {
	merchantID, ok := merchantScope(w, r)
	if !ok {
		return
	}

	var body struct {
		TxID string `json:"txid"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.TxID) == "" {
		writeError(w, http.StatusBadRequest, "missing required field: txid", string(domain.KindInvalidInput), nil)
		return
	}

	res, err := s.orders.ConfirmMerchant(r.Context(), merchantID, body.TxID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeOK(w, http.StatusOK, res)
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if report.SystemStatus == health.StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// -----------------------------------------------------------------------------
// Responses
// -----------------------------------------------------------------------------

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", string(domain.KindInvalidInput), nil)
		return false
	}
	return true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "", nil)
		return
	}

	status := StatusFor(de.Kind)
	details := de.Details
	if de.Kind.Retryable() {
		if details == nil {
			details = map[string]any{}
		}
		details["retryable"] = true
	}
	writeError(w, status, de.Message, string(de.Kind), details)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput, domain.KindInvalidAmount:
		return http.StatusBadRequest
	case domain.KindNotYetConfirmed, domain.KindOrderNotFound:
		return http.StatusNotFound
	case domain.KindConflict, domain.KindAmbiguousOrder, domain.KindUnexpectedEvent,
		domain.KindIdentifierMismatch, domain.KindWrongToken, domain.KindAmountMismatch,
		domain.KindMalformedLog:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	OK      bool           `json:"ok"`
	Error   string         `json:"error"`
	Kind    string         `json:"kind,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"ok": true, "data": data})
}

func writeError(w http.ResponseWriter, status int, msg, kind string, details map[string]any) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
