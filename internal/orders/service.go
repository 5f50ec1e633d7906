// Package orders covers the merchant-facing order lifecycle outside
// reconciliation: onboarding merchants, opening orders and reporting on them.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/payment/amount"
	"github.com/vietddude/paywatch/internal/payment/digest"
)

// Service wraps the store with input validation and identifier generation.
type Service struct {
	store    storage.Store
	token    string
	registry *Registry
	log      *slog.Logger
}

// NewService creates an order service. token is the symbol new orders are denominated in.
func NewService(store storage.Store, token string) *Service {
	return &Service{
		store: store,
		token: token,
		log:   slog.Default().With("component", "orders"),
	}
}

// AddMerchant registers a merchant under digestFromString(name).
func (s *Service) AddMerchant(ctx context.Context, name, address string) (*domain.Merchant, error) {
	name = strings.TrimSpace(name)
	id, err := digest.FromString(name)
	if err != nil {
		return nil, err
	}

	m := &domain.Merchant{MerchantID: id.String(), Name: name, Address: address, Active: true}
	if err := s.store.Merchants().Create(ctx, m); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, domain.NewError(domain.KindConflict, "merchant already exists",
				map[string]any{"merchant_id": m.MerchantID})
		}
		return nil, err
	}

	s.log.Info("merchant added", "merchant_id", m.MerchantID, "name", name)
	return m, nil
}

// ResolveMerchant accepts a merchant id or a merchant name.
func (s *Service) ResolveMerchant(ctx context.Context, ref string) (*domain.Merchant, error) {
	id, err := digest.FromString(strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	m, err := s.store.Merchants().Get(ctx, id.String())
	if errors.Is(err, storage.ErrMerchantNotFound) {
		return nil, domain.NewError(domain.KindOrderNotFound, "merchant not found",
			map[string]any{"merchant": ref})
	}
	return m, err
}

// Create opens a PENDING order with fresh random order and invoice ids.
func (s *Service) Create(ctx context.Context, merchantID, amt string) (*domain.Order, error) {
	d, err := amount.Parse(strings.TrimSpace(amt))
	if err != nil {
		return nil, err
	}
	if !d.IsPositive() {
		return nil, domain.NewError(domain.KindInvalidAmount, "amount must be positive",
			map[string]any{"amount": amt})
	}

	merchant, err := s.ResolveMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if !merchant.Active {
		return nil, domain.NewError(domain.KindInvalidInput, "merchant is not active",
			map[string]any{"merchant_id": merchant.MerchantID})
	}

	orderID, err := digest.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}
	invoiceID, err := digest.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("generate invoice id: %w", err)
	}

	order := &domain.Order{
		MerchantID:      merchant.MerchantID,
		MerchantAddress: merchant.Address,
		OrderID:         orderID.String(),
		InvoiceID:       invoiceID.String(),
		Amount:          strings.TrimSpace(amt),
		Token:           s.token,
		Status:          domain.OrderStatusPending,
	}
	if err := s.store.Orders().Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created", "merchant_id", order.MerchantID, "order_id", order.OrderID, "amount", order.Amount)
	return order, nil
}

// Get returns an order by its stored id.
func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := s.store.Orders().GetByOrderID(ctx, strings.TrimSpace(orderID))
	if errors.Is(err, storage.ErrOrderNotFound) {
		return nil, domain.NewError(domain.KindOrderNotFound, "order not found",
			map[string]any{"order_id": orderID})
	}
	return o, err
}

// List returns a merchant's most recent orders.
func (s *Service) List(ctx context.Context, merchantID string, limit int) ([]*domain.Order, error) {
	return s.store.Orders().List(ctx, merchantID, limit)
}

// Dashboard is a merchant's KPI view.
type Dashboard struct {
	Merchant     *domain.Merchant        `json:"merchant"`
	KPI          *domain.MerchantSummary `json:"kpi"`
	RecentOrders []*domain.Order         `json:"recentOrders"`
}

// Dashboard aggregates a merchant's orders.
func (s *Service) Dashboard(ctx context.Context, merchantRef string) (*Dashboard, error) {
	merchant, err := s.ResolveMerchant(ctx, merchantRef)
	if err != nil {
		return nil, err
	}
	sum, err := s.store.Orders().Summary(ctx, merchant.MerchantID)
	if err != nil {
		return nil, err
	}
	if sum.Currency == "" {
		sum.Currency = s.token
	}
	recent, err := s.store.Orders().List(ctx, merchant.MerchantID, 10)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Merchant: merchant, KPI: sum, RecentOrders: recent}, nil
}
