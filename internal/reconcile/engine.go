// Package reconcile settles orders against on-ledger payment events.
//
// A confirmation fetches the receipt of a transaction, decodes the payment
// event, matches it to exactly one order, checks identifiers, token and amount,
// and binds the transaction to the order in one conditional store update.
// Nothing is written before that final update, so every failure is safe to retry.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/chain"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/metrics"
	"github.com/vietddude/paywatch/internal/payment/amount"
	"github.com/vietddude/paywatch/internal/payment/digest"
	"github.com/vietddude/paywatch/internal/payment/eventlog"
)

// Sources label where a confirmation came from.
const (
	SourceMerchant = "merchant"
	SourceWebhook  = "webhook"
	SourceCLI      = "cli"
)

// Event argument names read from the payment event.
const (
	ArgMerchantID   = "merchantId"
	ArgOrderID      = "orderId"
	ArgInvoiceID    = "invoiceId"
	ArgPaymentToken = "paymentToken"
	ArgAmount       = "amount"
)

// Config describes the payment contract and settlement token.
type Config struct {
	// EventName is the event that settles an order
	EventName string

	// TokenAddress is the settlement token in the ledger's display form.
	// Empty disables the token check and reads decimals from the event's token.
	TokenAddress string

	// TokenSymbol is the symbol orders must be denominated in; empty accepts any
	TokenSymbol string
}

// Request is one confirmation attempt.
type Request struct {
	TxID string

	// MerchantID scopes the search to one merchant. Empty means a trusted
	// webhook caller searching all open orders.
	MerchantID string

	// OrderHint and InvoiceHint name the order up front, by stored id or digest
	OrderHint   string
	InvoiceHint string

	// Source labels metrics and logs
	Source string
}

func (r Request) hinted() bool {
	return r.OrderHint != "" || r.InvoiceHint != ""
}

// Result is the outcome of a confirmation that did not fail.
type Result struct {
	Updated bool               `json:"updated"`
	Status  domain.OrderStatus `json:"status"`
	TxID    string             `json:"txid,omitempty"`
	OrderID string             `json:"order_id"`
	Details map[string]any     `json:"details,omitempty"`
}

// Engine confirms payments. It is safe for concurrent use; the store's
// conditional update is the only coordination between requests.
type Engine struct {
	ledger  chain.Ledger
	decoder *eventlog.Decoder
	orders  storage.OrderRepository
	cfg     Config
	log     *slog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(ledger chain.Ledger, decoder *eventlog.Decoder, orders storage.OrderRepository, cfg Config) *Engine {
	if cfg.EventName == "" {
		cfg.EventName = "PaymentDetected"
	}
	return &Engine{
		ledger:  ledger,
		decoder: decoder,
		orders:  orders,
		cfg:     cfg,
		log:     slog.Default().With("component", "reconcile", "network", ledger.Network()),
	}
}

// Confirm settles the order paid by req.TxID.
//
// With a hint the order is resolved from the store first and idempotency is
// decided before any ledger call. Without one the receipt is decoded first and
// the order is resolved from the event's identifiers.
func (e *Engine) Confirm(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	if req.Source == "" {
		req.Source = SourceCLI
	}

	var (
		res *Result
		err error
	)
	req.TxID = e.ledger.NormalizeTxID(req.TxID)
	if req.TxID == "" {
		err = domain.NewError(domain.KindInvalidInput, "txid required", nil)
	} else if req.hinted() {
		res, err = e.confirmHinted(ctx, req)
	} else {
		res, err = e.confirmByEvent(ctx, req)
	}

	e.observe(req, res, err, time.Since(start))
	return res, err
}

func (e *Engine) confirmHinted(ctx context.Context, req Request) (*Result, error) {
	q := storage.CandidateQuery{MerchantID: req.MerchantID, Limit: 2}
	if req.MerchantID == "" {
		q.Statuses = domain.OpenStatuses
	}
	var err error
	if req.OrderHint != "" {
		if q.OrderKey, err = digest.FromStoredID(strings.TrimSpace(req.OrderHint)); err != nil {
			return nil, err
		}
	}
	if req.InvoiceHint != "" {
		if q.InvoiceKey, err = digest.FromStoredID(strings.TrimSpace(req.InvoiceHint)); err != nil {
			return nil, err
		}
	}

	order, err := e.selectCandidate(ctx, q)
	if err != nil {
		return nil, err
	}
	if res, err := e.checkBinding(order, req.TxID); res != nil || err != nil {
		return res, err
	}

	receipt, err := e.fetchReceipt(ctx, req.TxID)
	if err != nil {
		return nil, err
	}
	event, err := e.decoder.Decode(receipt.Logs)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return e.commitWithoutEvent(ctx, order, receipt, req.TxID)
	}
	if err := e.checkEventName(event); err != nil {
		return nil, err
	}
	return e.validateAndCommit(ctx, order, event, receipt, req.TxID)
}

func (e *Engine) confirmByEvent(ctx context.Context, req Request) (*Result, error) {
	// A bound txid answers idempotent replays without touching the ledger.
	bound, err := e.orders.GetByTxID(ctx, req.TxID)
	switch {
	case err == nil:
		if req.MerchantID != "" && bound.MerchantID != req.MerchantID {
			return nil, domain.NewError(domain.KindOrderNotFound, "no order of this merchant is bound to txid",
				map[string]any{"txid": req.TxID})
		}
		return noop(bound), nil
	case !errors.Is(err, storage.ErrOrderNotFound):
		return nil, fmt.Errorf("lookup by txid: %w", err)
	}

	receipt, err := e.fetchReceipt(ctx, req.TxID)
	if err != nil {
		return nil, err
	}
	event, err := e.decoder.Decode(receipt.Logs)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, domain.NewError(domain.KindUnexpectedEvent, "no payment event in transaction",
			map[string]any{"txid": req.TxID, "result": receipt.Result, "logs": len(receipt.Logs)})
	}
	if err := e.checkEventName(event); err != nil {
		return nil, err
	}

	orderKey := event.Digest(ArgOrderID)
	invoiceKey := event.Digest(ArgInvoiceID)
	if orderKey.Absent() && invoiceKey.Absent() {
		return nil, domain.NewError(domain.KindUnexpectedEvent, "event carries neither orderId nor invoiceId",
			map[string]any{"event": event.Name})
	}

	q := storage.CandidateQuery{
		MerchantID:  req.MerchantID,
		MerchantKey: event.Digest(ArgMerchantID),
		OrderKey:    orderKey,
		InvoiceKey:  invoiceKey,
		Limit:       2,
	}
	if req.MerchantID == "" {
		q.Statuses = domain.OpenStatuses
	}
	order, err := e.selectCandidate(ctx, q)
	if err != nil {
		return nil, err
	}
	if res, err := e.checkBinding(order, req.TxID); res != nil || err != nil {
		return res, err
	}
	return e.validateAndCommit(ctx, order, event, receipt, req.TxID)
}

// selectCandidate requires exactly one order to match.
func (e *Engine) selectCandidate(ctx context.Context, q storage.CandidateQuery) (*domain.Order, error) {
	candidates, err := e.orders.FindCandidateOrders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find candidate orders: %w", err)
	}

	switch len(candidates) {
	case 0:
		return nil, domain.NewError(domain.KindOrderNotFound, "no order matches", queryDetails(q))
	case 1:
		return candidates[0], nil
	default:
		return nil, domain.NewError(domain.KindAmbiguousOrder, "more than one order matches", queryDetails(q))
	}
}

// checkBinding returns a no-op result for a replay of the bound txid and a
// Conflict for any other txid. Unbound open orders yield (nil, nil).
func (e *Engine) checkBinding(order *domain.Order, txID string) (*Result, error) {
	if order.Bound() {
		if order.TxID == txID {
			return noop(order), nil
		}
		return nil, domain.NewError(domain.KindConflict, "order already bound to another transaction",
			map[string]any{"order_id": order.OrderID, "bound": order.TxID, "got": txID})
	}
	if !order.Status.Open() {
		return nil, domain.NewError(domain.KindConflict, "order is already settled",
			map[string]any{"order_id": order.OrderID, "status": order.Status})
	}
	return nil, nil
}

func (e *Engine) fetchReceipt(ctx context.Context, txID string) (*domain.Receipt, error) {
	receipt, err := e.ledger.GetTransactionReceipt(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil {
		return nil, domain.NewError(domain.KindNotYetConfirmed, "transaction not found yet",
			map[string]any{"txid": txID})
	}
	return receipt, nil
}

func (e *Engine) checkEventName(event *domain.DecodedEvent) error {
	if event.Name != e.cfg.EventName {
		return domain.NewError(domain.KindUnexpectedEvent, "unexpected event",
			map[string]any{"expected": e.cfg.EventName, "got": event.Name})
	}
	return nil
}

// commitWithoutEvent handles a receipt that carries no payment event. A
// successful execution parks the order IN_PROGRESS unbound; a failed one
// settles it FAILED.
func (e *Engine) commitWithoutEvent(ctx context.Context, order *domain.Order, receipt *domain.Receipt, txID string) (*Result, error) {
	details := map[string]any{"reason": "no payment event", "result": receipt.Result, "block": receipt.BlockNumber}

	if !receipt.Succeeded() {
		// Binding the failed txid makes a replay a no-op and keeps the same
		// reverted transaction from settling a second order.
		return e.commit(ctx, order, domain.OrderStatusFailed, txID, details)
	}
	if order.Status == domain.OrderStatusInProgress {
		return &Result{Status: order.Status, OrderID: order.OrderID, Details: details}, nil
	}
	return e.commit(ctx, order, domain.OrderStatusInProgress, "", details)
}

// validateAndCommit runs the identifier, token and amount checks and binds txID.
func (e *Engine) validateAndCommit(ctx context.Context, order *domain.Order, event *domain.DecodedEvent, receipt *domain.Receipt, txID string) (*Result, error) {
	if err := checkIdentifiers(order, event); err != nil {
		return nil, err
	}
	token, err := e.checkToken(order, event)
	if err != nil {
		return nil, err
	}
	details, err := e.checkAmount(ctx, order, event, token)
	if err != nil {
		return nil, err
	}

	status := domain.OrderStatusFailed
	if receipt.Succeeded() {
		status = domain.OrderStatusSuccess
	}
	details["event"] = event.Name
	details["block"] = receipt.BlockNumber
	return e.commit(ctx, order, status, txID, details)
}

func checkIdentifiers(order *domain.Order, event *domain.DecodedEvent) error {
	fields := []struct {
		arg    string
		stored string
	}{
		{ArgMerchantID, order.MerchantID},
		{ArgOrderID, order.OrderID},
		{ArgInvoiceID, order.InvoiceID},
	}

	for _, f := range fields {
		got := event.Digest(f.arg)
		if got.Absent() {
			continue
		}
		want, err := digest.FromStoredID(f.stored)
		if err != nil {
			return err
		}
		if digest.Normalize(got.String()) != want {
			return domain.NewError(domain.KindIdentifierMismatch, f.arg+" mismatch",
				map[string]any{"field": f.arg, "expected": want, "got": got})
		}
	}
	return nil
}

// checkToken returns the token whose decimals scale the order amount.
func (e *Engine) checkToken(order *domain.Order, event *domain.DecodedEvent) (string, error) {
	if e.cfg.TokenSymbol != "" && order.Token != "" && !strings.EqualFold(order.Token, e.cfg.TokenSymbol) {
		return "", domain.NewError(domain.KindWrongToken, "order is not denominated in the settlement token",
			map[string]any{"expected": e.cfg.TokenSymbol, "got": order.Token})
	}

	paid := event.Address(ArgPaymentToken)
	if e.cfg.TokenAddress == "" {
		if paid == "" {
			return "", domain.NewError(domain.KindUnexpectedEvent, "event carries no payment token", nil)
		}
		return paid, nil
	}
	if paid != "" && paid != e.cfg.TokenAddress {
		return "", domain.NewError(domain.KindWrongToken, "paid with a different token",
			map[string]any{"expected": e.cfg.TokenAddress, "got": paid})
	}
	return e.cfg.TokenAddress, nil
}

func (e *Engine) checkAmount(ctx context.Context, order *domain.Order, event *domain.DecodedEvent, token string) (map[string]any, error) {
	got, ok := event.Uint(ArgAmount)
	if !ok {
		return nil, domain.NewError(domain.KindUnexpectedEvent, "event carries no amount",
			map[string]any{"event": event.Name})
	}

	decimals, err := e.ledger.ReadTokenDecimals(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("read token decimals: %w", err)
	}
	expected, err := amount.ToRawUnits(order.Amount, decimals)
	if err != nil {
		return nil, err
	}

	details := map[string]any{
		"expectedRaw": expected,
		"gotRaw":      got.String(),
		"decimals":    decimals,
		"orderAmount": order.Amount,
	}
	if got.String() != expected {
		return nil, domain.NewError(domain.KindAmountMismatch, "paid amount differs from order amount", details)
	}
	return details, nil
}

// commit is the only write. A lost compare-and-set is re-read: if a concurrent
// request already bound the same txid the outcome is a replay, otherwise Conflict.
func (e *Engine) commit(ctx context.Context, order *domain.Order, status domain.OrderStatus, txID string, details map[string]any) (*Result, error) {
	updated, err := e.orders.UpdateOrderStatus(ctx, storage.StatusUpdate{
		OrderID:      order.OrderID,
		ExpectedTxID: order.TxID,
		Status:       status,
		TxID:         txID,
	})
	if errors.Is(err, storage.ErrConflict) {
		metrics.StoreConflictsTotal.Inc()
		if txID != "" {
			if current, getErr := e.orders.GetByOrderID(ctx, order.OrderID); getErr == nil && current.TxID == txID {
				return noop(current), nil
			}
		}
		return nil, domain.NewError(domain.KindConflict, "order binding changed concurrently",
			map[string]any{"order_id": order.OrderID, "txid": txID})
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return &Result{
		Updated: true,
		Status:  updated.Status,
		TxID:    updated.TxID,
		OrderID: updated.OrderID,
		Details: details,
	}, nil
}

func (e *Engine) observe(req Request, res *Result, err error, elapsed time.Duration) {
	metrics.ConfirmationDuration.WithLabelValues(req.Source).Observe(elapsed.Seconds())

	if err != nil {
		kind := domain.KindOf(err)
		outcome := string(kind)
		if kind == "" {
			outcome = "error"
		}
		metrics.ConfirmationsTotal.WithLabelValues(req.Source, outcome).Inc()
		e.log.Warn("confirmation failed", "source", req.Source, "txid", req.TxID, "kind", outcome, "error", err)
		return
	}

	outcome := string(res.Status)
	if !res.Updated {
		outcome = "noop"
	}
	metrics.ConfirmationsTotal.WithLabelValues(req.Source, outcome).Inc()
	e.log.Info("confirmation settled",
		"source", req.Source,
		"txid", req.TxID,
		"order_id", res.OrderID,
		"status", res.Status,
		"updated", res.Updated,
	)
}

func noop(order *domain.Order) *Result {
	return &Result{Status: order.Status, TxID: order.TxID, OrderID: order.OrderID}
}

func queryDetails(q storage.CandidateQuery) map[string]any {
	details := map[string]any{}
	if q.MerchantID != "" {
		details["merchant_id"] = q.MerchantID
	}
	if !q.MerchantKey.Absent() {
		details["merchantId"] = q.MerchantKey
	}
	if !q.OrderKey.Absent() {
		details["orderId"] = q.OrderKey
	}
	if !q.InvoiceKey.Absent() {
		details["invoiceId"] = q.InvoiceKey
	}
	return details
}
