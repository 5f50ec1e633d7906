package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/infra/storage/memory"
	"github.com/vietddude/paywatch/internal/payment/digest"
	"github.com/vietddude/paywatch/internal/payment/eventlog"
	"github.com/vietddude/paywatch/internal/testutil"
)

const (
	txOne = "aa00000000000000000000000000000000000000000000000000000000000001"
	txTwo = "aa00000000000000000000000000000000000000000000000000000000000002"
)

var (
	merchantKey = digest.MustFromString("acme-store")
	orderKey    = digest.MustFromString("order-seed-1")
	invoiceKey  = digest.MustFromString("invoice-seed-1")
)

type fakeLedger struct {
	receipts     map[string]*domain.Receipt
	decimals     int32
	receiptCalls atomic.Int32
}

func (l *fakeLedger) GetTransactionReceipt(ctx context.Context, txID string) (*domain.Receipt, error) {
	l.receiptCalls.Add(1)
	return l.receipts[txID], nil
}

func (l *fakeLedger) ReadTokenDecimals(ctx context.Context, token string) (int32, error) {
	return l.decimals, nil
}

func (l *fakeLedger) GetLatestBlock(ctx context.Context) (uint64, error) { return 1, nil }
func (l *fakeLedger) Network() string                                    { return "tron" }
func (l *fakeLedger) NormalizeTxID(txID string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(txID)), "0x")
}

type harness struct {
	engine *Engine
	ledger *fakeLedger
	store  *memory.MemoryStorage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	decoder, err := eventlog.NewDecoder([]byte(testutil.PaymentABI), eventlog.Options{
		Contract: testutil.PaymentContract.Hex(),
	})
	require.NoError(t, err)

	h := &harness{
		ledger: &fakeLedger{receipts: map[string]*domain.Receipt{}, decimals: 6},
		store:  memory.NewMemoryStorage(),
	}
	h.engine = NewEngine(h.ledger, decoder, h.store.Orders(), Config{
		TokenAddress: testutil.TokenContract.Hex(),
		TokenSymbol:  "USDT",
	})

	require.NoError(t, h.store.Orders().Create(context.Background(), &domain.Order{
		MerchantID: merchantKey.String(),
		OrderID:    orderKey.String(),
		InvoiceID:  invoiceKey.String(),
		Amount:     "10.00",
		Token:      "USDT",
	}))
	return h
}

func (h *harness) receipt(txID, result string, logs ...domain.Log) {
	h.ledger.receipts[txID] = &domain.Receipt{TxID: txID, Result: result, BlockNumber: 42, Logs: logs}
}

func (h *harness) paid(txID, raw string) {
	h.receipt(txID, "SUCCESS", testutil.PaymentDetected(merchantKey, orderKey, invoiceKey, testutil.TokenContract, testutil.Raw(raw)))
}

func (h *harness) order(t *testing.T) *domain.Order {
	t.Helper()
	o, err := h.store.Orders().GetByOrderID(context.Background(), orderKey.String())
	require.NoError(t, err)
	return o
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) *domain.Error {
	t.Helper()
	require.Error(t, err)
	var de *domain.Error
	require.True(t, errors.As(err, &de), "expected domain error, got %v", err)
	require.Equal(t, kind, de.Kind, "error: %v", err)
	return de
}

func (h *harness) requireUntouched(t *testing.T) {
	t.Helper()
	o := h.order(t)
	require.Equal(t, domain.OrderStatusPending, o.Status)
	require.Empty(t, o.TxID)
}

func TestConfirm_ExactAmountSettles(t *testing.T) {
	h := newHarness(t)
	h.paid(txOne, "10000000")

	res, err := h.engine.Confirm(context.Background(), Request{TxID: txOne, Source: SourceWebhook})
	require.NoError(t, err)
	require.True(t, res.Updated)
	require.Equal(t, domain.OrderStatusSuccess, res.Status)
	require.Equal(t, txOne, res.TxID)
	require.Equal(t, orderKey.String(), res.OrderID)
	require.Equal(t, "10000000", res.Details["expectedRaw"])

	o := h.order(t)
	require.Equal(t, domain.OrderStatusSuccess, o.Status)
	require.Equal(t, txOne, o.TxID)
}

func TestConfirm_ReplayIsNoop(t *testing.T) {
	h := newHarness(t)
	h.paid(txOne, "10000000")
	ctx := context.Background()

	_, err := h.engine.Confirm(ctx, Request{TxID: txOne})
	require.NoError(t, err)

	// Prefixed, upper-case spelling of the same txid.
	res, err := h.engine.Confirm(ctx, Request{TxID: "0x" + strings.ToUpper(txOne)})
	require.NoError(t, err)
	require.False(t, res.Updated)
	require.Equal(t, domain.OrderStatusSuccess, res.Status)
	require.Equal(t, txOne, res.TxID)
	require.Equal(t, int32(1), h.ledger.receiptCalls.Load(), "replay must not refetch the receipt")

	res, err = h.engine.Confirm(ctx, Request{TxID: txOne, OrderHint: orderKey.String(), MerchantID: merchantKey.String()})
	require.NoError(t, err)
	require.False(t, res.Updated)
	require.Equal(t, domain.OrderStatusSuccess, h.order(t).Status)
}

func TestConfirm_DifferentTxIDConflicts(t *testing.T) {
	h := newHarness(t)
	h.paid(txOne, "10000000")
	h.paid(txTwo, "10000000")
	ctx := context.Background()

	_, err := h.engine.Confirm(ctx, Request{TxID: txOne})
	require.NoError(t, err)

	_, err = h.engine.Confirm(ctx, Request{TxID: txTwo, OrderHint: orderKey.String(), MerchantID: merchantKey.String()})
	de := requireKind(t, err, domain.KindConflict)
	require.Equal(t, txOne, de.Details["bound"])

	_, err = h.engine.Confirm(ctx, Request{TxID: txTwo, MerchantID: merchantKey.String()})
	requireKind(t, err, domain.KindConflict)

	o := h.order(t)
	require.Equal(t, txOne, o.TxID)
	require.Equal(t, domain.OrderStatusSuccess, o.Status)
}

func TestConfirm_AmountMustMatchExactly(t *testing.T) {
	for _, raw := range []string{"9999999", "10000001"} {
		t.Run(raw, func(t *testing.T) {
			h := newHarness(t)
			h.paid(txOne, raw)

			_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
			de := requireKind(t, err, domain.KindAmountMismatch)
			require.Equal(t, "10000000", de.Details["expectedRaw"])
			require.Equal(t, raw, de.Details["gotRaw"])
			require.Equal(t, int32(6), de.Details["decimals"])
			require.Equal(t, "10.00", de.Details["orderAmount"])
			h.requireUntouched(t)
		})
	}
}

func TestConfirm_NoEventParksInProgress(t *testing.T) {
	h := newHarness(t)
	h.receipt(txOne, "SUCCESS")
	ctx := context.Background()
	req := Request{TxID: txOne, OrderHint: orderKey.String(), MerchantID: merchantKey.String()}

	res, err := h.engine.Confirm(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Updated)
	require.Equal(t, domain.OrderStatusInProgress, res.Status)

	o := h.order(t)
	require.Equal(t, domain.OrderStatusInProgress, o.Status)
	require.Empty(t, o.TxID)

	res, err = h.engine.Confirm(ctx, req)
	require.NoError(t, err)
	require.False(t, res.Updated)

	// The event shows up later under the same txid and settles the order.
	h.paid(txOne, "10000000")
	res, err = h.engine.Confirm(ctx, req)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusSuccess, res.Status)
}

func TestConfirm_NoEventFailedReceipt(t *testing.T) {
	h := newHarness(t)
	h.receipt(txOne, "REVERT")

	res, err := h.engine.Confirm(context.Background(), Request{TxID: txOne, InvoiceHint: invoiceKey.String()})
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusFailed, res.Status)
	require.Equal(t, txOne, h.order(t).TxID)
}

func TestConfirm_NoEventWithoutHint(t *testing.T) {
	h := newHarness(t)
	h.receipt(txOne, "SUCCESS")

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
	requireKind(t, err, domain.KindUnexpectedEvent)
	h.requireUntouched(t)
}

func TestConfirm_ReceiptNotFound(t *testing.T) {
	h := newHarness(t)

	for _, req := range []Request{
		{TxID: txOne},
		{TxID: txOne, OrderHint: orderKey.String()},
	} {
		_, err := h.engine.Confirm(context.Background(), req)
		de := requireKind(t, err, domain.KindNotYetConfirmed)
		require.True(t, de.Kind.Retryable())
	}
	h.requireUntouched(t)
}

func TestConfirm_MerchantMismatch(t *testing.T) {
	h := newHarness(t)
	intruder := digest.MustFromString("intruder")
	h.receipt(txOne, "SUCCESS",
		testutil.PaymentDetected(intruder, orderKey, invoiceKey, testutil.TokenContract, testutil.Raw("10000000")))

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne, OrderHint: orderKey.String()})
	de := requireKind(t, err, domain.KindIdentifierMismatch)
	require.Equal(t, ArgMerchantID, de.Details["field"])
	require.Equal(t, merchantKey, de.Details["expected"])
	require.Equal(t, intruder, de.Details["got"])
	h.requireUntouched(t)

	// Without a hint the event's merchant constrains the search instead.
	_, err = h.engine.Confirm(context.Background(), Request{TxID: txOne})
	requireKind(t, err, domain.KindOrderNotFound)
}

func TestConfirm_WrongToken(t *testing.T) {
	h := newHarness(t)
	h.receipt(txOne, "SUCCESS",
		testutil.PaymentDetected(merchantKey, orderKey, invoiceKey, testutil.OtherToken, testutil.Raw("10000000")))

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
	de := requireKind(t, err, domain.KindWrongToken)
	require.Equal(t, testutil.OtherToken.Hex(), de.Details["got"])
	h.requireUntouched(t)
}

func TestConfirm_UnexpectedEvent(t *testing.T) {
	h := newHarness(t)
	h.receipt(txOne, "SUCCESS", testutil.PaymentRefunded(orderKey, testutil.Raw("10000000")))

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne, OrderHint: orderKey.String()})
	de := requireKind(t, err, domain.KindUnexpectedEvent)
	require.Equal(t, "PaymentRefunded", de.Details["got"])
	h.requireUntouched(t)
}

func TestConfirm_FailedReceiptWithEvent(t *testing.T) {
	h := newHarness(t)
	h.receipt(txOne, "OUT_OF_ENERGY",
		testutil.PaymentDetected(merchantKey, orderKey, invoiceKey, testutil.TokenContract, testutil.Raw("10000000")))

	res, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
	require.NoError(t, err)
	require.True(t, res.Updated)
	require.Equal(t, domain.OrderStatusFailed, res.Status)
	require.Equal(t, txOne, h.order(t).TxID)
}

func TestConfirm_MalformedLog(t *testing.T) {
	h := newHarness(t)
	log := testutil.PaymentDetected(merchantKey, orderKey, invoiceKey, testutil.TokenContract, testutil.Raw("10000000"))
	log.Data = log.Data[:10]
	h.receipt(txOne, "SUCCESS", log)

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
	requireKind(t, err, domain.KindMalformedLog)
	h.requireUntouched(t)
}

func TestConfirm_UnknownOrder(t *testing.T) {
	h := newHarness(t)
	other := digest.MustFromString("order-seed-2")
	h.receipt(txOne, "SUCCESS",
		testutil.PaymentDetected(merchantKey, other, invoiceKey, testutil.TokenContract, testutil.Raw("10000000")))

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
	requireKind(t, err, domain.KindOrderNotFound)
}

func TestConfirm_AmbiguousHint(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Orders().Create(context.Background(), &domain.Order{
		MerchantID: merchantKey.String(),
		OrderID:    digest.MustFromString("order-seed-2").String(),
		InvoiceID:  invoiceKey.String(),
		Amount:     "10.00",
		Token:      "USDT",
	}))
	h.paid(txOne, "10000000")

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne, InvoiceHint: invoiceKey.String()})
	requireKind(t, err, domain.KindAmbiguousOrder)
	require.Equal(t, int32(0), h.ledger.receiptCalls.Load())
}

func TestConfirm_MerchantScope(t *testing.T) {
	h := newHarness(t)
	h.paid(txOne, "10000000")
	ctx := context.Background()

	_, err := h.engine.Confirm(ctx, Request{TxID: txOne, MerchantID: "someone-else"})
	requireKind(t, err, domain.KindOrderNotFound)

	_, err = h.engine.Confirm(ctx, Request{TxID: txOne, MerchantID: merchantKey.String()})
	require.NoError(t, err)

	// A bound txid is not revealed to other merchants.
	_, err = h.engine.Confirm(ctx, Request{TxID: txOne, MerchantID: "someone-else"})
	requireKind(t, err, domain.KindOrderNotFound)
}

func TestConfirm_InvalidInput(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.Confirm(context.Background(), Request{TxID: "  "})
	requireKind(t, err, domain.KindInvalidInput)
}

func TestConfirm_ExcessPrecisionRejected(t *testing.T) {
	h := newHarness(t)
	h.ledger.decimals = 1
	h.paid(txOne, "100")

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
	require.NoError(t, err, "10.00 has only zero digits past one decimal")

	h2 := newHarness(t)
	require.NoError(t, h2.store.Orders().Create(context.Background(), &domain.Order{
		MerchantID: merchantKey.String(),
		OrderID:    digest.MustFromString("order-seed-3").String(),
		InvoiceID:  digest.MustFromString("invoice-seed-3").String(),
		Amount:     "10.0000001",
		Token:      "USDT",
	}))
	h2.receipt(txTwo, "SUCCESS", testutil.PaymentDetected(merchantKey,
		digest.MustFromString("order-seed-3"), digest.MustFromString("invoice-seed-3"),
		testutil.TokenContract, testutil.Raw("10000000")))

	_, err = h2.engine.Confirm(context.Background(), Request{TxID: txTwo})
	requireKind(t, err, domain.KindInvalidAmount)
}

// racingRepo binds the order to raceTxID just before the engine's own update lands.
type racingRepo struct {
	storage.OrderRepository
	raceTxID string
}

func (r *racingRepo) UpdateOrderStatus(ctx context.Context, u storage.StatusUpdate) (*domain.Order, error) {
	_, err := r.OrderRepository.UpdateOrderStatus(ctx, storage.StatusUpdate{
		OrderID: u.OrderID, ExpectedTxID: u.ExpectedTxID, Status: domain.OrderStatusSuccess, TxID: r.raceTxID,
	})
	if err != nil {
		return nil, err
	}
	return r.OrderRepository.UpdateOrderStatus(ctx, u)
}

func TestConfirm_LostRaceIsConflict(t *testing.T) {
	h := newHarness(t)
	h.paid(txOne, "10000000")
	h.engine.orders = &racingRepo{OrderRepository: h.store.Orders(), raceTxID: txTwo}

	_, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
	requireKind(t, err, domain.KindConflict)
	require.Equal(t, txTwo, h.order(t).TxID)
}

func TestConfirm_LostRaceToSameTxIDIsReplay(t *testing.T) {
	h := newHarness(t)
	h.paid(txOne, "10000000")
	h.engine.orders = &racingRepo{OrderRepository: h.store.Orders(), raceTxID: txOne}

	res, err := h.engine.Confirm(context.Background(), Request{TxID: txOne})
	require.NoError(t, err)
	require.False(t, res.Updated)
	require.Equal(t, domain.OrderStatusSuccess, res.Status)
}
