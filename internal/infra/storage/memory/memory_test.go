package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/payment/digest"
)

const (
	merchantID = "0x1111111111111111111111111111111111111111111111111111111111111111"
	orderA     = "0x2222222222222222222222222222222222222222222222222222222222222222"
	invoiceA   = "0x3333333333333333333333333333333333333333333333333333333333333333"
	orderB     = "0x4444444444444444444444444444444444444444444444444444444444444444"
	invoiceB   = "0x5555555555555555555555555555555555555555555555555555555555555555"
	txOne      = "aa00000000000000000000000000000000000000000000000000000000000001"
	txTwo      = "aa00000000000000000000000000000000000000000000000000000000000002"
)

func newOrder(orderID, invoiceID, amount string) *domain.Order {
	return &domain.Order{
		MerchantID: merchantID,
		OrderID:    orderID,
		InvoiceID:  invoiceID,
		Amount:     amount,
		Token:      "USDT",
	}
}

func seed(t *testing.T) *MemoryStorage {
	t.Helper()
	s := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, s.Orders().Create(ctx, newOrder(orderA, invoiceA, "10.00")))
	require.NoError(t, s.Orders().Create(ctx, newOrder(orderB, invoiceB, "2.5")))
	return s
}

func TestCreateDefaultsAndDuplicates(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	got, err := s.Orders().GetByOrderID(ctx, orderA)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, got.Status)
	require.Equal(t, int64(1), got.ID)
	require.False(t, got.CreatedAt.IsZero())

	err = s.Orders().Create(ctx, newOrder(orderA, invoiceB, "1"))
	require.ErrorIs(t, err, storage.ErrDuplicate)

	_, err = s.Orders().GetByOrderID(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrOrderNotFound)
}

func TestFindCandidateOrdersByKeys(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	orderKey, err := digest.FromStoredID(orderB)
	require.NoError(t, err)

	got, err := s.Orders().FindCandidateOrders(ctx, storage.CandidateQuery{
		Statuses: domain.OpenStatuses,
		OrderKey: orderKey,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, orderB, got[0].OrderID)

	// No key constraints: all open orders in creation order.
	got, err = s.Orders().FindCandidateOrders(ctx, storage.CandidateQuery{MerchantID: merchantID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, orderA, got[0].OrderID)

	got, err = s.Orders().FindCandidateOrders(ctx, storage.CandidateQuery{MerchantID: "other"})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestUpdateOrderStatusCompareAndSet(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	repo := s.Orders()

	updated, err := repo.UpdateOrderStatus(ctx, storage.StatusUpdate{
		OrderID: orderA, Status: domain.OrderStatusSuccess, TxID: txOne,
	})
	require.NoError(t, err)
	require.Equal(t, txOne, updated.TxID)

	bound, err := repo.GetByTxID(ctx, txOne)
	require.NoError(t, err)
	require.Equal(t, orderA, bound.OrderID)

	// Stale expectation: the order is no longer unbound.
	_, err = repo.UpdateOrderStatus(ctx, storage.StatusUpdate{
		OrderID: orderA, Status: domain.OrderStatusFailed, TxID: txTwo,
	})
	require.ErrorIs(t, err, storage.ErrConflict)

	// txid already bound to another order.
	_, err = repo.UpdateOrderStatus(ctx, storage.StatusUpdate{
		OrderID: orderB, Status: domain.OrderStatusSuccess, TxID: txOne,
	})
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := repo.GetByOrderID(ctx, orderB)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, got.Status)
	require.Empty(t, got.TxID)

	_, err = repo.UpdateOrderStatus(ctx, storage.StatusUpdate{OrderID: "missing", Status: domain.OrderStatusFailed})
	require.ErrorIs(t, err, storage.ErrOrderNotFound)
}

func TestConcurrentBindingSameTxID(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for _, id := range []string{orderA, orderB} {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, err := s.Orders().UpdateOrderStatus(ctx, storage.StatusUpdate{
				OrderID: orderID, Status: domain.OrderStatusSuccess, TxID: txOne,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, storage.ErrConflict):
				conflicts++
			}
		}(id)
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, 1, conflicts)
}

func TestSummaryAndList(t *testing.T) {
	s := seed(t)
	ctx := context.Background()
	repo := s.Orders()

	require.NoError(t, repo.Create(ctx, newOrder(
		"0x6666666666666666666666666666666666666666666666666666666666666666",
		"0x7777777777777777777777777777777777777777777777777777777777777777",
		"0.1",
	)))
	_, err := repo.UpdateOrderStatus(ctx, storage.StatusUpdate{OrderID: orderA, Status: domain.OrderStatusSuccess, TxID: txOne})
	require.NoError(t, err)
	_, err = repo.UpdateOrderStatus(ctx, storage.StatusUpdate{OrderID: orderB, Status: domain.OrderStatusSuccess, TxID: txTwo})
	require.NoError(t, err)

	sum, err := repo.Summary(ctx, merchantID)
	require.NoError(t, err)
	require.Equal(t, 3, sum.Total)
	require.Equal(t, 2, sum.Success)
	require.Equal(t, 1, sum.Pending)
	require.Equal(t, "12.5", sum.Sales)
	require.Equal(t, "USDT", sum.Currency)

	list, err := repo.List(ctx, merchantID, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "0.1", list[0].Amount)
}

func TestMerchants(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	m := &domain.Merchant{MerchantID: merchantID, Name: "acme", Active: true}
	require.NoError(t, s.Merchants().Create(ctx, m))
	require.ErrorIs(t, s.Merchants().Create(ctx, m), storage.ErrDuplicate)

	got, err := s.Merchants().Get(ctx, merchantID)
	require.NoError(t, err)
	require.Equal(t, "acme", got.Name)

	_, err = s.Merchants().Get(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrMerchantNotFound)
}

func TestMerchantSetActive(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, s.Merchants().Create(ctx, &domain.Merchant{MerchantID: merchantID, Name: "acme", Active: true}))

	got, err := s.Merchants().SetActive(ctx, merchantID, false)
	require.NoError(t, err)
	require.False(t, got.Active)

	stored, err := s.Merchants().Get(ctx, merchantID)
	require.NoError(t, err)
	require.False(t, stored.Active)

	_, err = s.Merchants().SetActive(ctx, "nope", true)
	require.ErrorIs(t, err, storage.ErrMerchantNotFound)
}

func TestFindCandidateOrdersFullTripleUsesIndex(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	keys, err := storage.KeysFor(newOrder(orderB, invoiceB, "2.5"))
	require.NoError(t, err)
	q := storage.CandidateQuery{MerchantKey: keys.Merchant, OrderKey: keys.Order, InvoiceKey: keys.Invoice}

	s.mu.RLock()
	narrowed := s.candidates(q)
	s.mu.RUnlock()
	require.Len(t, narrowed, 1)

	got, err := s.Orders().FindCandidateOrders(ctx, q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, orderB, got[0].OrderID)

	// Other filters still apply to the indexed hit.
	q.Statuses = []domain.OrderStatus{domain.OrderStatusSuccess}
	got, err = s.Orders().FindCandidateOrders(ctx, q)
	require.NoError(t, err)
	require.Empty(t, got)

	// A triple with no stored order yields nothing.
	q = storage.CandidateQuery{MerchantKey: keys.Merchant, OrderKey: keys.Order, InvoiceKey: keys.Merchant}
	got, err = s.Orders().FindCandidateOrders(ctx, q)
	require.NoError(t, err)
	require.Empty(t, got)
}
