package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/infra/storage/memory"
	"github.com/vietddude/paywatch/internal/payment/digest"
)

func TestAddMerchantAndCreateOrder(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewMemoryStorage(), "USDT")

	m, err := svc.AddMerchant(ctx, "acme", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	require.NoError(t, err)
	require.Equal(t, digest.MustFromString("acme").String(), m.MerchantID)

	_, err = svc.AddMerchant(ctx, "acme", "")
	require.Equal(t, domain.KindConflict, domain.KindOf(err))

	order, err := svc.Create(ctx, "acme", "10.00")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Equal(t, m.MerchantID, order.MerchantID)
	require.Equal(t, m.Address, order.MerchantAddress)
	require.True(t, digest.IsDigest(order.OrderID))
	require.True(t, digest.IsDigest(order.InvoiceID))
	require.NotEqual(t, order.OrderID, order.InvoiceID)
	require.Equal(t, "USDT", order.Token)

	byID, err := svc.Create(ctx, m.MerchantID, "1")
	require.NoError(t, err)
	require.Equal(t, m.MerchantID, byID.MerchantID)

	got, err := svc.Get(ctx, order.OrderID)
	require.NoError(t, err)
	require.Equal(t, "10.00", got.Amount)
}

func TestCreateRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewMemoryStorage(), "USDT")
	_, err := svc.AddMerchant(ctx, "acme", "")
	require.NoError(t, err)

	for _, amt := range []string{"", "0", "0.00", "-1", "1e3", "abc"} {
		_, err := svc.Create(ctx, "acme", amt)
		require.Equal(t, domain.KindInvalidAmount, domain.KindOf(err), "amount %q", amt)
	}

	_, err = svc.Create(ctx, "nobody", "1")
	require.Equal(t, domain.KindOrderNotFound, domain.KindOf(err))

	_, err = svc.Get(ctx, "missing")
	require.Equal(t, domain.KindOrderNotFound, domain.KindOf(err))
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	svc := NewService(store, "USDT")
	_, err := svc.AddMerchant(ctx, "acme", "")
	require.NoError(t, err)

	a, err := svc.Create(ctx, "acme", "10.25")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "acme", "3")
	require.NoError(t, err)

	_, err = store.Orders().UpdateOrderStatus(ctx, storage.StatusUpdate{
		OrderID: a.OrderID, Status: domain.OrderStatusSuccess, TxID: "ab",
	})
	require.NoError(t, err)

	dash, err := svc.Dashboard(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, 2, dash.KPI.Total)
	require.Equal(t, 1, dash.KPI.Success)
	require.Equal(t, 1, dash.KPI.Pending)
	require.Equal(t, "10.25", dash.KPI.Sales)
	require.Len(t, dash.RecentOrders, 2)
}
