package orders

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage/memory"
	"github.com/vietddude/paywatch/internal/payment/digest"
	"github.com/vietddude/paywatch/internal/payment/eventlog"
	"github.com/vietddude/paywatch/internal/testutil"
)

var onboardTx = strings.Repeat("cd", 32)

type receiptStub map[string]*domain.Receipt

func (r receiptStub) GetTransactionReceipt(ctx context.Context, txID string) (*domain.Receipt, error) {
	return r[txID], nil
}

func (r receiptStub) NormalizeTxID(txID string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(txID)), "0x")
}

func newRegistryService(t *testing.T, receipts receiptStub) (*Service, *domain.Merchant) {
	t.Helper()
	decoder, err := eventlog.NewDecoder([]byte(testutil.RegistryABI), eventlog.Options{
		Contract: testutil.RegistryContract.Hex(),
	})
	require.NoError(t, err)

	svc := NewService(memory.NewMemoryStorage(), "USDT").WithRegistry(&Registry{
		Ledger:  receipts,
		Decoder: decoder,
	})
	m, err := svc.AddMerchant(context.Background(), "acme", "")
	require.NoError(t, err)
	return svc, m
}

func TestConfirmMerchant_ActivatesFromEvent(t *testing.T) {
	ctx := context.Background()
	receipts := receiptStub{}
	svc, m := newRegistryService(t, receipts)

	receipts[onboardTx] = &domain.Receipt{TxID: onboardTx, Result: "SUCCESS", Logs: []domain.Log{
		testutil.MerchantOnboarded(domain.Digest(m.MerchantID), testutil.Payer, false),
	}}
	res, err := svc.ConfirmMerchant(ctx, "acme", "0x"+strings.ToUpper(onboardTx))
	require.NoError(t, err)
	require.True(t, res.Updated)
	require.False(t, res.Merchant.Active)
	require.Equal(t, "MerchantOnboarded", res.Event.Name)

	receipts[onboardTx].Logs[0] = testutil.MerchantOnboarded(domain.Digest(m.MerchantID), testutil.Payer, true)
	res, err = svc.ConfirmMerchant(ctx, m.MerchantID, onboardTx)
	require.NoError(t, err)
	require.True(t, res.Merchant.Active)

	stored, err := svc.ResolveMerchant(ctx, "acme")
	require.NoError(t, err)
	require.True(t, stored.Active)
}

func TestConfirmMerchant_FailedReceiptDeactivates(t *testing.T) {
	ctx := context.Background()
	receipts := receiptStub{}
	svc, m := newRegistryService(t, receipts)

	receipts[onboardTx] = &domain.Receipt{TxID: onboardTx, Result: "REVERT", Logs: []domain.Log{
		testutil.MerchantOnboarded(domain.Digest(m.MerchantID), testutil.Payer, true),
	}}
	res, err := svc.ConfirmMerchant(ctx, "acme", onboardTx)
	require.NoError(t, err)
	require.True(t, res.Updated)
	require.Equal(t, "REVERT", res.Receipt)
	require.False(t, res.Merchant.Active)

	_, err = svc.Create(ctx, "acme", "1")
	require.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestConfirmMerchant_NoEventLeavesMerchant(t *testing.T) {
	ctx := context.Background()
	receipts := receiptStub{onboardTx: {TxID: onboardTx, Result: "SUCCESS"}}
	svc, _ := newRegistryService(t, receipts)

	res, err := svc.ConfirmMerchant(ctx, "acme", onboardTx)
	require.NoError(t, err)
	require.False(t, res.Updated)
	require.NotEmpty(t, res.Reason)
	require.True(t, res.Merchant.Active)
}

func TestConfirmMerchant_Errors(t *testing.T) {
	ctx := context.Background()
	receipts := receiptStub{}
	svc, m := newRegistryService(t, receipts)

	// Event for a different merchant.
	receipts[onboardTx] = &domain.Receipt{TxID: onboardTx, Result: "SUCCESS", Logs: []domain.Log{
		testutil.MerchantOnboarded(digest.MustFromString("globex"), testutil.Payer, false),
	}}
	_, err := svc.ConfirmMerchant(ctx, "acme", onboardTx)
	require.Equal(t, domain.KindIdentifierMismatch, domain.KindOf(err))
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	require.Equal(t, domain.Digest(m.MerchantID), de.Details["expected"])

	stored, err := svc.ResolveMerchant(ctx, "acme")
	require.NoError(t, err)
	require.True(t, stored.Active, "a mismatch must not touch the merchant")

	_, err = svc.ConfirmMerchant(ctx, "acme", strings.Repeat("ef", 32))
	require.Equal(t, domain.KindNotYetConfirmed, domain.KindOf(err))

	_, err = svc.ConfirmMerchant(ctx, "nobody", onboardTx)
	require.Equal(t, domain.KindOrderNotFound, domain.KindOf(err))

	_, err = svc.ConfirmMerchant(ctx, "acme", "  ")
	require.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	unconfigured := NewService(memory.NewMemoryStorage(), "USDT")
	_, err = unconfigured.ConfirmMerchant(ctx, "acme", onboardTx)
	require.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}
