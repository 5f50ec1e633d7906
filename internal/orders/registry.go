package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/payment/digest"
	"github.com/vietddude/paywatch/internal/payment/eventlog"
)

// ReceiptSource is the part of the ledger merchant confirmation reads.
type ReceiptSource interface {
	GetTransactionReceipt(ctx context.Context, txID string) (*domain.Receipt, error)
	NormalizeTxID(txID string) string
}

// Registry decodes onboarding events emitted by the merchant registry contract.
type Registry struct {
	Ledger  ReceiptSource
	Decoder *eventlog.Decoder
	// Event is the onboarding event name, MerchantOnboarded by default.
	Event string
}

// MerchantConfirmation reports the outcome of ConfirmMerchant.
type MerchantConfirmation struct {
	Updated  bool                 `json:"updated"`
	TxID     string               `json:"txid"`
	Receipt  string               `json:"receipt"`
	Reason   string               `json:"reason,omitempty"`
	Merchant *domain.Merchant     `json:"merchant,omitempty"`
	Event    *domain.DecodedEvent `json:"event,omitempty"`
}

// WithRegistry enables ConfirmMerchant.
func (s *Service) WithRegistry(r *Registry) *Service {
	if r != nil && r.Event == "" {
		r.Event = "MerchantOnboarded"
	}
	s.registry = r
	return s
}

// ConfirmMerchant reads an onboarding transaction and records the merchant's
// activation state from it. The merchant is active only when the transaction
// succeeded and the event says so. A receipt without a registry event leaves
// the merchant untouched.
func (s *Service) ConfirmMerchant(ctx context.Context, ref, txID string) (*MerchantConfirmation, error) {
	if s.registry == nil {
		return nil, domain.NewError(domain.KindInvalidInput, "merchant registry is not configured", nil)
	}
	txID = s.registry.Ledger.NormalizeTxID(txID)
	if txID == "" {
		return nil, domain.NewError(domain.KindInvalidInput, "txid required", nil)
	}

	merchant, err := s.ResolveMerchant(ctx, ref)
	if err != nil {
		return nil, err
	}

	receipt, err := s.registry.Ledger.GetTransactionReceipt(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt == nil {
		return nil, domain.NewError(domain.KindNotYetConfirmed, "transaction not found yet",
			map[string]any{"txid": txID})
	}
	res := &MerchantConfirmation{TxID: txID, Receipt: strings.ToUpper(receipt.Result)}

	event, err := s.registry.Decoder.Decode(receipt.Logs)
	if err != nil {
		return nil, err
	}
	if event == nil {
		res.Reason = "no merchant registry event in receipt"
		res.Merchant = merchant
		return res, nil
	}
	if event.Name != s.registry.Event {
		return nil, domain.NewError(domain.KindUnexpectedEvent, "unexpected event",
			map[string]any{"expected": s.registry.Event, "got": event.Name})
	}

	expected, err := digest.FromStoredID(merchant.MerchantID)
	if err != nil {
		return nil, err
	}
	if got := event.Digest("merchantId"); !got.Absent() && !digest.Equal(got.String(), expected.String()) {
		return nil, domain.NewError(domain.KindIdentifierMismatch, "merchantId in event does not match this merchant",
			map[string]any{"field": "merchantId", "expected": expected, "got": got})
	}

	eventActive, _ := event.Args["active"].(bool)
	active := receipt.Succeeded() && eventActive

	updated, err := s.store.Merchants().SetActive(ctx, merchant.MerchantID, active)
	if errors.Is(err, storage.ErrMerchantNotFound) {
		return nil, domain.NewError(domain.KindOrderNotFound, "merchant not found",
			map[string]any{"merchant": ref})
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("merchant confirmed", "merchant_id", updated.MerchantID, "txid", txID, "active", active)
	res.Updated = true
	res.Merchant = updated
	res.Event = event
	return res, nil
}
