package storage

import (
	"fmt"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/payment/digest"
)

// OrderKeys are the canonical digests of an order's stored identifiers,
// indexed by stores for candidate lookup.
type OrderKeys struct {
	Merchant domain.Digest
	Order    domain.Digest
	Invoice  domain.Digest
}

// KeysFor derives the lookup keys of an order.
func KeysFor(o *domain.Order) (OrderKeys, error) {
	m, err := digest.FromStoredID(o.MerchantID)
	if err != nil {
		return OrderKeys{}, fmt.Errorf("merchant_id: %w", err)
	}
	ord, err := digest.FromStoredID(o.OrderID)
	if err != nil {
		return OrderKeys{}, fmt.Errorf("order_id: %w", err)
	}
	inv, err := digest.FromStoredID(o.InvoiceID)
	if err != nil {
		return OrderKeys{}, fmt.Errorf("invoice_id: %w", err)
	}
	return OrderKeys{Merchant: m, Order: ord, Invoice: inv}, nil
}

// Matches reports whether the keys satisfy the query's digest constraints.
func (k OrderKeys) Matches(q CandidateQuery) bool {
	return (q.MerchantKey.Absent() || q.MerchantKey == k.Merchant) &&
		(q.OrderKey.Absent() || q.OrderKey == k.Order) &&
		(q.InvoiceKey.Absent() || q.InvoiceKey == k.Invoice)
}
