package domain

import "time"

// OrderStatus is the settlement state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusSuccess    OrderStatus = "SUCCESS"
	OrderStatusFailed     OrderStatus = "FAILED"
)

// Open reports whether the order can still be settled.
func (s OrderStatus) Open() bool {
	return s == OrderStatusPending || s == OrderStatusInProgress
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusInProgress, OrderStatusSuccess, OrderStatusFailed:
		return true
	}
	return false
}

// OpenStatuses lists the statuses a webhook confirmation may settle.
var OpenStatuses = []OrderStatus{OrderStatusPending, OrderStatusInProgress}

// Order is a merchant payment request.
// MerchantID, OrderID and InvoiceID hold the stored identifiers (0x-prefixed digests
// for orders created by this service).
type Order struct {
	ID              int64       `json:"-"`
	MerchantID      string      `json:"merchant_id"`
	MerchantAddress string      `json:"merchant_address,omitempty"`
	OrderID         string      `json:"order_id"`
	InvoiceID       string      `json:"invoice_id"`
	Amount          string      `json:"amount"`
	Token           string      `json:"token"`
	Status          OrderStatus `json:"status"`
	TxID            string      `json:"txid,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Bound reports whether a settlement transaction is attached to the order.
func (o *Order) Bound() bool {
	return o.TxID != ""
}

// Merchant owns orders. Read-only for reconciliation.
type Merchant struct {
	MerchantID string    `json:"merchant_id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// MerchantSummary aggregates a merchant's orders by status.
type MerchantSummary struct {
	MerchantID string `json:"merchant_id"`
	Total      int    `json:"total"`
	Success    int    `json:"success"`
	Pending    int    `json:"pending"`
	Failed     int    `json:"failed"`
	// Sales is the exact decimal sum of SUCCESS amounts.
	Sales    string `json:"sales"`
	Currency string `json:"currency"`
}
