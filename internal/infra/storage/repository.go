package storage

import (
	"context"
	"errors"

	"github.com/vietddude/paywatch/internal/core/domain"
)

var (
	// ErrOrderNotFound is returned when an order doesn't exist
	ErrOrderNotFound = errors.New("order not found")

	// ErrMerchantNotFound is returned when a merchant doesn't exist
	ErrMerchantNotFound = errors.New("merchant not found")

	// ErrConflict is returned when a status update loses its compare-and-set or
	// would bind a txid already bound to another order
	ErrConflict = errors.New("order binding conflict")

	// ErrDuplicate is returned when a create violates a uniqueness constraint
	ErrDuplicate = errors.New("duplicate record")
)

// CandidateQuery selects orders a confirmation may settle.
// Empty fields do not constrain the result.
type CandidateQuery struct {
	// MerchantID scopes the search to one merchant's orders
	MerchantID string

	// Statuses limits the search to these statuses
	Statuses []domain.OrderStatus

	// OrderID and InvoiceID match stored identifiers exactly
	OrderID   string
	InvoiceID string

	// MerchantKey, OrderKey and InvoiceKey match the canonical digests of the
	// stored identifiers
	MerchantKey domain.Digest
	OrderKey    domain.Digest
	InvoiceKey  domain.Digest

	// Limit caps the result size; 0 means no cap
	Limit int
}

// StatusUpdate is a compare-and-set on an order's binding.
type StatusUpdate struct {
	// OrderID is the stored order identifier
	OrderID string

	// ExpectedTxID is the binding the order must still have; "" means unbound
	ExpectedTxID string

	Status domain.OrderStatus

	// TxID is the new binding; "" leaves the order unbound
	TxID string
}

// OrderRepository handles order storage operations
type OrderRepository interface {
	// Create inserts a new order; ErrDuplicate on identifier collisions
	Create(ctx context.Context, order *domain.Order) error

	// GetByOrderID retrieves an order by its stored identifier
	GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error)

	// GetByTxID retrieves the order bound to a transaction
	GetByTxID(ctx context.Context, txID string) (*domain.Order, error)

	// FindCandidateOrders returns orders matching the query in creation order
	FindCandidateOrders(ctx context.Context, q CandidateQuery) ([]*domain.Order, error)

	// UpdateOrderStatus applies the update only if the binding is unchanged;
	// returns ErrConflict otherwise or when TxID is bound elsewhere
	UpdateOrderStatus(ctx context.Context, u StatusUpdate) (*domain.Order, error)

	// List returns a merchant's most recent orders
	List(ctx context.Context, merchantID string, limit int) ([]*domain.Order, error)

	// Summary aggregates a merchant's orders by status
	Summary(ctx context.Context, merchantID string) (*domain.MerchantSummary, error)
}

// MerchantRepository handles merchant storage operations
type MerchantRepository interface {
	// Create inserts a new merchant; ErrDuplicate if the id exists
	Create(ctx context.Context, merchant *domain.Merchant) error

	// Get retrieves a merchant by id
	Get(ctx context.Context, merchantID string) (*domain.Merchant, error)

	// SetActive records the merchant's on-chain activation state
	SetActive(ctx context.Context, merchantID string, active bool) (*domain.Merchant, error)
}

// Store bundles the repositories and the backend lifecycle.
type Store interface {
	Orders() OrderRepository
	Merchants() MerchantRepository

	// Health checks the backend
	Health(ctx context.Context) error

	Close() error
}
