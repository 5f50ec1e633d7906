package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
	"github.com/vietddude/paywatch/internal/payment/amount"
)

type orderRecord struct {
	order domain.Order
	keys  storage.OrderKeys
}

// MemoryStorage keeps orders and merchants in process. It enforces the same
// uniqueness rules as the SQL schema so engine tests exercise real conflicts.
type MemoryStorage struct {
	mu        sync.RWMutex
	nextID    int64
	orders    map[string]*orderRecord // by order_id
	byTxID    map[string]string       // txid -> order_id
	byKeys    map[storage.OrderKeys]string
	merchants map[string]*domain.Merchant
	now       func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		orders:    make(map[string]*orderRecord),
		byTxID:    make(map[string]string),
		byKeys:    make(map[storage.OrderKeys]string),
		merchants: make(map[string]*domain.Merchant),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStorage) Orders() storage.OrderRepository       { return &OrderRepo{store: s} }
func (s *MemoryStorage) Merchants() storage.MerchantRepository { return &MerchantRepo{store: s} }
func (s *MemoryStorage) Health(context.Context) error          { return nil }
func (s *MemoryStorage) Close() error                          { return nil }

// -----------------------------------------------------------------------------
// Order Repository
// -----------------------------------------------------------------------------

type OrderRepo struct {
	store *MemoryStorage
}

func NewOrderRepo(store *MemoryStorage) *OrderRepo {
	return &OrderRepo{store: store}
}

func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) error {
	keys, err := storage.KeysFor(order)
	if err != nil {
		return err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.OrderID]; ok {
		return fmt.Errorf("order %s: %w", order.OrderID, storage.ErrDuplicate)
	}
	if _, ok := s.byKeys[keys]; ok {
		return fmt.Errorf("order identifiers: %w", storage.ErrDuplicate)
	}
	if order.TxID != "" {
		if _, ok := s.byTxID[order.TxID]; ok {
			return fmt.Errorf("txid %s: %w", order.TxID, storage.ErrDuplicate)
		}
	}

	s.nextID++
	now := s.now()
	order.ID = s.nextID
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	order.CreatedAt, order.UpdatedAt = now, now

	s.orders[order.OrderID] = &orderRecord{order: *order, keys: keys}
	s.byKeys[keys] = order.OrderID
	if order.TxID != "" {
		s.byTxID[order.TxID] = order.OrderID
	}
	return nil
}

func (r *OrderRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rec, ok := r.store.orders[orderID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	o := rec.order
	return &o, nil
}

func (r *OrderRepo) GetByTxID(ctx context.Context, txID string) (*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	orderID, ok := r.store.byTxID[txID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	o := r.store.orders[orderID].order
	return &o, nil
}

func (r *OrderRepo) FindCandidateOrders(ctx context.Context, q storage.CandidateQuery) ([]*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.Order
	for _, rec := range r.store.candidates(q) {
		o := rec.order
		if q.MerchantID != "" && o.MerchantID != q.MerchantID {
			continue
		}
		if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, o.Status) {
			continue
		}
		if q.OrderID != "" && o.OrderID != q.OrderID {
			continue
		}
		if q.InvoiceID != "" && o.InvoiceID != q.InvoiceID {
			continue
		}
		if !rec.keys.Matches(q) {
			continue
		}
		out = append(out, &o)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (r *OrderRepo) UpdateOrderStatus(ctx context.Context, u storage.StatusUpdate) (*domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.orders[u.OrderID]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	if rec.order.TxID != u.ExpectedTxID {
		return nil, storage.ErrConflict
	}
	if u.TxID != "" && u.TxID != rec.order.TxID {
		if owner, taken := s.byTxID[u.TxID]; taken && owner != u.OrderID {
			return nil, storage.ErrConflict
		}
	}

	if rec.order.TxID != "" && rec.order.TxID != u.TxID {
		delete(s.byTxID, rec.order.TxID)
	}
	rec.order.Status = u.Status
	rec.order.TxID = u.TxID
	rec.order.UpdatedAt = s.now()
	if u.TxID != "" {
		s.byTxID[u.TxID] = u.OrderID
	}

	o := rec.order
	return &o, nil
}

func (r *OrderRepo) List(ctx context.Context, merchantID string, limit int) ([]*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	records := r.store.sorted()
	var out []*domain.Order
	for i := len(records) - 1; i >= 0; i-- {
		o := records[i].order
		if merchantID != "" && o.MerchantID != merchantID {
			continue
		}
		out = append(out, &o)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *OrderRepo) Summary(ctx context.Context, merchantID string) (*domain.MerchantSummary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	sum := &domain.MerchantSummary{MerchantID: merchantID}
	var sales []string
	for _, rec := range r.store.orders {
		o := rec.order
		if o.MerchantID != merchantID {
			continue
		}
		sum.Total++
		switch o.Status {
		case domain.OrderStatusSuccess:
			sum.Success++
			sales = append(sales, o.Amount)
			sum.Currency = o.Token
		case domain.OrderStatusFailed:
			sum.Failed++
		default:
			sum.Pending++
		}
	}

	total, err := amount.Sum(sales)
	if err != nil {
		return nil, err
	}
	sum.Sales = total.String()
	return sum, nil
}

// candidates narrows the scan to the key index when the full digest triple is known.
// Callers hold the lock.
func (s *MemoryStorage) candidates(q storage.CandidateQuery) []*orderRecord {
	if q.MerchantKey == "" || q.OrderKey == "" || q.InvoiceKey == "" {
		return s.sorted()
	}
	orderID, ok := s.byKeys[storage.OrderKeys{Merchant: q.MerchantKey, Order: q.OrderKey, Invoice: q.InvoiceKey}]
	if !ok {
		return nil
	}
	return []*orderRecord{s.orders[orderID]}
}

// sorted returns records in insertion order. Callers hold the lock.
func (s *MemoryStorage) sorted() []*orderRecord {
	out := make([]*orderRecord, 0, len(s.orders))
	for _, rec := range s.orders {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order.ID < out[j].order.ID })
	return out
}

// -----------------------------------------------------------------------------
// Merchant Repository
// -----------------------------------------------------------------------------

type MerchantRepo struct {
	store *MemoryStorage
}

func NewMerchantRepo(store *MemoryStorage) *MerchantRepo {
	return &MerchantRepo{store: store}
}

func (r *MerchantRepo) Create(ctx context.Context, merchant *domain.Merchant) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.merchants[merchant.MerchantID]; ok {
		return fmt.Errorf("merchant %s: %w", merchant.MerchantID, storage.ErrDuplicate)
	}
	if merchant.CreatedAt.IsZero() {
		merchant.CreatedAt = r.store.now()
	}
	m := *merchant
	r.store.merchants[merchant.MerchantID] = &m
	return nil
}

func (r *MerchantRepo) Get(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	m, ok := r.store.merchants[merchantID]
	if !ok {
		return nil, storage.ErrMerchantNotFound
	}
	out := *m
	return &out, nil
}

func (r *MerchantRepo) SetActive(ctx context.Context, merchantID string, active bool) (*domain.Merchant, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	m, ok := r.store.merchants[merchantID]
	if !ok {
		return nil, storage.ErrMerchantNotFound
	}
	m.Active = active
	out := *m
	return &out, nil
}
