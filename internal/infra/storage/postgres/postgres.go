package postgres

import (
	"github.com/vietddude/paywatch/internal/infra/storage"
)

// Store implements storage.Store on PostgreSQL.
type Store struct {
	*DB
	orders    *OrderRepo
	merchants *MerchantRepo
}

// NewStore wraps an open database.
func NewStore(db *DB) *Store {
	return &Store{
		DB:        db,
		orders:    NewOrderRepo(db),
		merchants: NewMerchantRepo(db),
	}
}

func (s *Store) Orders() storage.OrderRepository       { return s.orders }
func (s *Store) Merchants() storage.MerchantRepository { return s.merchants }
