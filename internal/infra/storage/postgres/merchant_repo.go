package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
)

// MerchantRepo implements storage.MerchantRepository using PostgreSQL.
type MerchantRepo struct {
	db *DB
}

// NewMerchantRepo creates a new PostgreSQL merchant repository.
func NewMerchantRepo(db *DB) *MerchantRepo {
	return &MerchantRepo{db: db}
}

// Create saves a merchant.
func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO merchants (merchant_id, name, address, active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, m.MerchantID, m.Name, m.Address, m.Active).Scan(&m.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("merchant %s: %w", m.MerchantID, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to save merchant: %w", err)
	}
	return nil
}

// Get retrieves a merchant by id.
func (r *MerchantRepo) Get(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	var m domain.Merchant
	err := r.db.QueryRowxContext(ctx, `
		SELECT merchant_id, name, address, active, created_at
		FROM merchants WHERE merchant_id = $1
	`, merchantID).Scan(&m.MerchantID, &m.Name, &m.Address, &m.Active, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	return &m, nil
}

// SetActive updates the merchant's activation flag.
func (r *MerchantRepo) SetActive(ctx context.Context, merchantID string, active bool) (*domain.Merchant, error) {
	var m domain.Merchant
	err := r.db.QueryRowxContext(ctx, `
		UPDATE merchants SET active = $2
		WHERE merchant_id = $1
		RETURNING merchant_id, name, address, active, created_at
	`, merchantID, active).Scan(&m.MerchantID, &m.Name, &m.Address, &m.Active, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrMerchantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update merchant: %w", err)
	}
	return &m, nil
}
