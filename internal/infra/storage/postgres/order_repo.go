package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vietddude/paywatch/internal/core/domain"
	"github.com/vietddude/paywatch/internal/infra/storage"
)

const orderColumns = `id, merchant_id, merchant_address, order_id, invoice_id, amount, token, status, txid, created_at, updated_at`

type orderRow struct {
	ID              int64          `db:"id"`
	MerchantID      string         `db:"merchant_id"`
	MerchantAddress string         `db:"merchant_address"`
	OrderID         string         `db:"order_id"`
	InvoiceID       string         `db:"invoice_id"`
	Amount          string         `db:"amount"`
	Token           string         `db:"token"`
	Status          string         `db:"status"`
	TxID            sql.NullString `db:"txid"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r orderRow) toDomain() *domain.Order {
	return &domain.Order{
		ID:              r.ID,
		MerchantID:      r.MerchantID,
		MerchantAddress: r.MerchantAddress,
		OrderID:         r.OrderID,
		InvoiceID:       r.InvoiceID,
		Amount:          r.Amount,
		Token:           r.Token,
		Status:          domain.OrderStatus(r.Status),
		TxID:            r.TxID.String,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// OrderRepo implements storage.OrderRepository using PostgreSQL.
type OrderRepo struct {
	db *DB
}

// NewOrderRepo creates a new PostgreSQL order repository.
func NewOrderRepo(db *DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// Create inserts a new order. The canonical digests of its identifiers are
// stored alongside for indexed candidate lookup.
func (r *OrderRepo) Create(ctx context.Context, order *domain.Order) error {
	keys, err := storage.KeysFor(order)
	if err != nil {
		return err
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}

	query := `
		INSERT INTO orders (
			merchant_id, merchant_address, order_id, invoice_id,
			merchant_key, order_key, invoice_key, amount, token, status, txid
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRowxContext(ctx, query,
		order.MerchantID, order.MerchantAddress, order.OrderID, order.InvoiceID,
		keys.Merchant.String(), keys.Order.String(), keys.Invoice.String(),
		order.Amount, order.Token, string(order.Status), order.TxID,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("order %s: %w", order.OrderID, storage.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByOrderID retrieves an order by its stored order id.
func (r *OrderRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
}

// GetByTxID retrieves the order bound to a transaction.
func (r *OrderRepo) GetByTxID(ctx context.Context, txID string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE txid = $1`, txID)
}

func (r *OrderRepo) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return row.toDomain(), nil
}

// FindCandidateOrders selects orders matching the query's scope and digest constraints.
func (r *OrderRepo) FindCandidateOrders(ctx context.Context, q storage.CandidateQuery) ([]*domain.Order, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}

	if q.MerchantID != "" {
		add("merchant_id = ?", q.MerchantID)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		add("status IN (?)", statuses)
	}
	if q.OrderID != "" {
		add("order_id = ?", q.OrderID)
	}
	if q.InvoiceID != "" {
		add("invoice_id = ?", q.InvoiceID)
	}
	if !q.MerchantKey.Absent() {
		add("merchant_key = ?", q.MerchantKey.String())
	}
	if !q.OrderKey.Absent() {
		add("order_key = ?", q.OrderKey.String())
	}
	if !q.InvoiceKey.Absent() {
		add("invoice_key = ?", q.InvoiceKey.String())
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build candidate query: %w", err)
	}

	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to find candidate orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	return orders, nil
}

// UpdateOrderStatus commits a status and binding, conditioned on the order's
// txid still equal to u.ExpectedTxID.
func (r *OrderRepo) UpdateOrderStatus(ctx context.Context, u storage.StatusUpdate) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET status = $1, txid = NULLIF($2, ''), updated_at = NOW()
		WHERE order_id = $3 AND COALESCE(txid, '') = $4
		RETURNING ` + orderColumns

	var row orderRow
	err := r.db.GetContext(ctx, &row, query, string(u.Status), u.TxID, u.OrderID, u.ExpectedTxID)
	if isUniqueViolation(err) {
		return nil, storage.ErrConflict
	}
	if errors.Is(err, sql.ErrNoRows) {
		// Either the order is gone or its binding moved under us.
		if _, getErr := r.GetByOrderID(ctx, u.OrderID); getErr != nil {
			return nil, getErr
		}
		return nil, storage.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	return row.toDomain(), nil
}

// List returns a merchant's most recent orders, newest first.
func (r *OrderRepo) List(ctx context.Context, merchantID string, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []orderRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1::TEXT = '' OR merchant_id = $1)
		ORDER BY id DESC
		LIMIT $2
	`, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	return orders, nil
}

// Summary aggregates a merchant's orders. Sales are summed as NUMERIC.
func (r *OrderRepo) Summary(ctx context.Context, merchantID string) (*domain.MerchantSummary, error) {
	var row struct {
		Total    int    `db:"total"`
		Success  int    `db:"success"`
		Failed   int    `db:"failed"`
		Sales    string `db:"sales"`
		Currency string `db:"currency"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'SUCCESS') AS success,
			COUNT(*) FILTER (WHERE status = 'FAILED') AS failed,
			COALESCE(SUM(amount::NUMERIC) FILTER (WHERE status = 'SUCCESS'), 0)::TEXT AS sales,
			COALESCE(MAX(token) FILTER (WHERE status = 'SUCCESS'), '') AS currency
		FROM orders
		WHERE merchant_id = $1
	`, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize orders: %w", err)
	}

	sales, err := decimal.NewFromString(row.Sales)
	if err != nil {
		return nil, fmt.Errorf("invalid sales total %q: %w", row.Sales, err)
	}

	return &domain.MerchantSummary{
		MerchantID: merchantID,
		Total:      row.Total,
		Success:    row.Success,
		Failed:     row.Failed,
		Pending:    row.Total - row.Success - row.Failed,
		Sales:      sales.String(),
		Currency:   row.Currency,
	}, nil
}
