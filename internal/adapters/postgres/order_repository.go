package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	getOrderSQL = `SELECT id, number, user_id, status, total::text, currency, payment_method,
	billing, virtual, charge_upon_release, subscription_ids, return_url, stock_reduced
	FROM orders WHERE id = $1`

	getOrderMetaSQL = `SELECT key, value FROM order_meta WHERE order_id = $1 ORDER BY key`

	lockOrderSQL = `SELECT status, virtual FROM orders WHERE id = $1 FOR UPDATE`

	updateStatusSQL = `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`

	insertNoteSQL = `INSERT INTO order_notes (order_id, note) VALUES ($1, $2)`

	addNoteSQL = `INSERT INTO order_notes (order_id, note)
	SELECT id, $2 FROM orders WHERE id = $1`

	upsertMetaSQL = `INSERT INTO order_meta (order_id, key, value) VALUES ($1, $2, $3)
	ON CONFLICT (order_id, key) DO UPDATE SET value = EXCLUDED.value`

	paymentCompleteSQL = `UPDATE orders SET status = $2, stock_reduced = TRUE,
	paid_transaction_id = $3, paid_at = NOW(), updated_at = NOW() WHERE id = $1`

	reduceStockSQL = `UPDATE orders SET stock_reduced = TRUE, updated_at = NOW() WHERE id = $1`

	saveOrderSQL = `INSERT INTO orders (id, number, user_id, status, total, currency, payment_method,
	billing, virtual, charge_upon_release, subscription_ids, return_url)
	VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		number = EXCLUDED.number,
		user_id = EXCLUDED.user_id,
		status = EXCLUDED.status,
		total = EXCLUDED.total,
		currency = EXCLUDED.currency,
		payment_method = EXCLUDED.payment_method,
		billing = EXCLUDED.billing,
		virtual = EXCLUDED.virtual,
		charge_upon_release = EXCLUDED.charge_upon_release,
		subscription_ids = EXCLUDED.subscription_ids,
		return_url = EXCLUDED.return_url,
		updated_at = NOW()`
)

// StatusListener is notified after a committed order status change.
type StatusListener func(ctx context.Context, orderID string, from, to domain.OrderStatus)

// OrderRepository implements ports.OrderRepository on PostgreSQL.
type OrderRepository struct {
	db     DB
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []StatusListener
}

var _ ports.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository creates a new order repository
func NewOrderRepository(db DB, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{db: db, logger: logger}
}

// OnStatusChange registers a listener for status transitions.
func (r *OrderRepository) OnStatusChange(l StatusListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// SaveOrder inserts or replaces the order row. Meta is not touched.
func (r *OrderRepository) SaveOrder(ctx context.Context, order *domain.Order) error {
	billing, err := json.Marshal(order.Billing)
	if err != nil {
		return fmt.Errorf("marshal billing: %w", err)
	}
	subs := order.SubscriptionIDs
	if subs == nil {
		subs = []string{}
	}
	status := order.Status
	if status == "" {
		status = domain.OrderStatusPending
	}

	_, err = r.db.Exec(ctx, saveOrderSQL,
		order.ID, order.Number, order.UserID, string(status), order.Total.String(), order.Currency,
		order.PaymentMethod, billing, order.Virtual, order.ChargeUponRelease, subs, order.ReturnURL)
	if err != nil {
		return storageError("save order", err)
	}
	return nil
}

// GetOrder implements ports.OrderRepository
func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		order   domain.Order
		status  string
		total   string
		billing []byte
	)
	err := r.db.QueryRow(ctx, getOrderSQL, orderID).Scan(
		&order.ID, &order.Number, &order.UserID, &status, &total, &order.Currency, &order.PaymentMethod,
		&billing, &order.Virtual, &order.ChargeUponRelease, &order.SubscriptionIDs, &order.ReturnURL,
		&order.StockReduced)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orderNotFound(orderID)
	}
	if err != nil {
		return nil, storageError("get order", err)
	}

	order.Status = domain.OrderStatus(status)
	if order.Total, err = decimal.NewFromString(total); err != nil {
		return nil, storageError("parse order total", err)
	}
	if len(billing) > 0 {
		if err := json.Unmarshal(billing, &order.Billing); err != nil {
			return nil, storageError("decode billing", err)
		}
	}

	rows, err := r.db.Query(ctx, getOrderMetaSQL, orderID)
	if err != nil {
		return nil, storageError("get order meta", err)
	}
	defer rows.Close()

	order.Meta = make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, storageError("scan order meta", err)
		}
		order.Meta[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("get order meta", err)
	}

	return &order, nil
}

// UpdateStatus implements ports.OrderRepository
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, note string) error {
	var from domain.OrderStatus
	err := withTransaction(ctx, r.db, func(tx pgx.Tx) error {
		current, _, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = current

		if _, err := tx.Exec(ctx, updateStatusSQL, orderID, string(status)); err != nil {
			return storageError("update order status", err)
		}
		if note != "" {
			if _, err := tx.Exec(ctx, insertNoteSQL, orderID, note); err != nil {
				return storageError("add order note", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.notify(ctx, orderID, from, status)
	return nil
}

// AddNote implements ports.OrderRepository
func (r *OrderRepository) AddNote(ctx context.Context, orderID, note string) error {
	tag, err := r.db.Exec(ctx, addNoteSQL, orderID, note)
	if err != nil {
		return storageError("add order note", err)
	}
	if tag.RowsAffected() == 0 {
		return orderNotFound(orderID)
	}
	return nil
}

// UpdateMeta implements ports.OrderRepository
func (r *OrderRepository) UpdateMeta(ctx context.Context, orderID string, meta map[string]string) error {
	if len(meta) == 0 {
		return nil
	}
	return withTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if _, _, err := lockOrder(ctx, tx, orderID); err != nil {
			return err
		}
		for _, key := range slices.Sorted(maps.Keys(meta)) {
			if _, err := tx.Exec(ctx, upsertMetaSQL, orderID, key, meta[key]); err != nil {
				return storageError("update order meta", err)
			}
		}
		return nil
	})
}

// PaymentComplete implements ports.OrderRepository
func (r *OrderRepository) PaymentComplete(ctx context.Context, orderID, transactionID string) error {
	var from, to domain.OrderStatus
	err := withTransaction(ctx, r.db, func(tx pgx.Tx) error {
		current, virtual, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = current
		to = domain.OrderStatusProcessing
		if virtual {
			to = domain.OrderStatusCompleted
		}

		if _, err := tx.Exec(ctx, paymentCompleteSQL, orderID, string(to), nullText(transactionID)); err != nil {
			return storageError("complete order payment", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.notify(ctx, orderID, from, to)
	return nil
}

// ReduceStock implements ports.OrderRepository
func (r *OrderRepository) ReduceStock(ctx context.Context, orderID string) error {
	tag, err := r.db.Exec(ctx, reduceStockSQL, orderID)
	if err != nil {
		return storageError("reduce stock", err)
	}
	if tag.RowsAffected() == 0 {
		return orderNotFound(orderID)
	}
	return nil
}

func (r *OrderRepository) notify(ctx context.Context, orderID string, from, to domain.OrderStatus) {
	if from == to {
		return
	}
	r.mu.RLock()
	listeners := slices.Clone(r.listeners)
	r.mu.RUnlock()

	r.logger.Debug("order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))

	for _, l := range listeners {
		l(ctx, orderID, from, to)
	}
}

func lockOrder(ctx context.Context, tx pgx.Tx, orderID string) (domain.OrderStatus, bool, error) {
	var (
		status  string
		virtual bool
	)
	err := tx.QueryRow(ctx, lockOrderSQL, orderID).Scan(&status, &virtual)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, orderNotFound(orderID)
	}
	if err != nil {
		return "", false, storageError("lock order", err)
	}
	return domain.OrderStatus(status), virtual, nil
}

func orderNotFound(orderID string) error {
	return domain.WrapError(domain.ErrorCodeOrderNotFound, fmt.Sprintf("order %s not found", orderID), nil)
}
