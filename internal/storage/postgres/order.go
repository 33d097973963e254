package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, status, payment_status, payment_method, items, coupon_code,
		subtotal, total_discount, shipping_cost, tax, final_total,
		created_at, confirmed_at, shipped_at, delivered_at, cancelled_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, status, created_at, notes)
		VALUES ($1, $2, $3, $4)`

	historyByOrdersSQL = `SELECT order_id, status, created_at, notes
		FROM order_status_history WHERE order_id = ANY($1)
		ORDER BY created_at, id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2,
		confirmed_at = $3, shipped_at = $4, delivered_at = $5, cancelled_at = $6
		WHERE id = $1 AND status = $7`

	updateOrderSQL = `UPDATE orders SET payment_status = $2,
		subtotal = $3, total_discount = $4, shipping_cost = $5, tax = $6, final_total = $7
		WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

// ErrOrderExists is returned by Create for a duplicate order id.
var ErrOrderExists = errors.New("order already exists")

const uniqueViolation = "23505"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with its initial history in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	err = pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Status, o.PaymentStatus, o.PaymentMethod, itemsJSON, o.CouponCode,
			o.Subtotal, o.TotalDiscount, o.ShippingCost, o.Tax, o.FinalTotal,
			o.CreatedAt, o.ConfirmedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt,
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, o.ID, o.History...)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrOrderExists
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns one order with its full history.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	orders := []order.Order{o}
	if err := r.attachHistory(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// List returns orders newest first, optionally filtered by status.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	var status *string
	if f.Status != nil {
		s := string(*f.Status)
		status = &s
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, status, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	if err := r.attachHistory(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus writes the new status, lifecycle timestamps and history entry
// atomically. The update is guarded by the previous status, so two racing
// transitions cannot both apply.
func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, entry order.StatusEntry) error {
	prev := previousStatus(o.History)

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderStatusSQL,
			o.ID, o.Status, o.ConfirmedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt, prev,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return order.ErrConflict
		}
		return insertHistory(ctx, tx, o.ID, entry)
	})
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", o.ID, err)
	}
	return nil
}

// Update stores the monetary breakdown and payment status.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, o.PaymentStatus,
		o.Subtotal, o.TotalDiscount, o.ShippingCost, o.Tax, o.FinalTotal,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Delete removes an order; history rows cascade.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) attachHistory(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, historyByOrdersSQL, ids)
	if err != nil {
		return fmt.Errorf("loading status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			e       order.StatusEntry
			status  string
		)
		if err := rows.Scan(&orderID, &status, &e.Timestamp, &e.Notes); err != nil {
			return fmt.Errorf("scanning status history: %w", err)
		}
		e.Status = order.Status(status)
		i := index[orderID]
		orders[i].History = append(orders[i].History, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading status history: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, orderID string, entries ...order.StatusEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertHistorySQL, orderID, e.Status, e.Timestamp, e.Notes)
	}
	return tx.SendBatch(ctx, batch).Close()
}

// previousStatus is the status held before the last history entry was added.
func previousStatus(history []order.StatusEntry) order.Status {
	if len(history) < 2 {
		return order.StatusPending
	}
	return history[len(history)-2].Status
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                           order.Order
		status, paymentStatus, meth string
		items                       []byte
		confirmed, shipped          *time.Time
		delivered, cancelled        *time.Time
	)
	err := row.Scan(
		&o.ID, &status, &paymentStatus, &meth, &items, &o.CouponCode,
		&o.Subtotal, &o.TotalDiscount, &o.ShippingCost, &o.Tax, &o.FinalTotal,
		&o.CreatedAt, &confirmed, &shipped, &delivered, &cancelled,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.PaymentMethod = order.PaymentMethod(meth)
	o.ConfirmedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt = confirmed, shipped, delivered, cancelled

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	return o, nil
}
