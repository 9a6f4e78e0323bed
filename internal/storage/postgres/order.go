package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pastavicenzo/storefront/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, user_id, items, total, customer, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getOrderByIDSQL = `SELECT id, user_id, items, total, customer, status, created_at
		FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT id, user_id, items, total, customer, status, created_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC`

	listOrdersSQL = `SELECT id, user_id, items, total, customer, status, created_at
		FROM orders ORDER BY created_at DESC`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
// Order items and the customer form snapshot are serialized to JSONB.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(itemRows(o.Items))
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	customerJSON, err := json.Marshal(customerRow(o.Customer))
	if err != nil {
		return fmt.Errorf("marshaling order customer: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, o.Total, customerJSON, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
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
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns all orders, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus moves the order to the given lifecycle state.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating order %q status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

type itemRow struct {
	LineID      string          `json:"lineId"`
	DisplayName string          `json:"displayName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	ImageRef    string          `json:"imageRef,omitempty"`
}

type custRow struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Delivery      string `json:"deliveryMethod"`
	Address       string `json:"address,omitempty"`
	City          string `json:"city,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	Note          string `json:"note,omitempty"`
}

func itemRows(items []order.Item) []itemRow {
	rows := make([]itemRow, len(items))
	for i, it := range items {
		rows[i] = itemRow{
			LineID:      it.LineID,
			DisplayName: it.DisplayName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			ImageRef:    it.ImageRef,
		}
	}
	return rows
}

func customerRow(c order.Customer) custRow {
	return custRow{
		Name:          c.Name,
		Phone:         c.Phone,
		Delivery:      string(c.Delivery),
		Address:       c.Address,
		City:          c.City,
		PaymentMethod: c.PaymentMethod,
		Note:          c.Note,
	}
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		items    []byte
		customer []byte
		status   string
		total    decimal.Decimal
	)
	err := row.Scan(&o.ID, &o.UserID, &items, &total, &customer, &status, &o.CreatedAt)
	if err != nil {
		return o, err
	}
	o.Total = total
	o.Status = order.Status(status)

	var irows []itemRow
	if err := json.Unmarshal(items, &irows); err != nil {
		return o, fmt.Errorf("unmarshaling items for order %q: %w", o.ID, err)
	}
	for _, it := range irows {
		o.Items = append(o.Items, order.Item{
			LineID:      it.LineID,
			DisplayName: it.DisplayName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			ImageRef:    it.ImageRef,
		})
	}

	var crow custRow
	if err := json.Unmarshal(customer, &crow); err != nil {
		return o, fmt.Errorf("unmarshaling customer for order %q: %w", o.ID, err)
	}
	o.Customer = order.Customer{
		Name:          crow.Name,
		Phone:         crow.Phone,
		Delivery:      order.DeliveryMethod(crow.Delivery),
		Address:       crow.Address,
		City:          crow.City,
		PaymentMethod: crow.PaymentMethod,
		Note:          crow.Note,
	}
	return o, nil
}
