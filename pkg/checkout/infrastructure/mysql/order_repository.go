package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"checkout/pkg/checkout/domain/model"
)

func NewOrderRepository(db *sqlx.DB) model.OrderRepository {
	return &orderRepository{db: db}
}

type orderRepository struct {
	db *sqlx.DB
}

type orderRow struct {
	ID               int64     `db:"id"`
	CustomerName     string    `db:"customer_name"`
	Phone            string    `db:"phone"`
	Email            string    `db:"email"`
	Address          string    `db:"address"`
	City             string    `db:"city"`
	DeliveryFeeCents int64     `db:"delivery_fee_cents"`
	TotalCents       int64     `db:"total_cents"`
	Status           string    `db:"status"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type itemRow struct {
	OrderID    int64  `db:"order_id"`
	MenuItemID int64  `db:"menu_item_id"`
	Name       string `db:"name"`
	PriceCents int64  `db:"price_cents"`
	Quantity   int    `db:"quantity"`
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders
			(customer_name, phone, email, address, city, delivery_fee_cents, total_cents, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.CustomerName, order.Phone, order.Email, order.Address, order.City,
		order.DeliveryFeeCents, order.TotalCents, order.Status.String(),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "order id")
	}
	order.ID = id

	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, menu_item_id, name, price_cents, quantity)
			VALUES (?, ?, ?, ?, ?)`,
			id, item.MenuItemID, item.Name, item.PriceCents, item.Quantity,
		); err != nil {
			return errors.Wrap(err, "insert order item")
		}
	}

	return errors.Wrap(tx.Commit(), "commit order")
}

func (r *orderRepository) Find(ctx context.Context, id int64) (*model.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM orders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}

	order, err := r.hydrate(ctx, row)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) FindByPhone(ctx context.Context, phone string) ([]*model.Order, error) {
	var rows []orderRow
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM orders WHERE phone = ? ORDER BY created_at DESC`, phone)
	if err != nil {
		return nil, errors.Wrap(err, "select orders by phone")
	}

	orders := make([]*model.Order, 0, len(rows))
	for _, row := range rows {
		order, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id int64, status model.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status.String(), time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) hydrate(ctx context.Context, row orderRow) (*model.Order, error) {
	status, err := model.ParseOrderStatus(row.Status)
	if err != nil {
		return nil, errors.Wrapf(err, "order %d", row.ID)
	}

	var items []itemRow
	if err := r.db.SelectContext(ctx, &items,
		`SELECT * FROM order_items WHERE order_id = ?`, row.ID,
	); err != nil {
		return nil, errors.Wrap(err, "select order items")
	}

	order := &model.Order{
		ID:               row.ID,
		CustomerName:     row.CustomerName,
		Phone:            row.Phone,
		Email:            row.Email,
		Address:          row.Address,
		City:             row.City,
		DeliveryFeeCents: row.DeliveryFeeCents,
		TotalCents:       row.TotalCents,
		Status:           status,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	for _, item := range items {
		order.Items = append(order.Items, model.OrderItem{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			PriceCents: item.PriceCents,
			Quantity:   item.Quantity,
		})
	}
	return order, nil
}
