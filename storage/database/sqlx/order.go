package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/reliefbridge/core/order"
)

type (
	orderRow struct {
		ID               string          `db:"id"`
		VendorID         string          `db:"vendor_id"`
		RequestID        string          `db:"request_id"`
		RequestTitle     string          `db:"request_title"`
		Location         string          `db:"location"`
		TotalAmount      decimal.Decimal `db:"total_amount"`
		AdvancePayment   decimal.Decimal `db:"advance_payment"`
		Status           string          `db:"status"`
		TrackingNumber   string          `db:"tracking_number"`
		OrderDate        time.Time       `db:"order_date"`
		DeliveryDeadline sql.NullTime    `db:"delivery_deadline"`
	}

	orderItemRow struct {
		ID       string `db:"id"`
		OrderID  string `db:"order_id"`
		Name     string `db:"name"`
		Quantity int    `db:"quantity"`
		Unit     string `db:"unit"`
	}
)

func (r orderRow) toOrder() order.Order {
	ord := order.Order{
		ID:             r.ID,
		VendorID:       r.VendorID,
		RequestID:      r.RequestID,
		RequestTitle:   r.RequestTitle,
		Location:       r.Location,
		TotalAmount:    r.TotalAmount,
		AdvancePayment: r.AdvancePayment,
		Status:         order.Status(r.Status),
		TrackingNumber: r.TrackingNumber,
		OrderDate:      r.OrderDate,
	}
	if r.DeliveryDeadline.Valid {
		ord.DeliveryDeadline = r.DeliveryDeadline.Time
	}
	return ord
}

const orderColumns = `id, vendor_id, request_id, request_title, location, total_amount, advance_payment, status, tracking_number, order_date, delivery_deadline`

type orderRepository struct {
	db *sqlx.DB
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *sqlx.DB) order.Repository {
	return &orderRepository{db: db}
}

func (repo *orderRepository) CreateOrder(ctx context.Context, ord order.Order) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "creating order")
	}
	defer func() { _ = tx.Rollback() }()

	q := `
INSERT INTO "order" (id, vendor_id, request_id, request_title, location, total_amount, advance_payment, status, tracking_number, order_date, delivery_deadline)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = tx.ExecContext(ctx, q,
		ord.ID, ord.VendorID, ord.RequestID, ord.RequestTitle, ord.Location,
		ord.TotalAmount, ord.AdvancePayment, ord.Status, ord.TrackingNumber,
		ord.OrderDate, ord.DeliveryDeadline,
	)
	if err != nil {
		return errors.Wrap(err, "inserting order")
	}

	itemQ := `INSERT INTO order_item (id, order_id, name, quantity, unit) VALUES ($1, $2, $3, $4, $5)`
	for _, it := range ord.Items {
		if _, err = tx.ExecContext(ctx, itemQ, uuid.New().String(), ord.ID, it.Name, it.Quantity, it.Unit); err != nil {
			return errors.Wrap(err, "inserting order item")
		}
	}
	return errors.Wrap(tx.Commit(), "creating order")
}

func (repo *orderRepository) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var row orderRow
	q := fmt.Sprintf(`SELECT %s FROM "order" WHERE id = $1`, orderColumns)
	err := repo.db.GetContext(ctx, &row, q, id)
	if err == sql.ErrNoRows {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, errors.Wrap(err, "getting order")
	}

	ord := row.toOrder()
	if err = repo.loadItems(ctx, map[string]*order.Order{ord.ID: &ord}); err != nil {
		return order.Order{}, err
	}
	return ord, nil
}

func (repo *orderRepository) QueryOrdersByVendor(ctx context.Context, vendorID string) ([]order.Order, error) {
	var rows []orderRow
	q := fmt.Sprintf(`SELECT %s FROM "order" WHERE vendor_id = $1 ORDER BY order_date DESC`, orderColumns)
	if err := repo.db.SelectContext(ctx, &rows, q, vendorID); err != nil {
		return nil, errors.Wrap(err, "querying orders")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	orders := make([]order.Order, 0, len(rows))
	byID := make(map[string]*order.Order, len(rows))
	for _, r := range rows {
		orders = append(orders, r.toOrder())
		byID[r.ID] = &orders[len(orders)-1]
	}
	if err := repo.loadItems(ctx, byID); err != nil {
		return nil, err
	}
	return orders, nil
}

func (repo *orderRepository) UpdateOrder(ctx context.Context, ord order.Order) error {
	// item lines are frozen at assignment; only fulfillment fields move
	res, err := repo.db.ExecContext(ctx,
		`UPDATE "order" SET status = $2, tracking_number = $3 WHERE id = $1`,
		ord.ID, string(ord.Status), ord.TrackingNumber)
	if err != nil {
		return errors.Wrap(err, "updating order")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (repo *orderRepository) loadItems(ctx context.Context, byID map[string]*order.Order) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	q, args, err := sqlx.In(`SELECT id, order_id, name, quantity, unit FROM order_item WHERE order_id IN (?) ORDER BY order_id`, ids)
	if err != nil {
		return errors.Wrap(err, "loading order items")
	}

	var rows []orderItemRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "loading order items")
	}
	for _, r := range rows {
		ord := byID[r.OrderID]
		ord.Items = append(ord.Items, order.OrderItem{Name: r.Name, Quantity: r.Quantity, Unit: r.Unit})
	}
	return nil
}
