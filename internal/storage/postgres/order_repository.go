package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

const orderColumns = `id, order_number, buyer_email, buyer_name, street, city, postal_code, country, phone_number,
	status, payment_status, total_price, discount_amount, shipping_cost, final_price,
	tracking_number, notes, version, created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}

	err := r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		q := r.store.conn(ctx)

		a := order.DeliveryAddress
		_, err := q.ExecContext(opCtx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		`,
			order.ID, order.OrderNumber, order.BuyerEmail, order.BuyerName,
			a.Street, a.City, a.PostalCode, a.Country, a.PhoneNumber,
			string(order.Status), string(order.PaymentStatus),
			order.Pricing.TotalPrice, order.Pricing.DiscountAmount, order.Pricing.ShippingCost, order.Pricing.FinalPrice,
			order.TrackingNumber, order.Notes, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				if uniqueConstraint(err) == "orders_order_number_key" {
					return domain.ErrDuplicateOrderNumber
				}
				return domain.ErrOrderVersionConflict
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for i, item := range order.Items {
			if _, err := q.ExecContext(opCtx, `
				INSERT INTO order_items (
					order_id, position, product_id, item_name, quantity, price, discount, selected_size, seller_email
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			`,
				order.ID, i, item.ProductID, item.ItemName, item.Quantity, item.Price, item.Discount,
				item.SelectedSize, item.SellerEmail,
			); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order.Clone(), nil
}

// Get читает заказ; внутри транзакции строка блокируется до её завершения.
func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	q := r.store.conn(ctx)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if _, ok := txFrom(ctx); ok {
		query += ` FOR UPDATE`
	}

	order, err := scanOrder(q.QueryRowContext(opCtx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(opCtx, q, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	q := r.store.conn(ctx)

	var (
		conds []string
		args  []any
	)
	if filter.BuyerEmail != "" {
		args = append(args, filter.BuyerEmail)
		conds = append(conds, fmt.Sprintf("lower(o.buyer_email) = lower($%d)", len(args)))
	}
	if filter.SellerEmail != "" {
		args = append(args, filter.SellerEmail)
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM order_items i WHERE i.order_id = o.id AND lower(i.seller_email) = lower($%d))", len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders o`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY o.created_at DESC, o.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := q.QueryContext(opCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		items, err := r.loadItems(opCtx, q, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// Save обновляет изменяемые поля заказа с проверкой версии. Позиции и суммы неизменны.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	return r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		q := r.store.conn(ctx)

		a := order.DeliveryAddress
		res, err := q.ExecContext(opCtx, `
			UPDATE orders
			SET status = $1,
			    payment_status = $2,
			    tracking_number = $3,
			    notes = $4,
			    street = $5,
			    city = $6,
			    postal_code = $7,
			    country = $8,
			    phone_number = $9,
			    version = version + 1,
			    updated_at = $10
			WHERE id = $11
			  AND version = $12
		`,
			string(order.Status), string(order.PaymentStatus), order.TrackingNumber, order.Notes,
			a.Street, a.City, a.PostalCode, a.Country, a.PhoneNumber,
			order.UpdatedAt, order.ID, order.Version,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			exists, err := orderExists(opCtx, q, order.ID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrOrderNotFound
			}
			return domain.ErrOrderVersionConflict
		}
		return nil
	})
}

func (r *orderRepository) SalesByStatus(ctx context.Context) ([]domain.StatusSales, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(opCtx, `
		SELECT status, COALESCE(SUM(final_price), 0), COUNT(*)
		FROM orders
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("sales by status: %w", err)
	}
	defer rows.Close()

	result := make([]domain.StatusSales, 0)
	for rows.Next() {
		var (
			entry  domain.StatusSales
			status string
		)
		if err := rows.Scan(&status, &entry.Revenue, &entry.Count); err != nil {
			return nil, fmt.Errorf("scan sales row: %w", err)
		}
		entry.Status = domain.OrderStatus(status)
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales rows: %w", err)
	}
	return result, nil
}

func (r *orderRepository) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var stats domain.DashboardStats
	err := r.store.conn(ctx).QueryRowContext(opCtx, `
		SELECT COALESCE(SUM(final_price), 0), COUNT(*), COUNT(*) FILTER (WHERE status = $1)
		FROM orders
	`, string(domain.OrderStatusPending)).Scan(&stats.TotalRevenue, &stats.TotalOrders, &stats.PendingOrders)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

// RevenueSeries агрегирует выручку по дням UTC в базе и сворачивает дни в периоды q.Granularity.
func (r *orderRepository) RevenueSeries(ctx context.Context, q domain.RevenueQuery) ([]domain.RevenuePoint, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(opCtx, `
		SELECT (created_at AT TIME ZONE 'UTC')::date AS day, COALESCE(SUM(final_price), 0), COUNT(*)
		FROM orders
		WHERE status <> $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		GROUP BY day
		ORDER BY day
	`, string(domain.OrderStatusCancelled), nullTime(q.From), nullTime(q.To))
	if err != nil {
		return nil, fmt.Errorf("revenue series: %w", err)
	}
	defer rows.Close()

	series := domain.NewRevenueSeriesBuilder(q.Granularity)
	for rows.Next() {
		var (
			day     time.Time
			revenue decimal.Decimal
			count   int
		)
		if err := rows.Scan(&day, &revenue, &count); err != nil {
			return nil, fmt.Errorf("scan revenue row: %w", err)
		}
		series.Add(time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC), revenue, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revenue rows: %w", err)
	}
	return series.Points(), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (r *orderRepository) loadItems(ctx context.Context, q querier, orderID string) ([]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, item_name, quantity, price, discount, selected_size, seller_email
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.ItemName, &item.Quantity, &item.Price, &item.Discount,
			&item.SelectedSize, &item.SellerEmail); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                 domain.Order
		status, paymentStatus string
	)
	a := &order.DeliveryAddress
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.BuyerEmail, &order.BuyerName,
		&a.Street, &a.City, &a.PostalCode, &a.Country, &a.PhoneNumber,
		&status, &paymentStatus,
		&order.Pricing.TotalPrice, &order.Pricing.DiscountAmount, &order.Pricing.ShippingCost, &order.Pricing.FinalPrice,
		&order.TrackingNumber, &order.Notes, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return order, nil
}

func orderExists(ctx context.Context, q querier, orderID string) (bool, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
