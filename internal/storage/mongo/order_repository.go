package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	id := primitive.NewObjectID()
	if order.ID != "" {
		parsed, err := primitive.ObjectIDFromHex(order.ID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order id %q: %w", order.ID, err)
		}
		id = parsed
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := toOrderDoc(order, id)
	if _, err := r.store.orders.InsertOne(opCtx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if isOrderNumberDuplicate(err) {
				return domain.Order{}, domain.ErrDuplicateOrderNumber
			}
			return domain.Order{}, domain.ErrOrderVersionConflict
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}
	order.ID = id.Hex()
	return order, nil
}

func isOrderNumberDuplicate(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 && strings.Contains(e.Message, "orderNumber") {
				return true
			}
		}
	}
	return false
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc orderDoc
	err = r.store.orders.FindOne(opCtx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("find order: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filter.BuyerEmail != "" || filter.SellerEmail != "" {
		opts.SetCollation(emailCollation)
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := r.store.orders.Find(opCtx, orderListFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer cursor.Close(opCtx)

	var docs []orderDoc
	if err := cursor.All(opCtx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.toDomain())
	}
	return orders, nil
}

// orderListFilter сравнивает email точно; регистр снимает emailCollation,
// под которую построены индексы buyerEmail и items.sellerEmail.
func orderListFilter(filter domain.OrderFilter) bson.M {
	query := bson.M{}
	if filter.BuyerEmail != "" {
		query["buyerEmail"] = strings.TrimSpace(filter.BuyerEmail)
	}
	if filter.SellerEmail != "" {
		query["items.sellerEmail"] = strings.TrimSpace(filter.SellerEmail)
	}
	return query
}

// Save обновляет изменяемые поля, если версия в базе совпадает с order.Version.
func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	oid, err := primitive.ObjectIDFromHex(order.ID)
	if err != nil {
		return domain.ErrOrderNotFound
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	a := order.DeliveryAddress
	res, err := r.store.orders.UpdateOne(opCtx, versionFilter(oid, order.Version), bson.M{
		"$set": bson.M{
			"status":         string(order.Status),
			"paymentStatus":  string(order.PaymentStatus),
			"trackingNumber": order.TrackingNumber,
			"notes":          order.Notes,
			"deliveryAddress": addressDoc{
				Street:      a.Street,
				City:        a.City,
				PostalCode:  a.PostalCode,
				Country:     a.Country,
				PhoneNumber: a.PhoneNumber,
			},
			"updatedAt": order.UpdatedAt,
			"version":   order.Version + 1,
		},
	})
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	count, err := r.store.orders.CountDocuments(opCtx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("count order: %w", err)
	}
	if count == 0 {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

// versionFilter учитывает документы, созданные без поля version.
func versionFilter(oid primitive.ObjectID, version int64) bson.M {
	if version == 0 {
		return bson.M{"_id": oid, "$or": bson.A{
			bson.M{"version": int64(0)},
			bson.M{"version": bson.M{"$exists": false}},
		}}
	}
	return bson.M{"_id": oid, "version": version}
}

func (r *orderRepository) SalesByStatus(ctx context.Context) ([]domain.StatusSales, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.store.orders.Aggregate(opCtx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: "$finalPrice"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate sales: %w", err)
	}
	defer cursor.Close(opCtx)

	var rows []struct {
		Status  string  `bson:"_id"`
		Revenue float64 `bson:"revenue"`
		Count   int64   `bson:"count"`
	}
	if err := cursor.All(opCtx, &rows); err != nil {
		return nil, fmt.Errorf("decode sales: %w", err)
	}

	result := make([]domain.StatusSales, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.StatusSales{
			Status:  domain.OrderStatus(row.Status),
			Revenue: decimal.NewFromFloat(row.Revenue).Round(2),
			Count:   int(row.Count),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Status < result[j].Status })
	return result, nil
}

func (r *orderRepository) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.store.orders.Aggregate(opCtx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: "$finalPrice"}}},
			{Key: "orders", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "pending", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$status", string(domain.OrderStatusPending)}}}, 1, 0,
			}}}}}},
		}}},
	})
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("aggregate dashboard: %w", err)
	}
	defer cursor.Close(opCtx)

	var rows []struct {
		Revenue float64 `bson:"revenue"`
		Orders  int64   `bson:"orders"`
		Pending int64   `bson:"pending"`
	}
	if err := cursor.All(opCtx, &rows); err != nil {
		return domain.DashboardStats{}, fmt.Errorf("decode dashboard: %w", err)
	}
	stats := domain.DashboardStats{TotalRevenue: decimal.Zero}
	if len(rows) > 0 {
		stats.TotalRevenue = money(rows[0].Revenue)
		stats.TotalOrders = int(rows[0].Orders)
		stats.PendingOrders = int(rows[0].Pending)
	}
	return stats, nil
}

// periodFormats повторяют domain.RevenueGranularity.PeriodKey в терминах $dateToString.
var periodFormats = map[domain.RevenueGranularity]string{
	domain.GranularityDay:   "%Y-%m-%d",
	domain.GranularityWeek:  "%Y-%U",
	domain.GranularityMonth: "%Y-%m",
	domain.GranularityYear:  "%Y",
}

func (r *orderRepository) RevenueSeries(ctx context.Context, q domain.RevenueQuery) ([]domain.RevenuePoint, error) {
	format, ok := periodFormats[q.Granularity]
	if !ok {
		return nil, fmt.Errorf("%w: unknown granularity %q", domain.ErrInvalidRevenueRange, q.Granularity)
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cursor, err := r.store.orders.Aggregate(opCtx, revenuePipeline(q, format))
	if err != nil {
		return nil, fmt.Errorf("aggregate revenue: %w", err)
	}
	defer cursor.Close(opCtx)

	var rows []struct {
		Period  string  `bson:"_id"`
		Revenue float64 `bson:"revenue"`
		Orders  int64   `bson:"orders"`
	}
	if err := cursor.All(opCtx, &rows); err != nil {
		return nil, fmt.Errorf("decode revenue: %w", err)
	}
	points := make([]domain.RevenuePoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, domain.RevenuePoint{Period: row.Period, Revenue: money(row.Revenue), Orders: int(row.Orders)})
	}
	return points, nil
}

func revenuePipeline(q domain.RevenueQuery, format string) mongo.Pipeline {
	match := bson.M{"status": bson.M{"$ne": string(domain.OrderStatusCancelled)}}
	created := bson.M{}
	if !q.From.IsZero() {
		created["$gte"] = q.From
	}
	if !q.To.IsZero() {
		created["$lt"] = q.To
	}
	if len(created) > 0 {
		match["createdAt"] = created
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$dateToString", Value: bson.D{
				{Key: "format", Value: format},
				{Key: "date", Value: "$createdAt"},
				{Key: "timezone", Value: "UTC"},
			}}}},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: "$finalPrice"}}},
			{Key: "orders", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
