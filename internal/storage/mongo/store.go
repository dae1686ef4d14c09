package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

const (
	opTimeout          = 5 * time.Second
	defaultConnTimeout = 5 * time.Second

	productsCollection = "products"
	ordersCollection   = "orders"

	// IllegalOperation: standalone mongod отвечает так на попытку транзакции.
	codeIllegalOperation = 20
)

var errNotInitialized = errors.New("mongo store is not initialized")

// Store держит клиент MongoDB и коллекции каталога и заказов.
type Store struct {
	client   *mongo.Client
	products *mongo.Collection
	orders   *mongo.Collection
}

// Open подключается к MongoDB и проверяет доступность.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client:   client,
		products: db.Collection(productsCollection),
		orders:   db.Collection(ordersCollection),
	}, nil
}

// Ping проверяет доступность кластера.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errNotInitialized
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, nil)
}

// Close отключает клиента.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// emailCollation сравнивает строки без учёта регистра (strength 2).
var emailCollation = &options.Collation{Locale: "en", Strength: 2}

// EnsureIndexes создаёт индексы, на которые опираются запросы хранилища.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errNotInitialized
	}
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := s.orders.Indexes().CreateMany(opCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "orderNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys:    bson.D{{Key: "buyerEmail", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("buyerEmail_ci_createdAt").SetCollation(emailCollation),
		},
		{
			Keys:    bson.D{{Key: "items.sellerEmail", Value: 1}},
			Options: options.Index().SetName("sellerEmail_ci").SetCollation(emailCollation),
		},
	}); err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}
	if _, err := s.products.Indexes().CreateMany(opCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "variantGroupId", Value: 1}, {Key: "size", Value: 1}}},
		{Keys: bson.D{{Key: "stock", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create product indexes: %w", err)
	}
	return nil
}

// SupportsTransactions спрашивает hello: транзакции есть у replica set и mongos.
func (s *Store) SupportsTransactions(ctx context.Context) (bool, error) {
	if s == nil || s.client == nil {
		return false, errNotInitialized
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := s.client.Database("admin").RunCommand(opCtx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, fmt.Errorf("hello: %w", err)
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

// WithinTransaction выполняет fn в multi-document транзакции.
// На standalone-деплое возвращает ошибку, обёрнутую в domain.ErrTransactionsUnsupported.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s == nil || s.client == nil {
		return errNotInitialized
	}
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && isTransactionUnsupported(err) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionsUnsupported, err)
	}
	return err
}

func isTransactionUnsupported(err error) bool {
	if err == nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeIllegalOperation {
		return true
	}
	return strings.Contains(err.Error(), "Transaction numbers are only allowed")
}

var _ domain.Transactor = (*Store)(nil)
