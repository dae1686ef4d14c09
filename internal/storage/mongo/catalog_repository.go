package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

type catalogRepository struct {
	store *Store
}

// NewCatalogRepository создаёт MongoDB-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{store: store}
}

func (r *catalogRepository) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if errs := p.Validate(); len(errs) > 0 {
		return domain.Product{}, errs[0]
	}
	id := primitive.NewObjectID()
	if p.ID != "" {
		parsed, err := primitive.ObjectIDFromHex(p.ID)
		if err != nil {
			return domain.Product{}, fmt.Errorf("product id %q: %w", p.ID, err)
		}
		id = parsed
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := toProductDoc(p, id)
	if _, err := r.store.products.InsertOne(opCtx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Product{}, fmt.Errorf("product %s already exists", id.Hex())
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *catalogRepository) FindSibling(ctx context.Context, groupID, size string) (domain.Product, error) {
	if groupID == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.findOne(ctx, bson.M{"variantGroupId": groupID, "size": size},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *catalogRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (domain.Product, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc productDoc
	err := r.store.products.FindOne(opCtx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("find product: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *catalogRepository) DecrementStock(ctx context.Context, loc domain.StockLocation, qty int) (bool, error) {
	return r.adjust(ctx, loc, -qty)
}

func (r *catalogRepository) IncrementStock(ctx context.Context, loc domain.StockLocation, qty int) (bool, error) {
	return r.adjust(ctx, loc, qty)
}

// adjust меняет остаток одним UpdateOne: условие «хватает ли остатка» стоит
// в фильтре, поэтому гонка двух списаний решается на стороне сервера.
func (r *catalogRepository) adjust(ctx context.Context, loc domain.StockLocation, delta int) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(loc.ProductID)
	if err != nil {
		return false, nil
	}
	filter, update := stockUpdate(oid, loc, delta, time.Now().UTC())

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.products.UpdateOne(opCtx, filter, update)
	if err != nil {
		return false, fmt.Errorf("adjust stock: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func stockUpdate(oid primitive.ObjectID, loc domain.StockLocation, delta int, now time.Time) (bson.M, bson.M) {
	need := 0
	if delta < 0 {
		need = -delta
	}
	if loc.Kind == domain.LocationVariant {
		return bson.M{
				"_id": oid,
				"variants": bson.M{"$elemMatch": bson.M{
					"size":  loc.Size,
					"stock": bson.M{"$gte": need},
				}},
			}, bson.M{
				"$inc": bson.M{"variants.$.stock": delta},
				"$set": bson.M{"updatedAt": now},
			}
	}
	filter := bson.M{"_id": oid, "stock": bson.M{"$gte": need}}
	if loc.Size != "" {
		filter["size"] = loc.Size
	}
	return filter, bson.M{
		"$inc": bson.M{"stock": delta},
		"$set": bson.M{"updatedAt": now},
	}
}

func (r *catalogRepository) SetStock(ctx context.Context, productID, size string, stock int) (domain.Product, error) {
	if stock < 0 {
		return domain.Product{}, domain.ErrNegativeStock
	}
	current, err := r.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	oid, _ := primitive.ObjectIDFromHex(current.ID)
	now := time.Now().UTC()

	var filter, update bson.M
	switch {
	case size == "" || size == current.Size:
		filter = bson.M{"_id": oid}
		update = bson.M{"$set": bson.M{"stock": stock, "updatedAt": now}}
	case current.VariantIndex(size) >= 0:
		filter = bson.M{"_id": oid, "variants.size": size}
		update = bson.M{"$set": bson.M{"variants.$.stock": stock, "updatedAt": now}}
	default:
		return domain.Product{}, domain.ErrVariantNotFound
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc productDoc
	err = r.store.products.FindOneAndUpdate(opCtx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("set stock: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *catalogRepository) ListLowStock(ctx context.Context, threshold, limit int) ([]domain.Product, error) {
	return r.ListProducts(ctx, domain.ProductFilter{LowStockOnly: true, Threshold: threshold, Limit: limit})
}

func (r *catalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	query := bson.M{}
	if filter.LowStockOnly {
		query = lowStockFilter(filter.Threshold)
	}
	cursor, err := r.store.products.Find(opCtx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer cursor.Close(opCtx)

	var docs []productDoc
	if err := cursor.All(opCtx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.toDomain())
	}
	return products, nil
}

func lowStockFilter(threshold int) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"stock": bson.M{"$lte": threshold}},
		bson.M{"variants.stock": bson.M{"$lte": threshold}},
	}}
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
