package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

type catalogRepository struct {
	store *Store
}

// NewCatalogRepository создаёт PostgreSQL-реализацию CatalogRepository.
func NewCatalogRepository(store *Store) domain.CatalogRepository {
	return &catalogRepository{store: store}
}

const productColumns = `id, item_name, company, category_name, seller_email, price, discount, stock,
	size, variant_group_id, is_active, created_at, updated_at`

func (r *catalogRepository) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if errs := p.Validate(); len(errs) > 0 {
		return domain.Product{}, errs[0]
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	err := r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		q := r.store.conn(ctx)

		if _, err := q.ExecContext(opCtx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			p.ID, p.ItemName, p.Company, p.CategoryName, p.SellerEmail, p.Price, p.Discount, p.Stock,
			nullString(p.Size), nullString(p.VariantGroupID), p.IsActive, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("product %s already exists", p.ID)
			}
			return fmt.Errorf("insert product: %w", err)
		}

		for i, v := range p.Variants {
			if _, err := q.ExecContext(opCtx, `
				INSERT INTO product_variants (product_id, position, size, price, stock, discount)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, p.ID, i, v.Size, v.Price, v.Stock, v.Discount); err != nil {
				return fmt.Errorf("insert product variant %s: %w", v.Size, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return p.Clone(), nil
}

func (r *catalogRepository) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	q := r.store.conn(ctx)

	p, err := scanProduct(q.QueryRowContext(opCtx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	variants, err := r.loadVariants(opCtx, q, p.ID)
	if err != nil {
		return domain.Product{}, err
	}
	p.Variants = variants
	return p, nil
}

func (r *catalogRepository) FindSibling(ctx context.Context, groupID, size string) (domain.Product, error) {
	if groupID == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var id string
	err := r.store.conn(ctx).QueryRowContext(opCtx, `
		SELECT id FROM products
		WHERE variant_group_id = $1 AND size = $2
		ORDER BY id
		LIMIT 1
	`, groupID, size).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("find sibling: %w", err)
	}
	return r.GetProduct(ctx, id)
}

func (r *catalogRepository) DecrementStock(ctx context.Context, loc domain.StockLocation, qty int) (bool, error) {
	return r.adjust(ctx, loc, -qty)
}

func (r *catalogRepository) IncrementStock(ctx context.Context, loc domain.StockLocation, qty int) (bool, error) {
	return r.adjust(ctx, loc, qty)
}

// adjust меняет остаток на delta одним условным UPDATE; 0 строк означает, что условие не выполнилось.
func (r *catalogRepository) adjust(ctx context.Context, loc domain.StockLocation, delta int) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	q := r.store.conn(ctx)

	var (
		res sql.Result
		err error
	)
	switch loc.Kind {
	case domain.LocationVariant:
		res, err = q.ExecContext(opCtx, `
			UPDATE product_variants
			SET stock = stock + $1
			WHERE product_id = $2 AND size = $3 AND stock + $1 >= 0
		`, delta, loc.ProductID, loc.Size)
	default:
		res, err = q.ExecContext(opCtx, `
			UPDATE products
			SET stock = stock + $1, updated_at = NOW()
			WHERE id = $2 AND stock + $1 >= 0 AND ($3::text = '' OR size = $3::text)
		`, delta, loc.ProductID, loc.Size)
	}
	if err != nil {
		if isCheckViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("adjust stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if loc.Kind == domain.LocationVariant {
		if _, err := q.ExecContext(opCtx, `UPDATE products SET updated_at = NOW() WHERE id = $1`, loc.ProductID); err != nil {
			return false, fmt.Errorf("touch product: %w", err)
		}
	}
	return true, nil
}

func (r *catalogRepository) SetStock(ctx context.Context, productID, size string, stock int) (domain.Product, error) {
	if stock < 0 {
		return domain.Product{}, domain.ErrNegativeStock
	}

	err := r.store.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := r.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		opCtx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		q := r.store.conn(ctx)

		switch {
		case size == "" || size == current.Size:
			_, err = q.ExecContext(opCtx, `UPDATE products SET stock = $1, updated_at = NOW() WHERE id = $2`, stock, productID)
		case current.VariantIndex(size) >= 0:
			if _, err = q.ExecContext(opCtx, `UPDATE product_variants SET stock = $1 WHERE product_id = $2 AND size = $3`, stock, productID, size); err == nil {
				_, err = q.ExecContext(opCtx, `UPDATE products SET updated_at = NOW() WHERE id = $1`, productID)
			}
		default:
			return domain.ErrVariantNotFound
		}
		if err != nil {
			return fmt.Errorf("set stock: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return r.GetProduct(ctx, productID)
}

func (r *catalogRepository) ListLowStock(ctx context.Context, threshold, limit int) ([]domain.Product, error) {
	return r.ListProducts(ctx, domain.ProductFilter{LowStockOnly: true, Threshold: threshold, Limit: limit})
}

func (r *catalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	q := r.store.conn(ctx)

	query, args := productListQuery(filter)
	rows, err := q.QueryContext(opCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	for i := range products {
		variants, err := r.loadVariants(opCtx, q, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Variants = variants
	}
	return products, nil
}

func productListQuery(filter domain.ProductFilter) (string, []any) {
	var (
		where string
		args  []any
	)
	if filter.LowStockOnly {
		args = append(args, filter.Threshold)
		where = `
		WHERE p.stock <= $1
		   OR EXISTS (SELECT 1 FROM product_variants v WHERE v.product_id = p.id AND v.stock <= $1)`
	}
	query := `
		SELECT ` + productColumns + `
		FROM products p` + where + `
		ORDER BY p.updated_at DESC, p.id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func (r *catalogRepository) loadVariants(ctx context.Context, q querier, productID string) ([]domain.Variant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT size, price, stock, discount
		FROM product_variants
		WHERE product_id = $1
		ORDER BY position ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("load product variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.Size, &v.Price, &v.Stock, &v.Discount); err != nil {
			return nil, fmt.Errorf("scan product variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product variants: %w", err)
	}
	return variants, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p           domain.Product
		size, group sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.ItemName, &p.Company, &p.CategoryName, &p.SellerEmail, &p.Price, &p.Discount, &p.Stock,
		&size, &group, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.Size = size.String
	p.VariantGroupID = group.String
	return p, nil
}

var _ domain.CatalogRepository = (*catalogRepository)(nil)
