package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// CreateProduct сохраняет копию товара.
func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errs[0]
	}
	tx, done := s.beginWrite(ctx)
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if _, exists := s.products[product.ID]; exists {
		return domain.Product{}, fmt.Errorf("product %s already exists", product.ID)
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	stored := product.Clone()
	s.products[product.ID] = stored
	id := product.ID
	tx.record(func() { delete(s.products, id) })
	return stored.Clone(), nil
}

// GetProduct возвращает товар или ErrProductNotFound.
func (s *Store) GetProduct(_ context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p.Clone(), nil
}

// FindSibling ищет документ группы с корневым размером size.
func (s *Store) FindSibling(_ context.Context, groupID, size string) (domain.Product, error) {
	if groupID == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id, p := range s.products {
		if p.VariantGroupID == groupID && p.Size == size {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return domain.Product{}, domain.ErrProductNotFound
	}
	sort.Strings(ids)
	return s.products[ids[0]].Clone(), nil
}

// DecrementStock списывает qty, только если остатка хватает.
func (s *Store) DecrementStock(ctx context.Context, loc domain.StockLocation, qty int) (bool, error) {
	return s.adjust(ctx, loc, -qty)
}

// IncrementStock возвращает qty в остаток.
func (s *Store) IncrementStock(ctx context.Context, loc domain.StockLocation, qty int) (bool, error) {
	return s.adjust(ctx, loc, qty)
}

func (s *Store) adjust(ctx context.Context, loc domain.StockLocation, delta int) (bool, error) {
	tx, done := s.beginWrite(ctx)
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[loc.ProductID]
	if !ok {
		return false, nil
	}
	prev := p.Clone()

	switch loc.Kind {
	case domain.LocationVariant:
		idx := p.VariantIndex(loc.Size)
		if idx < 0 || p.Variants[idx].Stock+delta < 0 {
			return false, nil
		}
		p = p.Clone()
		p.Variants[idx].Stock += delta
	default:
		if loc.Size != "" && p.Size != loc.Size {
			return false, nil
		}
		if p.Stock+delta < 0 {
			return false, nil
		}
		p.Stock += delta
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	tx.record(func() { s.products[prev.ID] = prev })
	return true, nil
}

// SetStock выставляет абсолютный остаток.
func (s *Store) SetStock(ctx context.Context, productID, size string, stock int) (domain.Product, error) {
	if stock < 0 {
		return domain.Product{}, domain.ErrNegativeStock
	}
	tx, done := s.beginWrite(ctx)
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	prev := p.Clone()
	p = p.Clone()

	switch {
	case size == "" || size == p.Size:
		p.Stock = stock
	case p.VariantIndex(size) >= 0:
		p.Variants[p.VariantIndex(size)].Stock = stock
	default:
		return domain.Product{}, domain.ErrVariantNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	tx.record(func() { s.products[prev.ID] = prev })
	return p.Clone(), nil
}

// ListLowStock возвращает товары с низким остатком, недавно изменённые первыми.
func (s *Store) ListLowStock(ctx context.Context, threshold, limit int) ([]domain.Product, error) {
	return s.ListProducts(ctx, domain.ProductFilter{LowStockOnly: true, Threshold: threshold, Limit: limit})
}

// ListProducts возвращает товары по фильтру, недавно изменённые первыми.
func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0)
	for _, p := range s.products {
		if filter.Match(&p) {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ domain.CatalogRepository = (*Store)(nil)
