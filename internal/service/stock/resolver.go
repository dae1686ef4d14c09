package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// ResolveStockLocation находит остаток, который обслуживает позицию.
//
// Без размера используется корневой stock товара. С размером порядок такой:
// корневой size самого документа, затем вложенный вариант, затем документ-«брат»
// из той же VariantGroupID с таким корневым size.
func (e *Engine) ResolveStockLocation(ctx context.Context, productID, selectedSize string) (domain.StockLocation, error) {
	product, err := e.catalog.GetProduct(ctx, productID)
	if err != nil {
		return domain.StockLocation{}, err
	}

	if selectedSize == "" {
		return domain.StockLocation{
			Kind:      domain.LocationRoot,
			ProductID: product.ID,
			ItemName:  product.ItemName,
			Available: product.Stock,
		}, nil
	}

	if product.Size == selectedSize {
		return rootLocation(product), nil
	}

	if idx := product.VariantIndex(selectedSize); idx >= 0 {
		return domain.StockLocation{
			Kind:      domain.LocationVariant,
			ProductID: product.ID,
			Size:      selectedSize,
			ItemName:  product.ItemName,
			Available: product.Variants[idx].Stock,
		}, nil
	}

	if product.VariantGroupID != "" {
		sibling, err := e.catalog.FindSibling(ctx, product.VariantGroupID, selectedSize)
		switch {
		case err == nil:
			return rootLocation(sibling), nil
		case !errors.Is(err, domain.ErrProductNotFound):
			return domain.StockLocation{}, fmt.Errorf("find sibling of %s: %w", product.ID, err)
		}
	}

	return domain.StockLocation{}, fmt.Errorf("%w: product %s size %s", domain.ErrVariantNotFound, productID, selectedSize)
}

func rootLocation(p domain.Product) domain.StockLocation {
	return domain.StockLocation{
		Kind:      domain.LocationRoot,
		ProductID: p.ID,
		Size:      p.Size,
		ItemName:  p.ItemName,
		Available: p.Stock,
	}
}
