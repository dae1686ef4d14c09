package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Variant — вложенный размер товара со своей ценой и остатком.
type Variant struct {
	Size     string
	Price    decimal.Decimal
	Stock    int
	Discount decimal.Decimal
}

// Product — товар каталога. Корневые поля описывают базовую фасовку,
// Variants перечисляют дополнительные размеры внутри того же документа.
// Отдельные документы-«братья» одного товара связаны через VariantGroupID.
type Product struct {
	ID             string
	ItemName       string
	Company        string
	CategoryName   string
	SellerEmail    string
	Price          decimal.Decimal
	Discount       decimal.Decimal
	Stock          int
	Size           string
	VariantGroupID string
	Variants       []Variant
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// VariantIndex возвращает индекс варианта с размером size или -1.
func (p *Product) VariantIndex(size string) int {
	for i := range p.Variants {
		if p.Variants[i].Size == size {
			return i
		}
	}
	return -1
}

// IsLowStock сообщает, что корневой остаток или остаток любого варианта не выше threshold.
func (p *Product) IsLowStock(threshold int) bool {
	if p.Stock <= threshold {
		return true
	}
	for _, v := range p.Variants {
		if v.Stock <= threshold {
			return true
		}
	}
	return false
}

// Validate проверяет неотрицательность остатков.
func (p *Product) Validate() []error {
	var errs []error
	if p.Stock < 0 {
		errs = append(errs, ErrNegativeStock)
	}
	for _, v := range p.Variants {
		if v.Stock < 0 {
			errs = append(errs, ErrNegativeStock)
		}
	}
	return errs
}

// Clone возвращает копию без общих слайсов.
func (p Product) Clone() Product {
	if p.Variants != nil {
		p.Variants = append([]Variant(nil), p.Variants...)
	}
	return p
}
