package mongo

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// Денежные поля хранятся как double, как их пишет витрина.

type variantDoc struct {
	Size     string  `bson:"size"`
	Price    float64 `bson:"price"`
	Stock    int     `bson:"stock"`
	Discount float64 `bson:"discount"`
}

type productDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ItemName       string             `bson:"itemName"`
	Company        string             `bson:"company,omitempty"`
	CategoryName   string             `bson:"categoryName,omitempty"`
	SellerEmail    string             `bson:"sellerEmail,omitempty"`
	Price          float64            `bson:"price"`
	Discount       float64            `bson:"discount"`
	Stock          int                `bson:"stock"`
	Size           string             `bson:"size,omitempty"`
	VariantGroupID string             `bson:"variantGroupId,omitempty"`
	Variants       []variantDoc       `bson:"variants,omitempty"`
	IsActive       bool               `bson:"isActive"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

type addressDoc struct {
	Street      string `bson:"street"`
	City        string `bson:"city"`
	PostalCode  string `bson:"postalCode"`
	Country     string `bson:"country"`
	PhoneNumber string `bson:"phoneNumber"`
}

type lineItemDoc struct {
	ProductID    string  `bson:"productId"`
	ItemName     string  `bson:"itemName"`
	Quantity     int     `bson:"quantity"`
	Price        float64 `bson:"price"`
	Discount     float64 `bson:"discount"`
	SelectedSize string  `bson:"selectedSize,omitempty"`
	SellerEmail  string  `bson:"sellerEmail,omitempty"`
}

type orderDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	OrderNumber     string             `bson:"orderNumber"`
	BuyerEmail      string             `bson:"buyerEmail"`
	BuyerName       string             `bson:"buyerName"`
	Items           []lineItemDoc      `bson:"items"`
	TotalPrice      float64            `bson:"totalPrice"`
	DiscountAmount  float64            `bson:"discountAmount"`
	ShippingCost    float64            `bson:"shippingCost"`
	FinalPrice      float64            `bson:"finalPrice"`
	Status          string             `bson:"status"`
	PaymentStatus   string             `bson:"paymentStatus"`
	DeliveryAddress addressDoc         `bson:"deliveryAddress"`
	TrackingNumber  string             `bson:"trackingNumber,omitempty"`
	Notes           string             `bson:"notes,omitempty"`
	Version         int64              `bson:"version"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func toProductDoc(p domain.Product, id primitive.ObjectID) productDoc {
	doc := productDoc{
		ID:             id,
		ItemName:       p.ItemName,
		Company:        p.Company,
		CategoryName:   p.CategoryName,
		SellerEmail:    p.SellerEmail,
		Price:          p.Price.InexactFloat64(),
		Discount:       p.Discount.InexactFloat64(),
		Stock:          p.Stock,
		Size:           p.Size,
		VariantGroupID: p.VariantGroupID,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	for _, v := range p.Variants {
		doc.Variants = append(doc.Variants, variantDoc{
			Size:     v.Size,
			Price:    v.Price.InexactFloat64(),
			Stock:    v.Stock,
			Discount: v.Discount.InexactFloat64(),
		})
	}
	return doc
}

func (d productDoc) toDomain() domain.Product {
	p := domain.Product{
		ID:             d.ID.Hex(),
		ItemName:       d.ItemName,
		Company:        d.Company,
		CategoryName:   d.CategoryName,
		SellerEmail:    d.SellerEmail,
		Price:          money(d.Price),
		Discount:       money(d.Discount),
		Stock:          d.Stock,
		Size:           d.Size,
		VariantGroupID: d.VariantGroupID,
		IsActive:       d.IsActive,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, v := range d.Variants {
		p.Variants = append(p.Variants, domain.Variant{
			Size:     v.Size,
			Price:    money(v.Price),
			Stock:    v.Stock,
			Discount: money(v.Discount),
		})
	}
	return p
}

func toOrderDoc(o domain.Order, id primitive.ObjectID) orderDoc {
	doc := orderDoc{
		ID:             id,
		OrderNumber:    o.OrderNumber,
		BuyerEmail:     o.BuyerEmail,
		BuyerName:      o.BuyerName,
		TotalPrice:     o.Pricing.TotalPrice.InexactFloat64(),
		DiscountAmount: o.Pricing.DiscountAmount.InexactFloat64(),
		ShippingCost:   o.Pricing.ShippingCost.InexactFloat64(),
		FinalPrice:     o.Pricing.FinalPrice.InexactFloat64(),
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		DeliveryAddress: addressDoc{
			Street:      o.DeliveryAddress.Street,
			City:        o.DeliveryAddress.City,
			PostalCode:  o.DeliveryAddress.PostalCode,
			Country:     o.DeliveryAddress.Country,
			PhoneNumber: o.DeliveryAddress.PhoneNumber,
		},
		TrackingNumber: o.TrackingNumber,
		Notes:          o.Notes,
		Version:        o.Version,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, lineItemDoc{
			ProductID:    item.ProductID,
			ItemName:     item.ItemName,
			Quantity:     item.Quantity,
			Price:        item.Price.InexactFloat64(),
			Discount:     item.Discount.InexactFloat64(),
			SelectedSize: item.SelectedSize,
			SellerEmail:  item.SellerEmail,
		})
	}
	return doc
}

func (d orderDoc) toDomain() domain.Order {
	o := domain.Order{
		ID:          d.ID.Hex(),
		OrderNumber: d.OrderNumber,
		BuyerEmail:  d.BuyerEmail,
		BuyerName:   d.BuyerName,
		Pricing: domain.Pricing{
			TotalPrice:     money(d.TotalPrice),
			DiscountAmount: money(d.DiscountAmount),
			ShippingCost:   money(d.ShippingCost),
			FinalPrice:     money(d.FinalPrice),
		},
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		DeliveryAddress: domain.Address{
			Street:      d.DeliveryAddress.Street,
			City:        d.DeliveryAddress.City,
			PostalCode:  d.DeliveryAddress.PostalCode,
			Country:     d.DeliveryAddress.Country,
			PhoneNumber: d.DeliveryAddress.PhoneNumber,
		},
		TrackingNumber: d.TrackingNumber,
		Notes:          d.Notes,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	for _, item := range d.Items {
		o.Items = append(o.Items, domain.LineItem{
			ProductID:    item.ProductID,
			ItemName:     item.ItemName,
			Quantity:     item.Quantity,
			Price:        money(item.Price),
			Discount:     money(item.Discount),
			SelectedSize: item.SelectedSize,
			SellerEmail:  item.SellerEmail,
		})
	}
	return o
}
