package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/service/lifecycle"
)

type addressDTO struct {
	Street      string `json:"street"`
	City        string `json:"city"`
	PostalCode  string `json:"postalCode"`
	Country     string `json:"country"`
	PhoneNumber string `json:"phoneNumber"`
}

func (a addressDTO) toDomain() domain.Address {
	return domain.Address(a)
}

func newAddressDTO(a domain.Address) addressDTO {
	return addressDTO(a)
}

type lineItemDTO struct {
	ProductID    string          `json:"productId" binding:"required"`
	ItemName     string          `json:"itemName"`
	Quantity     int             `json:"quantity" binding:"required,min=1"`
	Price        decimal.Decimal `json:"price"`
	Discount     decimal.Decimal `json:"discount"`
	SelectedSize string          `json:"selectedSize,omitempty"`
	SellerEmail  string          `json:"sellerEmail,omitempty"`
}

func (i lineItemDTO) toDomain() domain.LineItem {
	return domain.LineItem{
		ProductID:    i.ProductID,
		ItemName:     i.ItemName,
		Quantity:     i.Quantity,
		Price:        i.Price,
		Discount:     i.Discount,
		SelectedSize: i.SelectedSize,
		SellerEmail:  i.SellerEmail,
	}
}

type createOrderRequest struct {
	BuyerEmail      string        `json:"buyerEmail" binding:"required,email"`
	BuyerName       string        `json:"buyerName"`
	Items           []lineItemDTO `json:"items" binding:"required,min=1,dive"`
	DeliveryAddress addressDTO    `json:"deliveryAddress"`
	Notes           string        `json:"notes"`
}

func (r createOrderRequest) toInput() lifecycle.CreateOrderInput {
	items := make([]domain.LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, item.toDomain())
	}
	return lifecycle.CreateOrderInput{
		BuyerEmail:      r.BuyerEmail,
		BuyerName:       r.BuyerName,
		Items:           items,
		DeliveryAddress: r.DeliveryAddress.toDomain(),
		Notes:           r.Notes,
	}
}

type updateOrderRequest struct {
	Status          *string     `json:"status"`
	PaymentStatus   *string     `json:"paymentStatus"`
	TrackingNumber  *string     `json:"trackingNumber"`
	Notes           *string     `json:"notes"`
	DeliveryAddress *addressDTO `json:"deliveryAddress"`
}

func (r updateOrderRequest) toPatch() domain.OrderPatch {
	var patch domain.OrderPatch
	if r.Status != nil {
		s := domain.OrderStatus(*r.Status)
		patch.Status = &s
	}
	if r.PaymentStatus != nil {
		p := domain.PaymentStatus(*r.PaymentStatus)
		patch.PaymentStatus = &p
	}
	patch.TrackingNumber = r.TrackingNumber
	patch.Notes = r.Notes
	if r.DeliveryAddress != nil {
		a := r.DeliveryAddress.toDomain()
		patch.DeliveryAddress = &a
	}
	return patch
}

type setStockRequest struct {
	Size  string `json:"size"`
	Stock *int   `json:"stock" binding:"required,min=0"`
}

type orderResponse struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	BuyerEmail      string          `json:"buyerEmail"`
	BuyerName       string          `json:"buyerName,omitempty"`
	Items           []lineItemDTO   `json:"items"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	FinalPrice      decimal.Decimal `json:"finalPrice"`
	Status          string          `json:"status"`
	PaymentStatus   string          `json:"paymentStatus"`
	DeliveryAddress addressDTO      `json:"deliveryAddress"`
	TrackingNumber  string          `json:"trackingNumber,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func newOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		BuyerEmail:      o.BuyerEmail,
		BuyerName:       o.BuyerName,
		Items:           make([]lineItemDTO, 0, len(o.Items)),
		TotalPrice:      o.Pricing.TotalPrice,
		DiscountAmount:  o.Pricing.DiscountAmount,
		ShippingCost:    o.Pricing.ShippingCost,
		FinalPrice:      o.Pricing.FinalPrice,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		DeliveryAddress: newAddressDTO(o.DeliveryAddress),
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, lineItemDTO{
			ProductID:    item.ProductID,
			ItemName:     item.ItemName,
			Quantity:     item.Quantity,
			Price:        item.Price,
			Discount:     item.Discount,
			SelectedSize: item.SelectedSize,
			SellerEmail:  item.SellerEmail,
		})
	}
	return resp
}

func newOrderList(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderResponse(o))
	}
	return out
}

type variantDTO struct {
	Size     string          `json:"size"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Discount decimal.Decimal `json:"discount"`
}

type productResponse struct {
	ID             string       `json:"id"`
	ItemName       string       `json:"itemName"`
	Company        string       `json:"company,omitempty"`
	CategoryName   string       `json:"categoryName,omitempty"`
	Stock          int          `json:"stock"`
	Size           string       `json:"size,omitempty"`
	VariantGroupID string       `json:"variantGroupId,omitempty"`
	Variants       []variantDTO `json:"variants,omitempty"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

func newProductResponse(p domain.Product) productResponse {
	resp := productResponse{
		ID:             p.ID,
		ItemName:       p.ItemName,
		Company:        p.Company,
		CategoryName:   p.CategoryName,
		Stock:          p.Stock,
		Size:           p.Size,
		VariantGroupID: p.VariantGroupID,
		UpdatedAt:      p.UpdatedAt,
	}
	for _, v := range p.Variants {
		resp.Variants = append(resp.Variants, variantDTO(v))
	}
	return resp
}

type salesRow struct {
	Status  string          `json:"status"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

type dashboardResponse struct {
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalOrders   int             `json:"totalOrders"`
	PendingOrders int             `json:"pendingOrders"`
}

type revenuePoint struct {
	Period  string          `json:"period"`
	Revenue decimal.Decimal `json:"revenue"`
	Orders  int             `json:"orders"`
}
