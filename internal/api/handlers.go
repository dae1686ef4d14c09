package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/service/lifecycle"
)

// OrderService — операции контроллера, доступные через HTTP.
type OrderService interface {
	CreateOrder(ctx context.Context, in lifecycle.CreateOrderInput) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, patch domain.OrderPatch) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, q lifecycle.ListQuery) ([]domain.Order, error)
	InventoryReport(ctx context.Context, threshold, limit int) ([]domain.Product, error)
	SetStock(ctx context.Context, productID, size string, stock int) (domain.Product, error)
	SalesReport(ctx context.Context) ([]domain.StatusSales, error)
	ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error)
	DashboardStats(ctx context.Context) (domain.DashboardStats, error)
	RevenueSeries(ctx context.Context, q lifecycle.RevenueQuery) ([]domain.RevenuePoint, error)
}

type OrderHandler struct {
	service OrderService
	logger  *log.Entry
}

func NewOrderHandler(service OrderService, logger *log.Entry) *OrderHandler {
	return &OrderHandler{service: service, logger: logger}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("invalid create order request")
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body", bindingFields(err)))
		return
	}
	order, err := h.service.CreateOrder(c.Request.Context(), req.toInput())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	orders, err := h.service.ListOrders(c.Request.Context(), lifecycle.ListQuery{Limit: limit})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newOrderList(orders))
}

func (h *OrderHandler) ListBuyerOrders(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	orders, err := h.service.ListOrders(c.Request.Context(), lifecycle.ListQuery{BuyerEmail: c.Param("email"), Limit: limit})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newOrderList(orders))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.service.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body", bindingFields(err)))
		return
	}
	order, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.toPatch())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandler) Inventory(c *gin.Context) {
	threshold, ok := queryInt(c, "threshold", lifecycle.DefaultLowStockThreshold)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", lifecycle.DefaultReportLimit)
	if !ok {
		return
	}
	products, err := h.service.InventoryReport(c.Request.Context(), threshold, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"threshold": threshold, "products": out})
}

func (h *OrderHandler) SetStock(c *gin.Context) {
	var req setStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body", bindingFields(err)))
		return
	}
	product, err := h.service.SetStock(c.Request.Context(), c.Param("id"), req.Size, *req.Stock)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, newProductResponse(product))
}

func (h *OrderHandler) SalesReport(c *gin.Context) {
	sales, err := h.service.SalesReport(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	rows := make([]salesRow, 0, len(sales))
	for _, s := range sales {
		rows = append(rows, salesRow{Status: string(s.Status), Revenue: s.Revenue, Count: s.Count})
	}
	c.JSON(http.StatusOK, gin.H{"sales": rows})
}

// ListProducts отдаёт весь склад; ?lowStockOnly=true оставляет только заканчивающиеся товары.
func (h *OrderHandler) ListProducts(c *gin.Context) {
	lowStockOnly, ok := queryBool(c, "lowStockOnly")
	if !ok {
		return
	}
	products, err := h.service.ListProducts(c.Request.Context(), lowStockOnly)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (h *OrderHandler) DashboardStats(c *gin.Context) {
	stats, err := h.service.DashboardStats(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dashboardResponse{
		TotalRevenue:  stats.TotalRevenue,
		TotalOrders:   stats.TotalOrders,
		PendingOrders: stats.PendingOrders,
	})
}

func (h *OrderHandler) RevenueSeries(c *gin.Context) {
	start, ok := queryDate(c, "startDate")
	if !ok {
		return
	}
	end, ok := queryDate(c, "endDate")
	if !ok {
		return
	}
	points, err := h.service.RevenueSeries(c.Request.Context(), lifecycle.RevenueQuery{
		Range:     c.Query("range"),
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	rows := make([]revenuePoint, 0, len(points))
	for _, p := range points {
		rows = append(rows, revenuePoint{Period: p.Period, Revenue: p.Revenue, Orders: p.Orders})
	}
	c.JSON(http.StatusOK, gin.H{"series": rows})
}

func queryBool(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid query parameter", []FieldError{
			{Field: name, Message: "must be true or false"},
		}))
		return false, false
	}
	return v, true
}

// queryDate читает дату вида 2006-01-02 в UTC.
func queryDate(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	v, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid query parameter", []FieldError{
			{Field: name, Message: "must be a date in YYYY-MM-DD format"},
		}))
		return time.Time{}, false
	}
	return v, true
}

// queryInt читает необязательный целочисленный параметр; при ошибке ответ уже записан.
func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid query parameter", []FieldError{
			{Field: name, Message: "must be a non-negative integer"},
		}))
		return 0, false
	}
	return v, true
}
