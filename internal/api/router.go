package api

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RouterConfig — зависимости HTTP-роутера.
type RouterConfig struct {
	Service        OrderService
	Tokens         TokenValidator
	AllowedOrigins []string
	Logger         *log.Entry
}

// NewRouter собирает gin.Engine с маршрутами заказов и склада.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: len(origins) != 1 || origins[0] != "*",
	}))
	r.Use(Authenticate(cfg.Tokens))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := NewOrderHandler(cfg.Service, logger)
	api := r.Group("/api")

	orders := api.Group("/orders")
	orders.POST("", h.CreateOrder)
	orders.GET("/buyer/:email", h.ListBuyerOrders)
	staff := orders.Group("", RequireAuth())
	staff.GET("", h.ListOrders)
	staff.GET("/reports/sales", h.SalesReport)
	staff.GET("/reports/dashboard", h.DashboardStats)
	staff.GET("/reports/revenue", h.RevenueSeries)
	staff.GET("/:id", h.GetOrder)
	staff.PATCH("/:id", h.UpdateOrder)

	inventory := api.Group("/inventory", RequireAuth())
	inventory.GET("", h.Inventory)
	inventory.GET("/products", h.ListProducts)
	inventory.PATCH("/:id", h.SetStock)

	return r
}
