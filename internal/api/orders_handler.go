package api

import (
	"context"
	"net/http"
	"time"

	"minimart/internal/models"
	"minimart/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderService is the order workflow surface the handler depends on.
type OrderService interface {
	CreateOrder(ctx context.Context, userID string, items []service.OrderItemRequest) (*models.Order, error)
	ListOrdersForUser(ctx context.Context, userID string) ([]models.Order, error)
}

// OrdersHandler contains the order service HTTP handlers
type OrdersHandler struct {
	orders OrderService
}

// NewOrdersHandler creates a new orders handler
func NewOrdersHandler(orders OrderService) *OrdersHandler {
	return &OrdersHandler{orders: orders}
}

// SetupRoutes sets up HTTP routes
func (h *OrdersHandler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", healthCheck)
	router.GET("/ready", readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := router.Group("/", RequireUser())
	{
		authed.POST("/orders", h.createOrder)
		authed.GET("/orders/me", h.listMyOrders)
	}
}

type createOrderRequest struct {
	Items []service.OrderItemRequest `json:"items"`
}

// createOrder handles POST /orders
func (h *OrdersHandler) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), currentUser(c), req.Items)
	if err != nil {
		if service.IsClientError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create order"})
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listMyOrders handles GET /orders/me
func (h *OrdersHandler) listMyOrders(c *gin.Context) {
	orders, err := h.orders.ListOrdersForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list orders"})
		return
	}

	c.JSON(http.StatusOK, orders)
}

// healthCheck handles health check requests
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
