package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/service"
)

// OrderHandler mantiene dependencias para endpoints de órdenes.
type OrderHandler struct {
	logger    *zap.Logger
	orderServ *service.OrderService
}

// NewOrderHandler crea una instancia de OrderHandler con dependencias necesarias.
func NewOrderHandler(logger *zap.Logger, orderServ *service.OrderService) *OrderHandler {
	return &OrderHandler{
		logger:    logger,
		orderServ: orderServ,
	}
}

// PlaceOrder maneja POST /orders.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	session, ok := GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	var req struct {
		Items []struct {
			ProductID string `json:"product_id" binding:"required"`
			Quantity  int    `json:"quantity" binding:"required"`
		} `json:"items" binding:"required"`
		ShippingAddress domain.Address `json:"shipping_address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid place order request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	input := service.PlaceOrderInput{ShippingAddress: req.ShippingAddress}
	for _, item := range req.Items {
		input.Items = append(input.Items, service.OrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orderServ.Place(c.Request.Context(), session.UserID, input)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyOrder), errors.Is(err, service.ErrInvalidQuantity):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrProductUnavailable):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrOutOfStock):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("place order failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not place order"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// ListOrders maneja GET /orders y lista solo las órdenes del solicitante.
func (h *OrderHandler) ListOrders(c *gin.Context) {
	session, ok := GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	page, limit, offset := parsePagination(c)
	orders, total, err := h.orderServ.ListForUser(c.Request.Context(), session.UserID, limit, offset)
	if err != nil {
		h.logger.Error("list orders failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list orders"})
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	c.JSON(http.StatusOK, pagedResponse(orders, page, limit, total))
}

// GetOrder maneja GET /orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	session, ok := GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	order, err := h.orderServ.Get(c.Request.Context(), c.Param("id"), session.UserID, session.Role == domain.RoleAdmin)
	if err != nil {
		h.writeOrderError(c, err, "get order failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// CancelOrder maneja POST /orders/:id/cancel.
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	session, ok := GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	order, err := h.orderServ.Cancel(c.Request.Context(), c.Param("id"), session.UserID)
	if err != nil {
		h.writeOrderError(c, err, "cancel order failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// AdminListOrders maneja GET /admin/orders.
func (h *OrderHandler) AdminListOrders(c *gin.Context) {
	page, limit, offset := parsePagination(c)
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))

	orders, total, err := h.orderServ.ListAll(c.Request.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown order status"})
			return
		}
		h.logger.Error("admin list orders failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list orders"})
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}

	c.JSON(http.StatusOK, pagedResponse(orders, page, limit, total))
}

// AdminUpdateOrderStatus maneja PUT /admin/orders/:id/status.
func (h *OrderHandler) AdminUpdateOrderStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid order status request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	order, err := h.orderServ.AdminUpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		if errors.Is(err, service.ErrInvalidStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown order status"})
			return
		}
		h.writeOrderError(c, err, "admin update order status failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *OrderHandler) writeOrderError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, service.ErrNotOrderOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, service.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error(logMsg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not process order"})
	}
}
