package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"order-manager/internal/auth"
	"order-manager/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDKey = "userID"

// OrderService is the part of services.OrderService the HTTP layer drives.
type OrderService interface {
	CreateOrAppend(ctx context.Context, userID, productID uint64, quantity int64) (*domain.Order, error)
	AddLine(ctx context.Context, orderID, productID uint64, quantity int64) (*domain.Order, error)
	RemoveLine(ctx context.Context, orderID, productID uint64) (*domain.Order, error)
	RecomputeTotal(ctx context.Context, orderID uint64) (*domain.Order, error)
	AdvanceStatus(ctx context.Context, orderID uint64, status string) (*domain.Order, error)
	GetOrderById(ctx context.Context, id uint64) (*domain.Order, error)
	GetCart(ctx context.Context, userID uint64) (*domain.Order, error)
	ListUserOrders(ctx context.Context, userID uint64) ([]domain.Order, error)
	ListDeliveredOrders(ctx context.Context, userID uint64) ([]domain.Order, error)
}

type Handler struct {
	service OrderService
	auth    auth.Authenticator
	logger  *zap.Logger
}

func NewHandler(s OrderService, a auth.Authenticator, logger *zap.Logger) *Handler {
	return &Handler{service: s, auth: a, logger: logger}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/", h.RequireUser())

	api.POST("/cart/items", h.AddToCart)
	api.GET("/cart", h.GetCart)

	api.GET("/orders/:id", h.GetOrder)
	api.POST("/orders/:id/products", h.AddProduct)
	api.DELETE("/orders/:id/products/:productId", h.RemoveProduct)
	api.PUT("/orders/:id/status/:status", h.UpdateStatus)
	api.POST("/orders/:id/recompute", h.Recompute)

	api.GET("/users/me/orders", h.ListOrders)
	api.GET("/users/me/orders/delivered", h.ListDelivered)
}

// RequireUser authenticates the bearer token and stores the user id on the context.
func (h *Handler) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		userID, err := h.auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			h.abort(c, err)
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (h *Handler) AddToCart(c *gin.Context) {
	var req AddProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	order, err := h.service.CreateOrAppend(c.Request.Context(), currentUser(c), req.ProductID, req.quantity())
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) GetCart(c *gin.Context) {
	order, err := h.service.GetCart(c.Request.Context(), currentUser(c))
	if err != nil {
		h.abort(c, err)
		return
	}
	if order == nil {
		c.JSON(http.StatusOK, MessageResponse{Message: "cart is empty"})
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *Handler) AddProduct(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	var req AddProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	updated, err := h.service.AddLine(c.Request.Context(), order.ID, req.ProductID, req.quantity())
	h.respond(c, updated, err)
}

func (h *Handler) RemoveProduct(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	productID, err := parseID(c.Param("productId"), "productId")
	if err != nil {
		h.abort(c, err)
		return
	}

	updated, err := h.service.RemoveLine(c.Request.Context(), order.ID, productID)
	h.respond(c, updated, err)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	updated, err := h.service.AdvanceStatus(c.Request.Context(), order.ID, c.Param("status"))
	h.respond(c, updated, err)
}

func (h *Handler) Recompute(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	updated, err := h.service.RecomputeTotal(c.Request.Context(), order.ID)
	h.respond(c, updated, err)
}

func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.service.ListUserOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) ListDelivered(c *gin.Context) {
	orders, err := h.service.ListDeliveredOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponses(orders))
}

// ownedOrder loads the :id order and checks it belongs to the caller. It
// writes the error response itself and reports whether the handler may go on.
func (h *Handler) ownedOrder(c *gin.Context) (*domain.Order, bool) {
	id, err := parseID(c.Param("id"), "id")
	if err != nil {
		h.abort(c, err)
		return nil, false
	}
	order, err := h.service.GetOrderById(c.Request.Context(), id)
	if err != nil {
		h.abort(c, err)
		return nil, false
	}
	if order.UserID != currentUser(c) {
		h.abort(c, domain.ErrForbidden)
		return nil, false
	}
	return order, true
}

func (h *Handler) respond(c *gin.Context, order *domain.Order, err error) {
	if err != nil {
		h.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *Handler) abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(status, ErrorResponse{Error: "internal server error"})
		return
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func currentUser(c *gin.Context) uint64 {
	return c.GetUint64(userIDKey)
}

func parseID(raw, name string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidArgument, name)
	}
	return id, nil
}
