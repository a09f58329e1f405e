package api

import (
	"net/http"

	"pantry-service/internal/models"
	"pantry-service/internal/service"
	"pantry-service/internal/store"

	"github.com/gin-gonic/gin"
)

type kioskCheckoutRequest struct {
	CartKey  string `json:"cart_key"`
	ClientID string `json:"client_id"`
}

type updateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

func (h *Handler) getCart(c *gin.Context) {
	summary, err := h.carts.Summary(c.Request.Context(), c.Param("key"), c.Query("client_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) clearCart(c *gin.Context) {
	if err := h.carts.ClearCart(c.Request.Context(), c.Param("key")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addToCart(c *gin.Context) {
	var req service.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	cart, err := h.carts.AddToCart(c.Request.Context(), c.Param("key"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) removeFromCart(c *gin.Context) {
	cart, err := h.carts.RemoveFromCart(c.Request.Context(), c.Param("key"), c.Param("product_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// checkout handles order placement. The Idempotency-Key header is used when
// the body carries no key.
func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orders.Checkout(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) kioskCheckout(c *gin.Context) {
	var req kioskCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	order, err := h.orders.KioskCheckout(c.Request.Context(), req.CartKey, req.ClientID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.respondError(c, err)
		return
	}

	orders, err := h.orders.ListOrders(c.Request.Context(), store.OrderFilter{
		ClientID: c.Query("client_id"),
		Status:   models.OrderStatus(c.Query("status")),
		Limit:    limit,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) orderMovements(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	movements, err := h.orders.OrderMovements(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": id, "movements": movements})
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	order, err := h.orders.UpdateStatus(c.Request.Context(), id, req.Status, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
