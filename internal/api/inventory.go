package api

import (
	"net/http"

	"pantry-service/internal/models"
	"pantry-service/internal/store"

	"github.com/gin-gonic/gin"
)

type updateMovementRequest struct {
	models.MovementUpdate
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type deleteMovementRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

func (h *Handler) listMovements(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.respondError(c, err)
		return
	}

	filter := store.MovementFilter{
		ProductID:  c.Query("product_id"),
		Location:   c.Query("location"),
		ToLocation: c.Query("to_location"),
		Limit:      limit,
	}
	if raw := c.Query("order_id"); raw != "" {
		orderID, err := queryInt(c, "order_id")
		if err != nil {
			h.respondError(c, err)
			return
		}
		id := int64(orderID)
		filter.OrderID = &id
	}

	movements, err := h.ledger.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

func (h *Handler) appendMovement(c *gin.Context) {
	var req models.MovementInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	movement, err := h.ledger.Append(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, movement)
}

func (h *Handler) getMovement(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	movement, err := h.ledger.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

func (h *Handler) updateMovement(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req updateMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	movement, err := h.ledger.Update(c.Request.Context(), id, req.MovementUpdate, req.Reason, req.Actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

func (h *Handler) deleteMovement(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	req := deleteMovementRequest{Reason: c.Query("reason"), Actor: c.Query("actor")}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondError(c, badRequest("invalid request body", err))
			return
		}
	}

	if err := h.ledger.Delete(c.Request.Context(), id, req.Reason, req.Actor); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) movementCorrections(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		h.respondError(c, err)
		return
	}

	corrections, err := h.ledger.Corrections(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"corrections": corrections})
}

func (h *Handler) productMovements(c *gin.Context) {
	movements, err := h.ledger.ListForProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

func (h *Handler) productAvailability(c *gin.Context) {
	availability, err := h.availability.Cached(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, availability)
}

func (h *Handler) productBalances(c *gin.Context) {
	balances, err := h.availability.BalanceByLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("id"), "balances": balances})
}

func (h *Handler) productOutbound(c *gin.Context) {
	outbound, err := h.availability.OutboundByLocation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("id"), "outbound": outbound})
}

func (h *Handler) verifyProduct(c *gin.Context) {
	if err := h.availability.Verify(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("id"), "consistent": true})
}

func (h *Handler) rebuildInventory(c *gin.Context) {
	if err := h.availability.Rebuild(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rebuilt"})
}
