package api

import (
	"net/http"

	"pantry-service/internal/models"
	"pantry-service/internal/service"

	"github.com/gin-gonic/gin"
)

type renameRequest struct {
	LocationID string `json:"location_id"`
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(), models.Category(c.Query("category")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// updateProduct overwrites a product; a new product_id in the body renames it
func (h *Handler) updateProduct(c *gin.Context) {
	var req service.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) productKeyAvailable(c *gin.Context) {
	available, err := h.catalog.ProductKeyAvailable(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "available": available})
}

func (h *Handler) listLocations(c *gin.Context) {
	locations, err := h.catalog.ListLocations(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locations": locations})
}

func (h *Handler) createLocation(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	location, err := h.catalog.CreateLocation(c.Request.Context(), req.LocationID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, location)
}

func (h *Handler) renameLocation(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	if err := h.catalog.RenameLocation(c.Request.Context(), c.Param("id"), req.LocationID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"location_id": req.LocationID})
}

func (h *Handler) deleteLocation(c *gin.Context) {
	if err := h.catalog.DeleteLocation(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) locationKeyAvailable(c *gin.Context) {
	available, err := h.catalog.LocationKeyAvailable(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "available": available})
}

func (h *Handler) listClients(c *gin.Context) {
	clients, err := h.catalog.ListClients(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

func (h *Handler) createClient(c *gin.Context) {
	var req service.ClientInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	client, err := h.catalog.CreateClient(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h *Handler) getClient(c *gin.Context) {
	client, err := h.catalog.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *Handler) updateClient(c *gin.Context) {
	var req service.ClientInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, badRequest("invalid request body", err))
		return
	}

	client, err := h.catalog.UpdateClient(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *Handler) clientOrders(c *gin.Context) {
	orders, err := h.orders.ClientOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}
