package api

import (
	"net/http"

	"pantry-service/internal/models"

	"github.com/gin-gonic/gin"
)

// shopCategory lists what a client can take from one category.
// Repeated diet parameters narrow the list to products carrying every tag.
func (h *Handler) shopCategory(c *gin.Context) {
	var diets []models.Tag
	for _, d := range c.QueryArray("diet") {
		diets = append(diets, models.Tag(d))
	}

	items, err := h.shop.ShopCategory(c.Request.Context(), c.Query("client_id"), models.Category(c.Param("category")), diets)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": c.Param("category"), "items": items})
}

func (h *Handler) revenueReport(c *gin.Context) {
	report, err := h.reports.Revenue(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) balanceReport(c *gin.Context) {
	balances, err := h.reports.BalanceReport(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (h *Handler) dashboard(c *gin.Context) {
	dashboard, err := h.reports.Dashboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}
