package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/repository"
)

// AdminHandler mantiene dependencias para los dashboards de analítica.
type AdminHandler struct {
	logger    *zap.Logger
	analytics repository.AnalyticsRepository
}

// NewAdminHandler crea una instancia de AdminHandler con dependencias necesarias.
func NewAdminHandler(logger *zap.Logger, analytics repository.AnalyticsRepository) *AdminHandler {
	return &AdminHandler{
		logger:    logger,
		analytics: analytics,
	}
}

// Dashboard maneja GET /admin/dashboard.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	totals, err := h.analytics.Totals(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard totals failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load dashboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"totals": totals})
}

// Sales maneja GET /admin/analytics/sales.
func (h *AdminHandler) Sales(c *gin.Context) {
	trunc, since, ok := parseAnalyticsWindow(c)
	if !ok {
		return
	}
	buckets, err := h.analytics.SalesByPeriod(c.Request.Context(), trunc, since)
	if err != nil {
		h.logger.Error("sales analytics failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load sales"})
		return
	}
	if buckets == nil {
		buckets = []repository.TimeBucket{}
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

// Signups maneja GET /admin/analytics/signups.
func (h *AdminHandler) Signups(c *gin.Context) {
	trunc, since, ok := parseAnalyticsWindow(c)
	if !ok {
		return
	}
	buckets, err := h.analytics.SignupsByPeriod(c.Request.Context(), trunc, since)
	if err != nil {
		h.logger.Error("signup analytics failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load signups"})
		return
	}
	if buckets == nil {
		buckets = []repository.TimeBucket{}
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

// TopProducts maneja GET /admin/analytics/top-products.
func (h *AdminHandler) TopProducts(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 {
		days = 30
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	sales, err := h.analytics.TopProducts(c.Request.Context(), since, limit)
	if err != nil {
		h.logger.Error("top products failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load top products"})
		return
	}
	if sales == nil {
		sales = []repository.ProductSales{}
	}
	c.JSON(http.StatusOK, gin.H{"products": sales})
}

// parseAnalyticsWindow traduce period a la unidad de date_trunc y resuelve
// la ventana de días hacia atrás.
func parseAnalyticsWindow(c *gin.Context) (trunc string, since time.Time, ok bool) {
	switch c.DefaultQuery("period", "daily") {
	case "daily":
		trunc = "day"
	case "weekly":
		trunc = "week"
	case "monthly":
		trunc = "month"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "period must be daily, weekly or monthly"})
		return "", time.Time{}, false
	}

	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days < 1 {
		days = 30
	}
	return trunc, time.Now().UTC().AddDate(0, 0, -days), true
}
