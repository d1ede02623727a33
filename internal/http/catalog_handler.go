package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// CatalogHandler mantiene dependencias para endpoints del catálogo.
type CatalogHandler struct {
	logger   *zap.Logger
	products repository.ProductRepository
}

// NewCatalogHandler crea una instancia de CatalogHandler con dependencias necesarias.
func NewCatalogHandler(logger *zap.Logger, products repository.ProductRepository) *CatalogHandler {
	return &CatalogHandler{
		logger:   logger,
		products: products,
	}
}

// ListProducts maneja GET /products.
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	h.listProducts(c, false)
}

// AdminListProducts maneja GET /admin/products e incluye productos inactivos.
func (h *CatalogHandler) AdminListProducts(c *gin.Context) {
	h.listProducts(c, true)
}

func (h *CatalogHandler) listProducts(c *gin.Context, includeInactive bool) {
	page, limit, offset := parsePagination(c)
	minPrice, _ := strconv.ParseInt(c.Query("min_price"), 10, 64)
	maxPrice, _ := strconv.ParseInt(c.Query("max_price"), 10, 64)

	filter := domain.ProductFilter{
		Category:        strings.TrimSpace(c.Query("category")),
		Query:           strings.TrimSpace(c.Query("q")),
		MinPrice:        minPrice,
		MaxPrice:        maxPrice,
		IncludeInactive: includeInactive,
	}

	products, total, err := h.products.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("list products failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list products"})
		return
	}
	if products == nil {
		products = []domain.Product{}
	}

	c.JSON(http.StatusOK, pagedResponse(products, page, limit, total))
}

// GetProduct maneja GET /products/:id. Productos inactivos no son visibles
// en la superficie pública.
func (h *CatalogHandler) GetProduct(c *gin.Context) {
	product, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		h.logger.Error("get product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load product"})
		return
	}
	if !product.Active {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product})
}

// CreateProduct maneja POST /admin/products.
func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Price       int64  `json:"price" binding:"required,gt=0"`
		Stock       int    `json:"stock" binding:"gte=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create product request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Stock:       req.Stock,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.products.Create(c.Request.Context(), product); err != nil {
		h.logger.Error("create product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create product"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"product": product})
}

// UpdateProduct maneja PUT /admin/products/:id.
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		Category    string `json:"category"`
		Price       int64  `json:"price" binding:"required,gt=0"`
		Stock       int    `json:"stock" binding:"gte=0"`
		Active      *bool  `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update product request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	product, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		h.logger.Error("get product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load product"})
		return
	}

	product.Name = req.Name
	product.Description = req.Description
	product.Category = req.Category
	product.Price = req.Price
	product.Stock = req.Stock
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := h.products.Update(c.Request.Context(), product); err != nil {
		h.logger.Error("update product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update product"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product})
}

// DeleteProduct maneja DELETE /admin/products/:id. El borrado es lógico:
// el producto queda inactivo pero las órdenes conservan su snapshot.
func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.products.GetByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		h.logger.Error("get product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load product"})
		return
	}

	if err := h.products.SetActive(c.Request.Context(), id, false); err != nil {
		h.logger.Error("deactivate product failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete product"})
		return
	}

	c.Status(http.StatusNoContent)
}
