package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/posbuzz/internal/core/domain"
)

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var in domain.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	product, err := h.products.Create(c.Request.Context(), in)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	product, err := h.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *HTTPHandler) UpdateProduct(c *gin.Context) {
	var patch domain.ProductPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeBindError(c, err)
		return
	}

	product, err := h.products.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	if err := h.products.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Product deleted successfully"})
}
