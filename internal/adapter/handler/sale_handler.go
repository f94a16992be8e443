package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/posbuzz/internal/adapter/receipt"
	"github.com/rl1809/posbuzz/internal/core/domain"
)

func (h *HTTPHandler) CreateSale(c *gin.Context) {
	var req domain.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	sale, err := h.sales.CreateSale(c.Request.Context(), req)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *HTTPHandler) ListSales(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "validation_error", "limit must be an integer")
			return
		}
		limit = n
	}

	sales, err := h.sales.ListSales(c.Request.Context(), limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *HTTPHandler) GetSale(c *gin.Context) {
	sale, err := h.sales.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *HTTPHandler) SaleReceipt(c *gin.Context) {
	sale, err := h.sales.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := receipt.WritePDF(&buf, *sale); err != nil {
		writeDomainError(c, fmt.Errorf("render receipt: %w", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, sale.ID))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
