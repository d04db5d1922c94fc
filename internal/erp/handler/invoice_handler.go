package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/service"
)

type InvoiceHandler struct {
	svc *service.InvoicingService
}

func NewInvoiceHandler(svc *service.InvoicingService) *InvoiceHandler {
	return &InvoiceHandler{svc: svc}
}

// Get handles GET /invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	inv, err := h.svc.Get(c.Request.Context(), GetTenantID(c), c.Param("id"))
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, inv)
}

// List handles GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	page, size := GetPagination(c)
	dteType, _ := strconv.Atoi(c.Query("dte_type"))
	items, total, err := h.svc.List(c.Request.Context(), GetTenantID(c), repository.InvoiceListParams{
		DTEType:  dteType,
		ClientID: c.Query("client_id"),
		Status:   c.Query("status"),
		Page:     page,
		Size:     size,
	})
	if err != nil {
		InternalError(c, "list invoices: "+err.Error())
		return
	}
	Success(c, gin.H{
		"items":      items,
		"pagination": Pagination{Page: page, PageSize: size, Total: total},
	})
}

// RegisterCaf handles POST /caf-folios
func (h *InvoiceHandler) RegisterCaf(c *gin.Context) {
	var req service.RegisterCafRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	caf, err := h.svc.RegisterCaf(c.Request.Context(), GetTenantID(c), req)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Created(c, caf)
}
