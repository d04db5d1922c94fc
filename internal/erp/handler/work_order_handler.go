package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/service"
)

type WorkOrderHandler struct {
	dispatchSvc  *service.DispatchService
	invoicingSvc *service.InvoicingService
}

func NewWorkOrderHandler(dispatchSvc *service.DispatchService, invoicingSvc *service.InvoicingService) *WorkOrderHandler {
	return &WorkOrderHandler{dispatchSvc: dispatchSvc, invoicingSvc: invoicingSvc}
}

// Get handles GET /work-orders/:id
func (h *WorkOrderHandler) Get(c *gin.Context) {
	wo, err := h.dispatchSvc.Get(c.Request.Context(), GetTenantID(c), c.Param("id"))
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, wo)
}

// List handles GET /work-orders
func (h *WorkOrderHandler) List(c *gin.Context) {
	page, size := GetPagination(c)
	items, total, err := h.dispatchSvc.List(c.Request.Context(), GetTenantID(c), repository.WOListParams{
		Status:   c.Query("status"),
		ClientID: c.Query("client_id"),
		Page:     page,
		Size:     size,
	})
	if err != nil {
		InternalError(c, "list work orders: "+err.Error())
		return
	}
	Success(c, gin.H{
		"items":      items,
		"pagination": Pagination{Page: page, PageSize: size, Total: total},
	})
}

type dispatchRequest struct {
	Lines []service.DispatchLine `json:"lines" binding:"required,min=1,dive"`
	Notes string                 `json:"notes"`
}

// Dispatch handles POST /work-orders/:id/dispatch
func (h *WorkOrderHandler) Dispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	result, err := h.dispatchSvc.Dispatch(c.Request.Context(), GetTenantID(c), c.Param("id"), req.Lines, GetUserID(c), req.Notes)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, result)
}

// Complete handles POST /work-orders/:id/complete
func (h *WorkOrderHandler) Complete(c *gin.Context) {
	var req service.CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	wo, err := h.dispatchSvc.Complete(c.Request.Context(), GetTenantID(c), c.Param("id"), GetUserID(c), req)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, wo)
}

// ValidateInvoice handles GET /work-orders/:id/invoice-check
func (h *WorkOrderHandler) ValidateInvoice(c *gin.Context) {
	ok, missing, err := h.invoicingSvc.Validate(c.Request.Context(), GetTenantID(c), c.Param("id"))
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, gin.H{"billable": ok, "missing_fields": missing})
}

type invoiceRequest struct {
	DTEType int `json:"dte_type" binding:"required"`
}

// Invoice handles POST /work-orders/:id/invoice
func (h *WorkOrderHandler) Invoice(c *gin.Context) {
	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	invoice, wo, err := h.invoicingSvc.Invoice(c.Request.Context(), GetTenantID(c), c.Param("id"), req.DTEType, GetUserID(c))
	if err != nil {
		PipelineError(c, err)
		return
	}
	Created(c, gin.H{"invoice": invoice, "work_order": wo})
}
