package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/service"
)

type QuotationHandler struct {
	svc *service.QuotationService
}

func NewQuotationHandler(svc *service.QuotationService) *QuotationHandler {
	return &QuotationHandler{svc: svc}
}

// Create handles POST /quotations
func (h *QuotationHandler) Create(c *gin.Context) {
	var req service.CreateQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q, err := h.svc.Create(c.Request.Context(), GetTenantID(c), GetUserID(c), &req)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Created(c, q)
}

// Get handles GET /quotations/:id
func (h *QuotationHandler) Get(c *gin.Context) {
	q, err := h.svc.Get(c.Request.Context(), GetTenantID(c), c.Param("id"))
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, q)
}

// List handles GET /quotations
func (h *QuotationHandler) List(c *gin.Context) {
	page, size := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), GetTenantID(c), repository.QuotationListParams{
		Status:   c.Query("status"),
		ClientID: c.Query("client_id"),
		Stage:    c.Query("stage"),
		Page:     page,
		Size:     size,
	})
	if err != nil {
		InternalError(c, "list quotations: "+err.Error())
		return
	}
	Success(c, gin.H{
		"items":      items,
		"pagination": Pagination{Page: page, PageSize: size, Total: total},
	})
}

// Send handles POST /quotations/:id/send
func (h *QuotationHandler) Send(c *gin.Context) {
	q, err := h.svc.SetStatus(c.Request.Context(), GetTenantID(c), c.Param("id"), entity.QuotationStatusSent)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, q)
}

// Approve handles POST /quotations/:id/approve
func (h *QuotationHandler) Approve(c *gin.Context) {
	q, err := h.svc.SetStatus(c.Request.Context(), GetTenantID(c), c.Param("id"), entity.QuotationStatusApproved)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, q)
}

// Reject handles POST /quotations/:id/reject
func (h *QuotationHandler) Reject(c *gin.Context) {
	q, err := h.svc.SetStatus(c.Request.Context(), GetTenantID(c), c.Param("id"), entity.QuotationStatusRejected)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, q)
}

// Convert handles POST /quotations/:id/convert
func (h *QuotationHandler) Convert(c *gin.Context) {
	var opts service.ConvertOptions
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	wo, err := h.svc.Convert(c.Request.Context(), GetTenantID(c), c.Param("id"), GetUserID(c), opts)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Created(c, wo)
}
