package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/erp/service"
)

type InventoryHandler struct {
	svc *service.InventoryService
}

func NewInventoryHandler(svc *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// List handles GET /inventory
func (h *InventoryHandler) List(c *gin.Context) {
	page, size := GetPagination(c)
	params := repository.ItemListParams{
		Keyword:  c.Query("q"),
		LowStock: c.Query("low_stock") == "true",
		Page:     page,
		Size:     size,
	}
	items, total, err := h.svc.ListItems(c.Request.Context(), GetTenantID(c), params)
	if err != nil {
		InternalError(c, "list inventory: "+err.Error())
		return
	}
	Success(c, gin.H{
		"items":      items,
		"pagination": Pagination{Page: page, PageSize: size, Total: total},
	})
}

// Get handles GET /inventory/:id
func (h *InventoryHandler) Get(c *gin.Context) {
	item, err := h.svc.GetItem(c.Request.Context(), GetTenantID(c), c.Param("id"))
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, item)
}

// Create handles POST /inventory
func (h *InventoryHandler) Create(c *gin.Context) {
	var req service.ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	item, err := h.svc.CreateItem(c.Request.Context(), GetTenantID(c), req)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Created(c, item)
}

// Update handles PUT /inventory/:id
func (h *InventoryHandler) Update(c *gin.Context) {
	var req service.ItemUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	item, err := h.svc.UpdateItem(c.Request.Context(), GetTenantID(c), c.Param("id"), req)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, item)
}

// Receive handles POST /inventory/receive
func (h *InventoryHandler) Receive(c *gin.Context) {
	var req service.ReceiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	mv, err := h.svc.Receive(c.Request.Context(), GetTenantID(c), GetUserID(c), req)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Created(c, mv)
}

// Adjust handles POST /inventory/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req service.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	mv, err := h.svc.Adjust(c.Request.Context(), GetTenantID(c), GetUserID(c), req)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Created(c, mv)
}

// Movements handles GET /inventory/movements
func (h *InventoryHandler) Movements(c *gin.Context) {
	page, size := GetPagination(c)
	params := repository.MovementListParams{
		ItemID:       c.Query("item_id"),
		WorkOrderID:  c.Query("work_order_id"),
		MovementType: c.Query("type"),
		Page:         page,
		Size:         size,
	}
	movements, total, err := h.svc.ListMovements(c.Request.Context(), GetTenantID(c), params)
	if err != nil {
		InternalError(c, "list movements: "+err.Error())
		return
	}
	Success(c, gin.H{
		"items":      movements,
		"pagination": Pagination{Page: page, PageSize: size, Total: total},
	})
}

// ExportMovements handles GET /inventory/movements/export
func (h *InventoryHandler) ExportMovements(c *gin.Context) {
	params := repository.MovementListParams{
		ItemID:       c.Query("item_id"),
		WorkOrderID:  c.Query("work_order_id"),
		MovementType: c.Query("type"),
	}
	f, filename, err := h.svc.ExportMovements(c.Request.Context(), GetTenantID(c), params)
	if err != nil {
		InternalError(c, "export movements: "+err.Error())
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := f.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
