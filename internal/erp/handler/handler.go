package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tallerpro/taller-erp/internal/erp/service"
	"github.com/tallerpro/taller-erp/internal/shared/dte"
)

// Handlers bundles every ERP HTTP handler.
type Handlers struct {
	Quotation *QuotationHandler
	WorkOrder *WorkOrderHandler
	Invoice   *InvoiceHandler
	Inventory *InventoryHandler
	Pipeline  *PipelineHandler
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Quotation: NewQuotationHandler(services.Quotation),
		WorkOrder: NewWorkOrderHandler(services.Dispatch, services.Invoicing),
		Invoice:   NewInvoiceHandler(services.Invoicing),
		Inventory: NewInventoryHandler(services.Inventory),
		Pipeline:  NewPipelineHandler(services.Pipeline),
	}
}

// Response is the common response envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination info for list responses.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{Code: 0, Message: "success", Data: data})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{Code: code, Message: message})
}

func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{Code: code, Message: message, Data: data})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// PipelineError maps the service error taxonomy onto the envelope.
// Validation and stock errors carry their full field/shortfall lists in
// the data payload.
func PipelineError(c *gin.Context, err error) {
	var validation *service.ValidationError
	var insufficient *service.InsufficientStockError

	switch {
	case errors.As(err, &validation):
		ErrorWithData(c, 42200, "validation failed", gin.H{"fields": validation.Fields})
	case errors.As(err, &insufficient):
		ErrorWithData(c, 40901, "insufficient stock", gin.H{"shortfalls": insufficient.Shortfalls})
	case errors.Is(err, service.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrAlreadyConverted),
		errors.Is(err, service.ErrAlreadyInvoiced):
		Conflict(c, err.Error())
	case errors.Is(err, service.ErrInvalidState):
		Conflict(c, err.Error())
	case errors.Is(err, service.ErrOutOfFolios):
		Conflict(c, err.Error())
	case errors.Is(err, dte.ErrDraftUnusable):
		ErrorWithData(c, 42201, "document draft rejected", gin.H{"detail": err.Error()})
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID returns the acting user id set by the JWT middleware.
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetTenantID returns the tenant id set by the JWT middleware.
func GetTenantID(c *gin.Context) string {
	tenantID, _ := c.Get("tenant_id")
	if id, ok := tenantID.(string); ok {
		return id
	}
	return ""
}

// GetPagination reads page/page_size query params.
func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}
