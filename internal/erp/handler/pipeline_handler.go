package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tallerpro/taller-erp/internal/erp/service"
)

type PipelineHandler struct {
	svc *service.PipelineService
}

func NewPipelineHandler(svc *service.PipelineService) *PipelineHandler {
	return &PipelineHandler{svc: svc}
}

// Status handles GET /quotations/:id/pipeline
func (h *PipelineHandler) Status(c *gin.Context) {
	status, err := h.svc.Status(c.Request.Context(), GetTenantID(c), c.Param("id"))
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, status)
}
