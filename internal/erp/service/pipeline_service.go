package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"gorm.io/gorm"
)

const pipelineCacheTTL = 30 * time.Second

// PipelineCache caches pipeline status snapshots in Redis. A nil Redis
// client disables caching entirely; every gate invalidates the chain's key
// after a successful mutation.
type PipelineCache struct {
	rdb *redis.Client
}

func NewPipelineCache(rdb *redis.Client) *PipelineCache {
	return &PipelineCache{rdb: rdb}
}

func (c *PipelineCache) key(tenantID, quotationID string) string {
	return fmt.Sprintf("pipeline:%s:%s", tenantID, quotationID)
}

func (c *PipelineCache) Get(ctx context.Context, tenantID, quotationID string, out interface{}) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	data, err := c.rdb.Get(ctx, c.key(tenantID, quotationID)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

func (c *PipelineCache) Set(ctx context.Context, tenantID, quotationID string, value interface{}) {
	if c == nil || c.rdb == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, c.key(tenantID, quotationID), data, pipelineCacheTTL)
}

func (c *PipelineCache) Invalidate(ctx context.Context, tenantID, quotationID string) {
	if c == nil || c.rdb == nil {
		return
	}
	c.rdb.Del(ctx, c.key(tenantID, quotationID))
}

// PipelineStatus is the read-only snapshot of one quotation→invoice chain.
type PipelineStatus struct {
	QuotationID     string             `json:"quotation_id"`
	QuotationStatus string             `json:"quotation_status"`
	Stage           string             `json:"stage"`
	TotalAmount     float64            `json:"total_amount"`
	WorkOrder       *PipelineWorkOrder `json:"work_order,omitempty"`
	Invoice         *PipelineInvoice   `json:"invoice,omitempty"`
}

type PipelineWorkOrder struct {
	ID              string  `json:"id"`
	Code            string  `json:"code"`
	Status          string  `json:"status"`
	PartsDispatched bool    `json:"parts_dispatched"`
	DispatchedParts int     `json:"dispatched_parts"`
	PartsCost       float64 `json:"parts_cost"`
	LaborCost       float64 `json:"labor_cost"`
	TotalCost       float64 `json:"total_cost"`
}

type PipelineInvoice struct {
	ID          string  `json:"id"`
	DTEType     int     `json:"dte_type"`
	Folio       int64   `json:"folio"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"total_amount"`
}

// PipelineService reconstructs the current stage of a chain from its three
// entities. Read-only; no transaction requirements beyond read consistency.
type PipelineService struct {
	quotationRepo *repository.QuotationRepository
	woRepo        *repository.WorkOrderRepository
	invoiceRepo   *repository.InvoiceRepository
	cache         *PipelineCache
}

func NewPipelineService(quotationRepo *repository.QuotationRepository, woRepo *repository.WorkOrderRepository, invoiceRepo *repository.InvoiceRepository, cache *PipelineCache) *PipelineService {
	return &PipelineService{quotationRepo: quotationRepo, woRepo: woRepo, invoiceRepo: invoiceRepo, cache: cache}
}

// Status returns the pipeline snapshot for a quotation.
func (s *PipelineService) Status(ctx context.Context, tenantID, quotationID string) (*PipelineStatus, error) {
	var cached PipelineStatus
	if s.cache.Get(ctx, tenantID, quotationID, &cached) {
		return &cached, nil
	}

	q, err := s.quotationRepo.FindByID(ctx, tenantID, quotationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find quotation: %w", err)
	}

	status := &PipelineStatus{
		QuotationID:     q.ID,
		QuotationStatus: q.Status,
		Stage:           q.PipelineStage,
		TotalAmount:     q.TotalAmount,
	}

	if q.WorkOrderID != nil {
		wo, err := s.woRepo.FindByID(ctx, tenantID, *q.WorkOrderID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find work order: %w", err)
		}
		if wo != nil {
			dispatched := 0
			for _, p := range wo.Parts {
				if p.IsDispatched {
					dispatched++
				}
			}
			status.WorkOrder = &PipelineWorkOrder{
				ID:              wo.ID,
				Code:            wo.Code,
				Status:          wo.Status,
				PartsDispatched: wo.PartsDispatched,
				DispatchedParts: dispatched,
				PartsCost:       wo.PartsCost,
				LaborCost:       wo.LaborCost,
				TotalCost:       wo.TotalCost,
			}
		}
	}

	if q.InvoiceID != nil {
		inv, err := s.invoiceRepo.FindByID(ctx, tenantID, *q.InvoiceID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find invoice: %w", err)
		}
		if inv != nil {
			status.Invoice = &PipelineInvoice{
				ID:          inv.ID,
				DTEType:     inv.DTEType,
				Folio:       inv.Folio,
				Status:      inv.Status,
				TotalAmount: inv.TotalAmount,
			}
		}
	}

	s.cache.Set(ctx, tenantID, quotationID, status)
	return status, nil
}
