package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"gorm.io/gorm"
)

// QuotationService owns the quotation side of the pipeline: creating and
// approving quotations, and the one-way conversion into a work order.
type QuotationService struct {
	quotationRepo *repository.QuotationRepository
	clientRepo    *repository.ClientRepository
	db            *gorm.DB
	cache         *PipelineCache
}

func NewQuotationService(quotationRepo *repository.QuotationRepository, clientRepo *repository.ClientRepository, db *gorm.DB, cache *PipelineCache) *QuotationService {
	return &QuotationService{quotationRepo: quotationRepo, clientRepo: clientRepo, db: db, cache: cache}
}

type QuotationItemRequest struct {
	Description string  `json:"description" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" binding:"gte=0"`
}

type CreateQuotationRequest struct {
	ClientID  string                 `json:"client_id" binding:"required"`
	VehicleID string                 `json:"vehicle_id"`
	Notes     string                 `json:"notes"`
	Items     []QuotationItemRequest `json:"items" binding:"required,min=1,dive"`
}

func (s *QuotationService) Create(ctx context.Context, tenantID, actorID string, req *CreateQuotationRequest) (*entity.Quotation, error) {
	if _, err := s.clientRepo.FindByID(ctx, tenantID, req.ClientID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("client: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("resolve client: %w", err)
	}

	q := &entity.Quotation{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		ClientID:      req.ClientID,
		Status:        entity.QuotationStatusDraft,
		PipelineStage: entity.StageQuotation,
		Notes:         req.Notes,
		CreatedBy:     actorID,
	}
	if req.VehicleID != "" {
		q.VehicleID = &req.VehicleID
	}

	var total float64
	for i, item := range req.Items {
		lineTotal := item.Quantity * item.UnitPrice
		total += lineTotal
		q.Items = append(q.Items, entity.QuotationItem{
			ID:          uuid.New().String(),
			QuotationID: q.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  lineTotal,
			SortOrder:   i + 1,
		})
	}
	q.TotalAmount = total

	if err := s.quotationRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create quotation: %w", err)
	}
	return q, nil
}

func (s *QuotationService) Get(ctx context.Context, tenantID, id string) (*entity.Quotation, error) {
	q, err := s.quotationRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find quotation: %w", err)
	}
	return q, nil
}

func (s *QuotationService) List(ctx context.Context, tenantID string, params repository.QuotationListParams) ([]entity.Quotation, int64, error) {
	return s.quotationRepo.List(ctx, tenantID, params)
}

// SetStatus moves a quotation along its lifecycle (draft→sent→approved or
// rejected). Conversion has its own path and is not reachable from here.
func (s *QuotationService) SetStatus(ctx context.Context, tenantID, id, status string) (*entity.Quotation, error) {
	if status == entity.QuotationStatusConverted {
		return nil, ErrInvalidState
	}
	q, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !entity.QuotationCanTransition(q.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidState, q.Status, status)
	}
	q.Status = status
	if err := s.quotationRepo.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("update quotation: %w", err)
	}
	return q, nil
}

// ConvertOptions carries optional overrides applied to the new work order.
type ConvertOptions struct {
	Notes string `json:"notes"`
}

// Convert turns an approved quotation into a work order, exactly once.
//
// Every precondition is checked before any write and all failures are
// reported together. On success the work order, its parts, and the
// quotation update commit in a single transaction.
func (s *QuotationService) Convert(ctx context.Context, tenantID, quotationID, actorID string, opts ConvertOptions) (*entity.WorkOrder, error) {
	q, err := s.quotationRepo.FindByID(ctx, tenantID, quotationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find quotation: %w", err)
	}

	if q.WorkOrderID != nil {
		return nil, ErrAlreadyConverted
	}
	if q.Status != entity.QuotationStatusApproved {
		return nil, fmt.Errorf("%w: quotation status is %s (must be %s)", ErrInvalidState, q.Status, entity.QuotationStatusApproved)
	}

	var missing []string

	client, err := s.clientRepo.FindByID(ctx, tenantID, q.ClientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			missing = append(missing, "client: not found")
		} else {
			return nil, fmt.Errorf("resolve client: %w", err)
		}
	} else if client.RUT == "" {
		missing = append(missing, "client.rut: tax identifier is required")
	}

	if q.VehicleID == nil || *q.VehicleID == "" {
		missing = append(missing, "vehicle_id: vehicle is required")
	} else if _, err := s.clientRepo.FindVehicleByID(ctx, tenantID, *q.VehicleID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			missing = append(missing, "vehicle_id: vehicle not found")
		} else {
			return nil, fmt.Errorf("resolve vehicle: %w", err)
		}
	}
	if len(q.Items) == 0 {
		missing = append(missing, "items: at least one line item is required")
	}
	var total float64
	for i, item := range q.Items {
		if item.Description == "" {
			missing = append(missing, fmt.Sprintf("items[%d].description: must not be empty", i))
		}
		if item.Quantity <= 0 {
			missing = append(missing, fmt.Sprintf("items[%d].quantity: must be greater than zero", i))
		}
		if item.UnitPrice < 0 {
			missing = append(missing, fmt.Sprintf("items[%d].unit_price: must not be negative", i))
		}
		total += item.Quantity * item.UnitPrice
	}
	if len(q.Items) > 0 && total <= 0 {
		missing = append(missing, "total: computed total must be greater than zero")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	now := time.Now()
	wo := &entity.WorkOrder{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Code:        fmt.Sprintf("OT-%s%04d", now.Format("20060102"), now.UnixNano()%10000),
		ClientID:    q.ClientID,
		VehicleID:   q.VehicleID,
		QuotationID: &q.ID,
		Status:      entity.WOStatusPending,
		Notes:       opts.Notes,
		CreatedBy:   actorID,
	}

	var partsCost float64
	for i, item := range q.Items {
		partsCost += item.TotalPrice
		wo.Parts = append(wo.Parts, entity.WorkOrderPart{
			ID:          uuid.New().String(),
			WorkOrderID: wo.ID,
			Name:        item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.TotalPrice,
			SortOrder:   i + 1,
		})
	}
	wo.PartsCost = partsCost
	wo.TotalCost = partsCost

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(wo).Error; err != nil {
			return fmt.Errorf("create work order: %w", err)
		}
		// Guarded update: the WHERE clause refuses a quotation that another
		// request converted between our read and this write.
		res := tx.Model(&entity.Quotation{}).
			Where("id = ? AND tenant_id = ? AND status = ? AND work_order_id IS NULL",
				q.ID, tenantID, entity.QuotationStatusApproved).
			Updates(map[string]interface{}{
				"status":         entity.QuotationStatusConverted,
				"pipeline_stage": entity.StageWorkOrder,
				"work_order_id":  wo.ID,
				"converted_at":   now,
				"converted_by":   actorID,
			})
		if res.Error != nil {
			return fmt.Errorf("mark quotation converted: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyConverted
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyConverted) {
			return nil, ErrAlreadyConverted
		}
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	s.cache.Invalidate(ctx, tenantID, q.ID)
	return wo, nil
}
