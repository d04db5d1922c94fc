package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"gorm.io/gorm"
)

// DispatchService commits inventory against a work order with a two-phase
// validate/commit protocol: a read-only validation pass that rejects the
// whole request on any line failure, then a single transaction that
// re-checks stock under row locks before writing anything.
type DispatchService struct {
	woRepo        *repository.WorkOrderRepository
	inventoryRepo *repository.InventoryRepository
	db            *gorm.DB
	cache         *PipelineCache
}

func NewDispatchService(woRepo *repository.WorkOrderRepository, invRepo *repository.InventoryRepository, db *gorm.DB, cache *PipelineCache) *DispatchService {
	return &DispatchService{woRepo: woRepo, inventoryRepo: invRepo, db: db, cache: cache}
}

// DispatchLine names one inventory item to commit from one location.
// PartID binds the line to an existing undispatched part line. Without it,
// the line is matched to an undispatched part carrying the same inventory
// item; if none matches, a new part line is appended and the work order's
// parts cost grows beyond the quoted amount.
type DispatchLine struct {
	InventoryItemID     string  `json:"inventory_item_id" binding:"required"`
	WarehouseLocationID string  `json:"warehouse_location_id" binding:"required"`
	Quantity            float64 `json:"quantity" binding:"required,gt=0"`
	PartID              string  `json:"part_id"`
}

// DispatchResult is what a successful dispatch hands back: the updated
// work order and the movement rows appended to the ledger.
type DispatchResult struct {
	WorkOrder *entity.WorkOrder      `json:"work_order"`
	Movements []entity.StockMovement `json:"movements"`
}

// Dispatch validates and executes an all-or-nothing inventory dispatch.
//
// Validation aggregates quantities per item across lines, so a request
// pulling the same part from two locations fails when the sum exceeds
// stock even though each line alone would pass. Any line error rejects
// the entire request with zero writes.
func (s *DispatchService) Dispatch(ctx context.Context, tenantID, workOrderID string, lines []DispatchLine, actorID, notes string) (*DispatchResult, error) {
	if len(lines) == 0 {
		return nil, &ValidationError{Fields: []string{"lines: at least one dispatch line is required"}}
	}

	wo, err := s.woRepo.FindByID(ctx, tenantID, workOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find work order: %w", err)
	}
	if wo.Status == entity.WOStatusInvoiced {
		return nil, fmt.Errorf("%w: work order is already invoiced", ErrInvalidState)
	}
	if wo.Status != entity.WOStatusPending && wo.Status != entity.WOStatusInProgress {
		return nil, fmt.Errorf("%w: work order status is %s", ErrInvalidState, wo.Status)
	}

	// Phase 1: read-only validation. Collects every line error before
	// deciding, and never mutates anything.
	var (
		lineErrs   []string
		shortfalls []StockShortfall
		items      = map[string]*entity.InventoryItem{}
		requested  = map[string]float64{}
	)

	partsByID := map[string]*entity.WorkOrderPart{}
	for i := range wo.Parts {
		partsByID[wo.Parts[i].ID] = &wo.Parts[i]
	}

	for i, line := range lines {
		if line.Quantity <= 0 {
			lineErrs = append(lineErrs, fmt.Sprintf("lines[%d].quantity: must be greater than zero", i))
			continue
		}

		item, ok := items[line.InventoryItemID]
		if !ok {
			item, err = s.inventoryRepo.FindItemByID(ctx, tenantID, line.InventoryItemID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					lineErrs = append(lineErrs, fmt.Sprintf("lines[%d].inventory_item_id: item not found", i))
					continue
				}
				return nil, fmt.Errorf("resolve inventory item: %w", err)
			}
			items[line.InventoryItemID] = item
		}
		if !item.IsActive {
			lineErrs = append(lineErrs, fmt.Sprintf("lines[%d].inventory_item_id: item %s is inactive", i, item.SKU))
			continue
		}

		loc, err := s.inventoryRepo.FindLocationByID(ctx, tenantID, line.WarehouseLocationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				lineErrs = append(lineErrs, fmt.Sprintf("lines[%d].warehouse_location_id: location not found", i))
				continue
			}
			return nil, fmt.Errorf("resolve warehouse location: %w", err)
		}
		if !loc.IsActive {
			lineErrs = append(lineErrs, fmt.Sprintf("lines[%d].warehouse_location_id: location %s is inactive", i, loc.Code))
			continue
		}

		if line.PartID != "" {
			part, ok := partsByID[line.PartID]
			if !ok {
				lineErrs = append(lineErrs, fmt.Sprintf("lines[%d].part_id: part does not belong to work order", i))
				continue
			}
			if part.IsDispatched {
				lineErrs = append(lineErrs, fmt.Sprintf("lines[%d].part_id: part already dispatched", i))
				continue
			}
		}

		requested[line.InventoryItemID] += line.Quantity
	}

	// Stock sufficiency is checked against the per-item aggregate.
	for itemID, qty := range requested {
		item := items[itemID]
		if item.StockQuantity < qty {
			shortfalls = append(shortfalls, StockShortfall{
				InventoryItemID: itemID,
				SKU:             item.SKU,
				Requested:       qty,
				Available:       item.StockQuantity,
			})
		}
	}

	if len(lineErrs) > 0 {
		for _, sf := range shortfalls {
			lineErrs = append(lineErrs, fmt.Sprintf("stock: %s requested %.4f, available %.4f", sf.SKU, sf.Requested, sf.Available))
		}
		dispatchesTotal.WithLabelValues("rejected").Inc()
		return nil, &ValidationError{Fields: lineErrs}
	}
	if len(shortfalls) > 0 {
		dispatchesTotal.WithLabelValues("rejected").Inc()
		return nil, &InsufficientStockError{Shortfalls: shortfalls}
	}

	// Phase 2: single transaction. Stock is re-read under FOR UPDATE and
	// re-checked before any decrement, closing the check-then-act window
	// between validation and commit.
	var movements []entity.StockMovement
	now := time.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockedWO, err := s.woRepo.FindByIDForUpdateTx(tx, tenantID, workOrderID)
		if err != nil {
			return fmt.Errorf("lock work order: %w", err)
		}
		if lockedWO.Status != entity.WOStatusPending && lockedWO.Status != entity.WOStatusInProgress {
			return fmt.Errorf("%w: work order status is %s", ErrInvalidState, lockedWO.Status)
		}

		// Lock items in a stable order so concurrent dispatches cannot
		// deadlock on each other.
		itemIDs := make([]string, 0, len(requested))
		for id := range requested {
			itemIDs = append(itemIDs, id)
		}
		sort.Strings(itemIDs)

		var txShortfalls []StockShortfall
		lockedItems := map[string]*entity.InventoryItem{}
		for _, itemID := range itemIDs {
			item, err := s.inventoryRepo.FindItemForUpdateTx(tx, tenantID, itemID)
			if err != nil {
				return fmt.Errorf("lock inventory item: %w", err)
			}
			if !item.IsActive {
				return fmt.Errorf("%w: item %s became inactive", ErrInvalidState, item.SKU)
			}
			if item.StockQuantity < requested[itemID] {
				txShortfalls = append(txShortfalls, StockShortfall{
					InventoryItemID: itemID,
					SKU:             item.SKU,
					Requested:       requested[itemID],
					Available:       item.StockQuantity,
				})
			}
			lockedItems[itemID] = item
		}
		if len(txShortfalls) > 0 {
			return &InsufficientStockError{Shortfalls: txShortfalls}
		}

		lockedParts := map[string]*entity.WorkOrderPart{}
		unclaimed := map[string]*entity.WorkOrderPart{}
		for i := range lockedWO.Parts {
			p := &lockedWO.Parts[i]
			lockedParts[p.ID] = p
			if !p.IsDispatched && p.InventoryItemID != nil {
				if _, taken := unclaimed[*p.InventoryItemID]; !taken {
					unclaimed[*p.InventoryItemID] = p
				}
			}
		}

		for _, line := range lines {
			item := lockedItems[line.InventoryItemID]

			mv := entity.StockMovement{
				ID:                  uuid.New().String(),
				TenantID:            tenantID,
				InventoryItemID:     item.ID,
				WarehouseLocationID: line.WarehouseLocationID,
				MovementType:        entity.MovementTypeDispatch,
				Quantity:            -line.Quantity,
				WorkOrderID:         &lockedWO.ID,
				Reference:           lockedWO.Code,
				Notes:               notes,
				CreatedBy:           actorID,
			}
			if err := tx.Create(&mv).Error; err != nil {
				return fmt.Errorf("create stock movement: %w", err)
			}
			movements = append(movements, mv)

			// Lines without an explicit part fall back to an undispatched
			// part carrying the same inventory item, so a redispatch does
			// not duplicate the line.
			target := line.PartID
			if target == "" {
				if p, ok := unclaimed[item.ID]; ok {
					target = p.ID
					delete(unclaimed, item.ID)
				}
			}

			if target != "" {
				part, ok := lockedParts[target]
				if !ok || part.IsDispatched {
					return fmt.Errorf("%w: part %s not dispatchable", ErrInvalidState, target)
				}
				if err := tx.Model(&entity.WorkOrderPart{}).Where("id = ?", part.ID).
					Updates(map[string]interface{}{
						"inventory_item_id":     item.ID,
						"warehouse_location_id": line.WarehouseLocationID,
						"is_dispatched":         true,
						"stock_movement_id":     mv.ID,
					}).Error; err != nil {
					return fmt.Errorf("flag part dispatched: %w", err)
				}
				part.IsDispatched = true
				if part.InventoryItemID != nil {
					if p, ok := unclaimed[*part.InventoryItemID]; ok && p.ID == part.ID {
						delete(unclaimed, *part.InventoryItemID)
					}
				}
			} else {
				part := entity.WorkOrderPart{
					ID:                  uuid.New().String(),
					WorkOrderID:         lockedWO.ID,
					Name:                item.Name,
					Quantity:            line.Quantity,
					UnitPrice:           item.UnitCost,
					TotalPrice:          line.Quantity * item.UnitCost,
					InventoryItemID:     &item.ID,
					WarehouseLocationID: &line.WarehouseLocationID,
					IsDispatched:        true,
					StockMovementID:     &mv.ID,
					SortOrder:           len(lockedWO.Parts) + len(movements),
				}
				if err := tx.Create(&part).Error; err != nil {
					return fmt.Errorf("create part line: %w", err)
				}
			}
		}

		// One decrement per item covers every line in the request.
		for _, itemID := range itemIDs {
			if err := tx.Model(&entity.InventoryItem{}).Where("id = ?", itemID).
				Updates(map[string]interface{}{
					"stock_quantity": gorm.Expr("stock_quantity - ?", requested[itemID]),
					"last_moved_at":  now,
				}).Error; err != nil {
				return fmt.Errorf("decrement stock: %w", err)
			}
		}

		var parts []entity.WorkOrderPart
		if err := tx.Where("work_order_id = ?", lockedWO.ID).Find(&parts).Error; err != nil {
			return fmt.Errorf("reload parts: %w", err)
		}
		var partsCost float64
		for _, p := range parts {
			partsCost += p.TotalPrice
		}

		updates := map[string]interface{}{
			"parts_dispatched": true,
			"dispatched_at":    now,
			"dispatched_by":    actorID,
			"parts_cost":       partsCost,
			"total_cost":       partsCost + lockedWO.LaborCost,
		}
		if lockedWO.Status == entity.WOStatusPending {
			updates["status"] = entity.WOStatusInProgress
			updates["started_at"] = now
		}
		if err := tx.Model(&entity.WorkOrder{}).Where("id = ?", lockedWO.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update work order: %w", err)
		}

		if lockedWO.QuotationID != nil {
			if err := tx.Model(&entity.Quotation{}).Where("id = ?", *lockedWO.QuotationID).
				Update("pipeline_stage", entity.StageDispatched).Error; err != nil {
				return fmt.Errorf("advance quotation stage: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		dispatchesTotal.WithLabelValues("failed").Inc()
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			return nil, insufficient
		}
		if errors.Is(err, ErrInvalidState) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	dispatchesTotal.WithLabelValues("success").Inc()
	updated, err := s.woRepo.FindByID(ctx, tenantID, workOrderID)
	if err != nil {
		return nil, fmt.Errorf("reload work order: %w", err)
	}
	if updated.QuotationID != nil {
		s.cache.Invalidate(ctx, tenantID, *updated.QuotationID)
	}
	return &DispatchResult{WorkOrder: updated, Movements: movements}, nil
}

func (s *DispatchService) Get(ctx context.Context, tenantID, id string) (*entity.WorkOrder, error) {
	wo, err := s.woRepo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find work order: %w", err)
	}
	return wo, nil
}

func (s *DispatchService) List(ctx context.Context, tenantID string, params repository.WOListParams) ([]entity.WorkOrder, int64, error) {
	return s.woRepo.List(ctx, tenantID, params)
}

// CompleteRequest records the labor side of a finished job.
type CompleteRequest struct {
	LaborCost  float64 `json:"labor_cost" binding:"gte=0"`
	LaborHours float64 `json:"labor_hours" binding:"gte=0"`
	Notes      string  `json:"notes"`
}

// Complete marks a work order finished and records labor. Completion is a
// plain transition guarded by the table; invoicing checks the rest.
func (s *DispatchService) Complete(ctx context.Context, tenantID, workOrderID, actorID string, req CompleteRequest) (*entity.WorkOrder, error) {
	wo, err := s.woRepo.FindByID(ctx, tenantID, workOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find work order: %w", err)
	}
	if !entity.WorkOrderCanTransition(wo.Status, entity.WOStatusCompleted) {
		return nil, fmt.Errorf("%w: work order status is %s", ErrInvalidState, wo.Status)
	}

	now := time.Now()
	wo.Status = entity.WOStatusCompleted
	wo.CompletedAt = &now
	wo.LaborCost = req.LaborCost
	wo.LaborHours = req.LaborHours
	wo.TotalCost = wo.PartsCost + req.LaborCost
	if req.Notes != "" {
		wo.Notes = req.Notes
	}
	if err := s.woRepo.Update(ctx, wo); err != nil {
		return nil, fmt.Errorf("update work order: %w", err)
	}
	if wo.QuotationID != nil {
		s.cache.Invalidate(ctx, tenantID, *wo.QuotationID)
	}
	return wo, nil
}
