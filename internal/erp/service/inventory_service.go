package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// InventoryService covers the flows around the ledger that the dispatch
// coordinator does not own: receiving, adjustments, and reporting. Stock
// only ever changes together with an appended movement row.
type InventoryService struct {
	repo *repository.InventoryRepository
	db   *gorm.DB
}

func NewInventoryService(repo *repository.InventoryRepository, db *gorm.DB) *InventoryService {
	return &InventoryService{repo: repo, db: db}
}

func (s *InventoryService) GetItem(ctx context.Context, tenantID, id string) (*entity.InventoryItem, error) {
	item, err := s.repo.FindItemByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find inventory item: %w", err)
	}
	return item, nil
}

func (s *InventoryService) ListItems(ctx context.Context, tenantID string, params repository.ItemListParams) ([]entity.InventoryItem, int64, error) {
	return s.repo.ListItems(ctx, tenantID, params)
}

func (s *InventoryService) ListMovements(ctx context.Context, tenantID string, params repository.MovementListParams) ([]entity.StockMovement, int64, error) {
	return s.repo.ListMovements(ctx, tenantID, params)
}

type ItemRequest struct {
	SKU      string  `json:"sku" binding:"required,max=64"`
	Name     string  `json:"name" binding:"required,max=128"`
	Unit     string  `json:"unit"`
	UnitCost float64 `json:"unit_cost" binding:"gte=0"`
}

// CreateItem registers a catalog item with zero stock. Stock only enters
// through Receive so the movement trail stays complete.
func (s *InventoryService) CreateItem(ctx context.Context, tenantID string, req ItemRequest) (*entity.InventoryItem, error) {
	if req.Unit == "" {
		req.Unit = "pcs"
	}
	item := &entity.InventoryItem{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		SKU:      req.SKU,
		Name:     req.Name,
		Unit:     req.Unit,
		UnitCost: req.UnitCost,
		IsActive: true,
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create inventory item: %w", err)
	}
	return item, nil
}

type ItemUpdateRequest struct {
	Name     *string  `json:"name"`
	Unit     *string  `json:"unit"`
	UnitCost *float64 `json:"unit_cost"`
	IsActive *bool    `json:"is_active"`
}

// UpdateItem edits catalog fields. Stock quantity is not editable here.
func (s *InventoryService) UpdateItem(ctx context.Context, tenantID, id string, req ItemUpdateRequest) (*entity.InventoryItem, error) {
	item, err := s.GetItem(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		item.Name = *req.Name
	}
	if req.Unit != nil {
		item.Unit = *req.Unit
	}
	if req.UnitCost != nil {
		item.UnitCost = *req.UnitCost
	}
	if req.IsActive != nil {
		item.IsActive = *req.IsActive
	}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("update inventory item: %w", err)
	}
	return item, nil
}

type ReceiveRequest struct {
	InventoryItemID     string  `json:"inventory_item_id" binding:"required"`
	WarehouseLocationID string  `json:"warehouse_location_id" binding:"required"`
	Quantity            float64 `json:"quantity" binding:"required,gt=0"`
	UnitCost            float64 `json:"unit_cost" binding:"gte=0"`
	Reference           string  `json:"reference"`
	Notes               string  `json:"notes"`
}

// Receive books incoming stock: increments the item and appends a
// RECEPTION movement in one transaction.
func (s *InventoryService) Receive(ctx context.Context, tenantID, actorID string, req ReceiveRequest) (*entity.StockMovement, error) {
	loc, err := s.repo.FindLocationByID(ctx, tenantID, req.WarehouseLocationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ValidationError{Fields: []string{"warehouse_location_id: location not found"}}
		}
		return nil, fmt.Errorf("resolve warehouse location: %w", err)
	}
	if !loc.IsActive {
		return nil, &ValidationError{Fields: []string{"warehouse_location_id: location is inactive"}}
	}

	now := time.Now()
	mv := &entity.StockMovement{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		InventoryItemID:     req.InventoryItemID,
		WarehouseLocationID: req.WarehouseLocationID,
		MovementType:        entity.MovementTypeReception,
		Quantity:            req.Quantity,
		Reference:           req.Reference,
		Notes:               req.Notes,
		CreatedBy:           actorID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindItemForUpdateTx(tx, tenantID, req.InventoryItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lock inventory item: %w", err)
		}
		updates := map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity + ?", req.Quantity),
			"last_moved_at":  now,
		}
		if req.UnitCost > 0 && req.UnitCost != item.UnitCost {
			updates["unit_cost"] = req.UnitCost
		}
		if err := tx.Model(&entity.InventoryItem{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("increment stock: %w", err)
		}
		if err := tx.Create(mv).Error; err != nil {
			return fmt.Errorf("create movement: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return mv, nil
}

type AdjustRequest struct {
	InventoryItemID     string  `json:"inventory_item_id" binding:"required"`
	WarehouseLocationID string  `json:"warehouse_location_id" binding:"required"`
	AdjustQty           float64 `json:"adjust_qty" binding:"required"`
	Reason              string  `json:"reason" binding:"required"`
}

// Adjust corrects stock by a signed quantity. The result may not go
// negative.
func (s *InventoryService) Adjust(ctx context.Context, tenantID, actorID string, req AdjustRequest) (*entity.StockMovement, error) {
	mv := &entity.StockMovement{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		InventoryItemID:     req.InventoryItemID,
		WarehouseLocationID: req.WarehouseLocationID,
		MovementType:        entity.MovementTypeAdjust,
		Quantity:            req.AdjustQty,
		Notes:               req.Reason,
		CreatedBy:           actorID,
	}

	now := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindItemForUpdateTx(tx, tenantID, req.InventoryItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lock inventory item: %w", err)
		}
		if item.StockQuantity+req.AdjustQty < 0 {
			return &InsufficientStockError{Shortfalls: []StockShortfall{{
				InventoryItemID: item.ID,
				SKU:             item.SKU,
				Requested:       -req.AdjustQty,
				Available:       item.StockQuantity,
			}}}
		}
		if err := tx.Model(&entity.InventoryItem{}).Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"stock_quantity": gorm.Expr("stock_quantity + ?", req.AdjustQty),
				"last_moved_at":  now,
			}).Error; err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}
		if err := tx.Create(mv).Error; err != nil {
			return fmt.Errorf("create movement: %w", err)
		}
		return nil
	})
	if err != nil {
		var insufficient *InsufficientStockError
		if errors.As(err, &insufficient) {
			return nil, insufficient
		}
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	return mv, nil
}

// ExportMovements renders the movement ledger as an Excel workbook.
func (s *InventoryService) ExportMovements(ctx context.Context, tenantID string, params repository.MovementListParams) (*excelize.File, string, error) {
	params.Page = 1
	if params.Size <= 0 {
		params.Size = 10000
	}
	movements, _, err := s.repo.ListMovements(ctx, tenantID, params)
	if err != nil {
		return nil, "", fmt.Errorf("list movements: %w", err)
	}

	f := excelize.NewFile()
	sheet := "Movimientos"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Fecha", "Tipo", "Item", "Ubicación", "Cantidad", "Orden de trabajo", "Referencia", "Usuario"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, mv := range movements {
		woID := ""
		if mv.WorkOrderID != nil {
			woID = *mv.WorkOrderID
		}
		values := []interface{}{
			mv.CreatedAt.Format("2006-01-02 15:04"),
			mv.MovementType,
			mv.InventoryItemID,
			mv.WarehouseLocationID,
			mv.Quantity,
			woID,
			mv.Reference,
			mv.CreatedBy,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	filename := fmt.Sprintf("movimientos_%s.xlsx", time.Now().Format("20060102"))
	return f, filename, nil
}
