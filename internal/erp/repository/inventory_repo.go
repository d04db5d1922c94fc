package repository

import (
	"context"
	"time"

	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) FindItemByID(ctx context.Context, tenantID, id string) (*entity.InventoryItem, error) {
	var item entity.InventoryItem
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemForUpdateTx reads an inventory item under SELECT ... FOR UPDATE
// inside tx. Every stock decrement must go through this read so that the
// sufficiency check and the write are serialized on the row.
func (r *InventoryRepository) FindItemForUpdateTx(tx *gorm.DB, tenantID, id string) (*entity.InventoryItem, error) {
	var item entity.InventoryItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *InventoryRepository) FindLocationByID(ctx context.Context, tenantID, id string) (*entity.WarehouseLocation, error) {
	var loc entity.WarehouseLocation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&loc).Error
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

func (r *InventoryRepository) CreateItem(ctx context.Context, item *entity.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *InventoryRepository) UpdateItem(ctx context.Context, item *entity.InventoryItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

type ItemListParams struct {
	Keyword  string
	Active   *bool
	LowStock bool
	Page     int
	Size     int
}

func (r *InventoryRepository) ListItems(ctx context.Context, tenantID string, params ItemListParams) ([]entity.InventoryItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.InventoryItem{}).Where("tenant_id = ?", tenantID)
	if params.Keyword != "" {
		kw := "%" + params.Keyword + "%"
		query = query.Where("sku ILIKE ? OR name ILIKE ?", kw, kw)
	}
	if params.Active != nil {
		query = query.Where("is_active = ?", *params.Active)
	}
	if params.LowStock {
		query = query.Where("stock_quantity <= 0")
	}
	var total int64
	query.Count(&total)
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 20
	}
	var items []entity.InventoryItem
	err := query.Order("name").
		Offset((params.Page - 1) * params.Size).Limit(params.Size).Find(&items).Error
	return items, total, err
}

type MovementListParams struct {
	ItemID       string
	WorkOrderID  string
	MovementType string
	From         *time.Time
	To           *time.Time
	Page         int
	Size         int
}

func (r *InventoryRepository) ListMovements(ctx context.Context, tenantID string, params MovementListParams) ([]entity.StockMovement, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.StockMovement{}).Where("tenant_id = ?", tenantID)
	if params.ItemID != "" {
		query = query.Where("inventory_item_id = ?", params.ItemID)
	}
	if params.WorkOrderID != "" {
		query = query.Where("work_order_id = ?", params.WorkOrderID)
	}
	if params.MovementType != "" {
		query = query.Where("movement_type = ?", params.MovementType)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at < ?", *params.To)
	}
	var total int64
	query.Count(&total)
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 50
	}
	var movements []entity.StockMovement
	err := query.Order("created_at DESC").
		Offset((params.Page - 1) * params.Size).Limit(params.Size).Find(&movements).Error
	return movements, total, err
}
