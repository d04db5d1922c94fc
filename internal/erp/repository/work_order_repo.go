package repository

import (
	"context"

	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkOrderRepository struct {
	db *gorm.DB
}

func NewWorkOrderRepository(db *gorm.DB) *WorkOrderRepository {
	return &WorkOrderRepository{db: db}
}

// FindByID loads a work order with its parts within a tenant.
func (r *WorkOrderRepository) FindByID(ctx context.Context, tenantID, id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := r.db.WithContext(ctx).
		Preload("Parts", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&wo).Error
	if err != nil {
		return nil, err
	}
	return &wo, nil
}

// FindByIDForUpdateTx loads a work order under a row lock inside tx. The
// lock serializes concurrent dispatch and invoicing attempts on the same
// order for the duration of the enclosing transaction.
func (r *WorkOrderRepository) FindByIDForUpdateTx(tx *gorm.DB, tenantID, id string) (*entity.WorkOrder, error) {
	var wo entity.WorkOrder
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&wo).Error
	if err != nil {
		return nil, err
	}
	if err := tx.Where("work_order_id = ?", wo.ID).Order("sort_order").Find(&wo.Parts).Error; err != nil {
		return nil, err
	}
	return &wo, nil
}

func (r *WorkOrderRepository) Update(ctx context.Context, wo *entity.WorkOrder) error {
	return r.db.WithContext(ctx).Save(wo).Error
}

type WOListParams struct {
	Status   string
	ClientID string
	Page     int
	Size     int
}

func (r *WorkOrderRepository) List(ctx context.Context, tenantID string, params WOListParams) ([]entity.WorkOrder, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.WorkOrder{}).Where("tenant_id = ?", tenantID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.ClientID != "" {
		query = query.Where("client_id = ?", params.ClientID)
	}
	var total int64
	query.Count(&total)
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 20
	}
	var items []entity.WorkOrder
	err := query.Preload("Parts").Order("created_at DESC").
		Offset((params.Page - 1) * params.Size).Limit(params.Size).Find(&items).Error
	return items, total, err
}
