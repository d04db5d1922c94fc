package repository

import (
	"context"

	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"gorm.io/gorm"
)

type QuotationRepository struct {
	db *gorm.DB
}

func NewQuotationRepository(db *gorm.DB) *QuotationRepository {
	return &QuotationRepository{db: db}
}

// FindByID loads a quotation with its items within a tenant.
func (r *QuotationRepository) FindByID(ctx context.Context, tenantID, id string) (*entity.Quotation, error) {
	var q entity.Quotation
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order") }).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&q).Error
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuotationRepository) Create(ctx context.Context, q *entity.Quotation) error {
	return r.db.WithContext(ctx).Create(q).Error
}

func (r *QuotationRepository) Update(ctx context.Context, q *entity.Quotation) error {
	return r.db.WithContext(ctx).Save(q).Error
}

type QuotationListParams struct {
	Status   string
	ClientID string
	Stage    string
	Page     int
	Size     int
}

func (r *QuotationRepository) List(ctx context.Context, tenantID string, params QuotationListParams) ([]entity.Quotation, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Quotation{}).Where("tenant_id = ?", tenantID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	if params.ClientID != "" {
		query = query.Where("client_id = ?", params.ClientID)
	}
	if params.Stage != "" {
		query = query.Where("pipeline_stage = ?", params.Stage)
	}
	var total int64
	query.Count(&total)
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 20
	}
	var items []entity.Quotation
	err := query.Preload("Items").Order("created_at DESC").
		Offset((params.Page - 1) * params.Size).Limit(params.Size).Find(&items).Error
	return items, total, err
}
