package repository

import (
	"context"

	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) FindByID(ctx context.Context, tenantID, id string) (*entity.Invoice, error) {
	var inv entity.Invoice
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

type InvoiceListParams struct {
	DTEType  int
	ClientID string
	Status   string
	Page     int
	Size     int
}

func (r *InvoiceRepository) List(ctx context.Context, tenantID string, params InvoiceListParams) ([]entity.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&entity.Invoice{}).Where("tenant_id = ?", tenantID)
	if params.DTEType != 0 {
		query = query.Where("dte_type = ?", params.DTEType)
	}
	if params.ClientID != "" {
		query = query.Where("client_id = ?", params.ClientID)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	var total int64
	query.Count(&total)
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Size <= 0 {
		params.Size = 20
	}
	var items []entity.Invoice
	err := query.Order("issued_at DESC").
		Offset((params.Page - 1) * params.Size).Limit(params.Size).Find(&items).Error
	return items, total, err
}

func (r *InvoiceRepository) Update(ctx context.Context, inv *entity.Invoice) error {
	return r.db.WithContext(ctx).Save(inv).Error
}

// FindActiveCafForUpdateTx locks the single active, non-exhausted CAF window
// for (tenant, dteType) inside tx. Concurrent allocations serialize here.
// Ordered by folio_from so allocation stays deterministic even if the
// uniqueness invariant is ever violated out of band.
func (r *InvoiceRepository) FindActiveCafForUpdateTx(tx *gorm.DB, tenantID string, dteType int) (*entity.CafFolio, error) {
	var caf entity.CafFolio
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND dte_type = ? AND is_active = ? AND is_exhausted = ?",
			tenantID, dteType, true, false).
		Order("folio_from").
		First(&caf).Error
	if err != nil {
		return nil, err
	}
	return &caf, nil
}

func (r *InvoiceRepository) CreateCafTx(tx *gorm.DB, caf *entity.CafFolio) error {
	return tx.Create(caf).Error
}

// ListCafsForUpdateTx locks every CAF row for (tenant, dteType) inside tx,
// so concurrent window registrations serialize before either inserts.
func (r *InvoiceRepository) ListCafsForUpdateTx(tx *gorm.DB, tenantID string, dteType int) ([]entity.CafFolio, error) {
	var cafs []entity.CafFolio
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("tenant_id = ? AND dte_type = ?", tenantID, dteType).
		Order("folio_from").
		Find(&cafs).Error
	return cafs, err
}
