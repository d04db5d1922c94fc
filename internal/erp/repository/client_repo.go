package repository

import (
	"context"

	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"gorm.io/gorm"
)

// ClientRepository is read-only from the pipeline's point of view: client
// and vehicle CRUD belongs to the surrounding application.
type ClientRepository struct {
	db *gorm.DB
}

func NewClientRepository(db *gorm.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) FindByID(ctx context.Context, tenantID, id string) (*entity.Client, error) {
	var c entity.Client
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ClientRepository) FindVehicleByID(ctx context.Context, tenantID, id string) (*entity.Vehicle, error) {
	var v entity.Vehicle
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}
