package service

import (
	"errors"
	"fmt"

	"github.com/tallerpro/taller-erp/internal/erp/entity"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"gorm.io/gorm"
)

// FolioService allocates sequential fiscal document numbers from the active
// CAF window of a (tenant, DTE type) pair. Allocation always runs inside the
// caller's transaction: a folio only exists once the dependent invoice row
// commits with it.
type FolioService struct {
	invoiceRepo *repository.InvoiceRepository
}

func NewFolioService(invoiceRepo *repository.InvoiceRepository) *FolioService {
	return &FolioService{invoiceRepo: invoiceRepo}
}

// NextFolioTx issues the next folio for (tenant, dteType) inside tx.
//
// The active CAF row is read under FOR UPDATE, so concurrent callers
// serialize on it and can never observe the same cursor. Consuming the last
// folio of the window marks the row exhausted and inactive in the same
// update; exhaustion is permanent and folios are never reclaimed, even if
// the invoice that consumed one is later voided.
func (s *FolioService) NextFolioTx(tx *gorm.DB, tenantID string, dteType int) (int64, error) {
	caf, err := s.invoiceRepo.FindActiveCafForUpdateTx(tx, tenantID, dteType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrOutOfFolios
		}
		return 0, fmt.Errorf("load caf window: %w", err)
	}

	folio := caf.CurrentFolio
	if folio < caf.FolioFrom || folio > caf.FolioTo {
		// Cursor outside the window means the row should have been marked
		// exhausted already; treat it the same way.
		return 0, ErrOutOfFolios
	}

	updates := map[string]interface{}{}
	if folio == caf.FolioTo {
		updates["is_exhausted"] = true
		updates["is_active"] = false
		updates["current_folio"] = folio + 1
	} else {
		updates["current_folio"] = folio + 1
	}
	if err := tx.Model(&entity.CafFolio{}).Where("id = ?", caf.ID).Updates(updates).Error; err != nil {
		return 0, fmt.Errorf("advance folio cursor: %w", err)
	}

	foliosIssuedTotal.Inc()
	return folio, nil
}

// RegisterCafRequest loads a new authorization window for a document type.
type RegisterCafRequest struct {
	DTEType   int   `json:"dte_type" binding:"required"`
	FolioFrom int64 `json:"folio_from" binding:"required,gt=0"`
	FolioTo   int64 `json:"folio_to" binding:"required,gtfield=FolioFrom"`
}
