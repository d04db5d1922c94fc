package service

import (
	"github.com/redis/go-redis/v9"
	"github.com/tallerpro/taller-erp/internal/erp/repository"
	"github.com/tallerpro/taller-erp/internal/shared/dte"
	"github.com/tallerpro/taller-erp/internal/shared/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services bundles every ERP service.
type Services struct {
	Quotation *QuotationService
	Dispatch  *DispatchService
	Invoicing *InvoicingService
	Inventory *InventoryService
	Pipeline  *PipelineService
	Folio     *FolioService
}

func NewServices(
	repos *repository.Repositories,
	db *gorm.DB,
	rdb *redis.Client,
	builder dte.Builder,
	archiver *dte.Archiver,
	notifier *notify.Notifier,
	logger *zap.Logger,
) *Services {
	cache := NewPipelineCache(rdb)
	folio := NewFolioService(repos.Invoice)
	return &Services{
		Quotation: NewQuotationService(repos.Quotation, repos.Client, db, cache),
		Dispatch:  NewDispatchService(repos.WorkOrder, repos.Inventory, db, cache),
		Invoicing: NewInvoicingService(repos.WorkOrder, repos.Client, repos.Invoice, folio, builder, archiver, notifier, db, cache, logger),
		Inventory: NewInventoryService(repos.Inventory, db),
		Pipeline:  NewPipelineService(repos.Quotation, repos.WorkOrder, repos.Invoice, cache),
		Folio:     folio,
	}
}
