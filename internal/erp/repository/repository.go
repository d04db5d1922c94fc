package repository

import "gorm.io/gorm"

// Repositories bundles every ERP repository.
type Repositories struct {
	Client    *ClientRepository
	Quotation *QuotationRepository
	WorkOrder *WorkOrderRepository
	Inventory *InventoryRepository
	Invoice   *InvoiceRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Client:    NewClientRepository(db),
		Quotation: NewQuotationRepository(db),
		WorkOrder: NewWorkOrderRepository(db),
		Inventory: NewInventoryRepository(db),
		Invoice:   NewInvoiceRepository(db),
	}
}
